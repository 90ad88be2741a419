package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/platform/auth"
	"github.com/oakmarket/api/internal/services"
)

func newCaptureRequest(externalOrderID, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/capture/"+externalOrderID, nil)
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

func paymentsRouter(h *PaymentHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/payments", h.Routes)
	router.Route("/webhooks", h.WebhookRoutes)
	return router
}

func TestPaymentHandlersCaptureSuccess(t *testing.T) {
	service := &stubReconcileService{
		captureFunc: func(ctx context.Context, cmd services.CaptureOrderCommand) (services.CaptureOutcome, error) {
			if cmd.UserID != "user-1" || cmd.ExternalOrderID != "PAYPAL-9" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.CaptureOutcome{
				Order: domain.Order{
					ID:     "order-1",
					Status: domain.OrderStatusProcessing,
					Payment: domain.Payment{
						ID:        "pay-1",
						CaptureID: "CAP-1",
						Status:    domain.PaymentStatusCompleted,
					},
				},
				CaptureID: "CAP-1",
				Applied:   true,
			}, nil
		},
	}

	handler := NewPaymentHandlers(nil, service, nil)
	router := paymentsRouter(handler)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newCaptureRequest("PAYPAL-9", "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp captureResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.CaptureID != "CAP-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Order.Status != "processing" {
		t.Fatalf("expected processing order, got %q", resp.Order.Status)
	}
}

func TestPaymentHandlersCaptureUnauthenticated(t *testing.T) {
	handler := NewPaymentHandlers(nil, &stubReconcileService{}, nil)
	router := paymentsRouter(handler)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newCaptureRequest("PAYPAL-9", ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestPaymentHandlersCaptureUnknownOrder(t *testing.T) {
	service := &stubReconcileService{
		captureFunc: func(ctx context.Context, cmd services.CaptureOrderCommand) (services.CaptureOutcome, error) {
			return services.CaptureOutcome{}, services.ErrReconcileOrderNotFound
		},
	}

	handler := NewPaymentHandlers(nil, service, nil)
	router := paymentsRouter(handler)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newCaptureRequest("UNKNOWN-1", "user-1"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPaymentHandlersCaptureDeclined(t *testing.T) {
	service := &stubReconcileService{
		captureFunc: func(ctx context.Context, cmd services.CaptureOrderCommand) (services.CaptureOutcome, error) {
			return services.CaptureOutcome{}, fmt.Errorf("%w: INSTRUMENT_DECLINED", services.ErrReconcilePaymentDeclined)
		},
	}

	handler := NewPaymentHandlers(nil, service, nil)
	router := paymentsRouter(handler)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newCaptureRequest("PAYPAL-9", "user-1"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "payment_declined" {
		t.Fatalf("unexpected error code %v", resp["error"])
	}
}

func TestPaymentHandlersCaptureRateLimited(t *testing.T) {
	service := &stubReconcileService{
		captureFunc: func(ctx context.Context, cmd services.CaptureOrderCommand) (services.CaptureOutcome, error) {
			return services.CaptureOutcome{Applied: true}, nil
		},
	}

	handler := NewPaymentHandlers(nil, service, nil)
	router := paymentsRouter(handler)

	var last int
	for i := 0; i < captureRateLimit+1; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newCaptureRequest("PAYPAL-9", "user-burst"))
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after burst, got %d", last)
	}
}

func TestPaymentHandlersWebhookInvalidSignatureAcknowledged(t *testing.T) {
	service := &stubReconcileService{
		webhookFunc: func(ctx context.Context, cmd services.WebhookCommand) (services.WebhookOutcome, error) {
			return services.WebhookOutcome{}, services.ErrWebhookSignatureInvalid
		},
	}

	handler := NewPaymentHandlers(nil, service, nil)
	router := paymentsRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader([]byte(`{"id":"WH-1"}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("a forged delivery must still be acknowledged, got %d", rr.Code)
	}

	var resp webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Received {
		t.Fatal("expected received=true")
	}
}

func TestPaymentHandlersWebhookStorageFailureReturns500(t *testing.T) {
	service := &stubReconcileService{
		webhookFunc: func(ctx context.Context, cmd services.WebhookCommand) (services.WebhookOutcome, error) {
			return services.WebhookOutcome{}, fmt.Errorf("%w: firestore down", services.ErrReconcileUnavailable)
		},
	}

	handler := NewPaymentHandlers(nil, service, nil)
	router := paymentsRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader([]byte(`{"id":"WH-1"}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unprocessed events must not be acknowledged, got %d", rr.Code)
	}
}

func TestPaymentHandlersWebhookProcessed(t *testing.T) {
	var gotBody []byte
	service := &stubReconcileService{
		webhookFunc: func(ctx context.Context, cmd services.WebhookCommand) (services.WebhookOutcome, error) {
			gotBody = cmd.Body
			if cmd.Headers.Get("Paypal-Transmission-Id") != "trans-1" {
				t.Fatalf("expected forwarded headers, got %v", cmd.Headers)
			}
			return services.WebhookOutcome{EventID: "WH-1", EventType: "PAYMENT.CAPTURE.COMPLETED", Applied: true}, nil
		},
	}

	handler := NewPaymentHandlers(nil, service, nil)
	router := paymentsRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader([]byte(`{"id":"WH-1"}`)))
	req.Header.Set("Paypal-Transmission-Id", "trans-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if string(gotBody) != `{"id":"WH-1"}` {
		t.Fatalf("unexpected forwarded body %q", gotBody)
	}
}

type stubReconcileService struct {
	captureFunc func(ctx context.Context, cmd services.CaptureOrderCommand) (services.CaptureOutcome, error)
	webhookFunc func(ctx context.Context, cmd services.WebhookCommand) (services.WebhookOutcome, error)
}

func (s *stubReconcileService) CaptureOrder(ctx context.Context, cmd services.CaptureOrderCommand) (services.CaptureOutcome, error) {
	if s.captureFunc != nil {
		return s.captureFunc(ctx, cmd)
	}
	return services.CaptureOutcome{}, errors.New("not implemented")
}

func (s *stubReconcileService) ProcessWebhook(ctx context.Context, cmd services.WebhookCommand) (services.WebhookOutcome, error) {
	if s.webhookFunc != nil {
		return s.webhookFunc(ctx, cmd)
	}
	return services.WebhookOutcome{}, errors.New("not implemented")
}
