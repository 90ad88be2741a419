package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmarket/api/internal/platform/auth"
	"github.com/oakmarket/api/internal/platform/httpx"
	"github.com/oakmarket/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

type captureResponse struct {
	Success   bool         `json:"success"`
	CaptureID string       `json:"captureId,omitempty"`
	Order     orderPayload `json:"order"`
}

type webhookResponse struct {
	Received bool `json:"received"`
}

const (
	captureRateLimit  = 10
	captureRateWindow = time.Minute
)

// PaymentHandlers exposes the capture endpoint and the provider webhook receiver.
type PaymentHandlers struct {
	authn     *auth.Authenticator
	reconcile services.ReconciliationService
	limiter   rateLimiter
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentHandlers constructs handlers for payment settlement endpoints.
func NewPaymentHandlers(authn *auth.Authenticator, reconcile services.ReconciliationService, logger func(ctx context.Context, event string, fields map[string]any)) *PaymentHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentHandlers{
		authn:     authn,
		reconcile: reconcile,
		limiter:   newSimpleRateLimiter(captureRateLimit, captureRateWindow, nil),
		logger:    logger,
	}
}

// Routes wires the authenticated /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/capture/{externalOrderID}", h.captureOrder)
}

// WebhookRoutes wires the unauthenticated provider webhook receiver. Signature
// verification happens inside the reconciliation service, not at the router.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/paypal", h.handleWebhook)
}

func (h *PaymentHandlers) captureOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconcile == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many capture attempts", http.StatusTooManyRequests))
		return
	}

	externalOrderID := strings.TrimSpace(chi.URLParam(r, "externalOrderID"))
	if externalOrderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "external order id is required", http.StatusBadRequest))
		return
	}

	outcome, err := h.reconcile.CaptureOrder(ctx, services.CaptureOrderCommand{
		UserID:          strings.TrimSpace(identity.UID),
		ExternalOrderID: externalOrderID,
	})
	if err != nil {
		writeReconcileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, captureResponse{
		Success:   true,
		CaptureID: outcome.CaptureID,
		Order:     buildOrderPayload(outcome.Order),
	})
}

// handleWebhook acknowledges deliveries it handled safely and returns an error
// status only when a retry could succeed, so the provider redelivers.
func (h *PaymentHandlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconcile == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read webhook body", http.StatusBadRequest))
		return
	}

	outcome, err := h.reconcile.ProcessWebhook(ctx, services.WebhookCommand{
		Headers: r.Header,
		Body:    body,
	})
	if err != nil {
		if errors.Is(err, services.ErrWebhookSignatureInvalid) {
			// Forged or corrupted delivery. Acknowledge so the provider does
			// not keep retrying a payload that will never verify.
			writeJSONResponse(w, http.StatusOK, webhookResponse{Received: true})
			return
		}
		if errors.Is(err, services.ErrReconcileInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("webhook_processing_failed", "event could not be processed", http.StatusInternalServerError))
		return
	}

	h.logger(ctx, "payments.webhook.processed", map[string]any{
		"eventId":   outcome.EventID,
		"eventType": outcome.EventType,
		"applied":   outcome.Applied,
		"ignored":   outcome.Ignored,
	})
	writeJSONResponse(w, http.StatusOK, webhookResponse{Received: true})
}

func writeReconcileError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReconcileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReconcileOrderNotFound), errors.Is(err, services.ErrReconcileForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReconcilePaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "payment provider declined the capture", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReconcileUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
