package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/payments"
	"github.com/oakmarket/api/internal/repositories"
)

var (
	// ErrReconcileInvalidInput indicates the caller supplied invalid input parameters.
	ErrReconcileInvalidInput = errors.New("reconcile: invalid input")
	// ErrReconcileUnavailable indicates a downstream dependency prevented safe processing.
	ErrReconcileUnavailable = errors.New("reconcile: unavailable")
	// ErrReconcileOrderNotFound indicates no order matches the provider reference.
	ErrReconcileOrderNotFound = errors.New("reconcile: order not found")
	// ErrReconcileForbidden indicates the caller does not own the referenced order.
	ErrReconcileForbidden = errors.New("reconcile: forbidden")
	// ErrReconcilePaymentDeclined indicates the provider declined the capture.
	ErrReconcilePaymentDeclined = errors.New("reconcile: payment declined")
	// ErrWebhookSignatureInvalid indicates the webhook signature did not verify.
	ErrWebhookSignatureInvalid = errors.New("reconcile: webhook signature invalid")
)

// reconcileProvider abstracts the payment provider operations used during settlement.
type reconcileProvider interface {
	Capture(ctx context.Context, externalOrderID string) (payments.CaptureResult, error)
	VerifyWebhook(ctx context.Context, req payments.WebhookRequest) (payments.WebhookEvent, error)
}

// cartClearer is the slice of CartService used after a settled order.
type cartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// ReconciliationServiceDeps wires the repositories, provider, and side-effect
// targets used by the reconciliation flow.
type ReconciliationServiceDeps struct {
	Orders        repositories.OrderRepository
	Provider      reconcileProvider
	Carts         cartClearer
	Notifications NotificationService
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	orders        repositories.OrderRepository
	provider      reconcileProvider
	carts         cartClearer
	notifications NotificationService
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewReconciliationService constructs a ReconciliationService validating required dependencies.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciliation service: order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("reconciliation service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reconciliationService{
		orders:        deps.Orders,
		provider:      deps.Provider,
		carts:         deps.Carts,
		notifications: deps.Notifications,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// CaptureOrder captures the authorised funds for an order after the buyer
// approved it, then applies the completion transition. When a webhook already
// settled the payment the call reports Applied=false and succeeds without
// re-running side effects.
func (s *reconciliationService) CaptureOrder(ctx context.Context, cmd CaptureOrderCommand) (CaptureOutcome, error) {
	if s == nil || s.orders == nil || s.provider == nil {
		return CaptureOutcome{}, ErrReconcileUnavailable
	}
	externalID := strings.TrimSpace(cmd.ExternalOrderID)
	if externalID == "" {
		return CaptureOutcome{}, fmt.Errorf("%w: external order id is required", ErrReconcileInvalidInput)
	}

	order, err := s.orders.FindByExternalOrderID(ctx, externalID)
	if err != nil {
		if isRepoNotFound(err) {
			return CaptureOutcome{}, ErrReconcileOrderNotFound
		}
		return CaptureOutcome{}, fmt.Errorf("%w: loading order: %v", ErrReconcileUnavailable, err)
	}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" && order.UserID != uid {
		return CaptureOutcome{}, ErrReconcileForbidden
	}

	switch order.Payment.Status {
	case domain.PaymentStatusCompleted:
		return CaptureOutcome{Order: order, CaptureID: order.Payment.CaptureID}, nil
	case domain.PaymentStatusPending, domain.PaymentStatusFailed:
		// A declined capture leaves the order pending, so the buyer may
		// re-attempt with another funding source.
	default:
		return CaptureOutcome{}, fmt.Errorf("%w: payment is %s", ErrReconcilePaymentDeclined, order.Payment.Status)
	}

	capture, err := s.provider.Capture(ctx, externalID)
	if err != nil {
		if errors.Is(err, payments.ErrCaptureDeclined) {
			if failErr := s.markPaymentFailed(ctx, externalID, err.Error()); failErr != nil {
				s.logger(ctx, "reconcile.capture.fail_record_error", map[string]any{
					"externalOrderId": externalID,
					"error":           failErr.Error(),
				})
			}
			return CaptureOutcome{}, fmt.Errorf("%w: %v", ErrReconcilePaymentDeclined, err)
		}
		return CaptureOutcome{}, fmt.Errorf("%w: capturing payment: %v", ErrReconcileUnavailable, err)
	}

	return s.completePayment(ctx, externalID, capture.CaptureID, "capture")
}

// ProcessWebhook verifies and applies a provider notification. Signature
// failures and events for unknown orders are reported as ignored so the
// transport layer can acknowledge them; storage failures surface as errors so
// the provider retries the delivery.
func (s *reconciliationService) ProcessWebhook(ctx context.Context, cmd WebhookCommand) (WebhookOutcome, error) {
	if s == nil || s.orders == nil || s.provider == nil {
		return WebhookOutcome{}, ErrReconcileUnavailable
	}
	if len(cmd.Body) == 0 {
		return WebhookOutcome{}, fmt.Errorf("%w: empty webhook body", ErrReconcileInvalidInput)
	}

	event, err := s.provider.VerifyWebhook(ctx, payments.WebhookRequest{
		Headers: cmd.Headers,
		Body:    cmd.Body,
	})
	if err != nil {
		if errors.Is(err, payments.ErrSignatureInvalid) {
			s.logger(ctx, "reconcile.webhook.signature_invalid", map[string]any{
				"error": err.Error(),
			})
			return WebhookOutcome{}, ErrWebhookSignatureInvalid
		}
		return WebhookOutcome{}, fmt.Errorf("%w: verifying webhook: %v", ErrReconcileUnavailable, err)
	}

	outcome := WebhookOutcome{EventID: event.ID, EventType: event.EventType}

	switch event.EventType {
	case payments.EventCaptureCompleted:
		result, err := s.completePayment(ctx, event.ExternalOrderID, event.CaptureID, "webhook")
		if err != nil {
			if errors.Is(err, ErrReconcileOrderNotFound) {
				s.logger(ctx, "reconcile.webhook.unknown_order", map[string]any{
					"eventId":         event.ID,
					"externalOrderId": event.ExternalOrderID,
				})
				outcome.Ignored = true
				return outcome, nil
			}
			return WebhookOutcome{}, err
		}
		outcome.Applied = result.Applied
		return outcome, nil

	case payments.EventCaptureDenied:
		if err := s.markPaymentFailed(ctx, event.ExternalOrderID, event.Summary); err != nil {
			if errors.Is(err, ErrReconcileOrderNotFound) {
				outcome.Ignored = true
				return outcome, nil
			}
			return WebhookOutcome{}, err
		}
		outcome.Applied = true
		return outcome, nil

	default:
		s.logger(ctx, "reconcile.webhook.ignored", map[string]any{
			"eventId":   event.ID,
			"eventType": event.EventType,
		})
		outcome.Ignored = true
		return outcome, nil
	}
}

// completePayment applies the atomic completion transition and fires the
// post-settlement side effects exactly once, on the path that won the write.
func (s *reconciliationService) completePayment(ctx context.Context, externalOrderID, captureID, source string) (CaptureOutcome, error) {
	now := s.now()
	order, applied, err := s.orders.CompletePaymentIfPending(ctx, externalOrderID, repositories.PaymentCompletion{
		CaptureID:   captureID,
		CompletedAt: now,
	})
	if err != nil {
		if isRepoNotFound(err) {
			return CaptureOutcome{}, ErrReconcileOrderNotFound
		}
		return CaptureOutcome{}, fmt.Errorf("%w: completing payment: %v", ErrReconcileUnavailable, err)
	}

	if !applied {
		s.logger(ctx, "reconcile.completion.duplicate", map[string]any{
			"externalOrderId": externalOrderID,
			"orderId":         order.ID,
			"source":          source,
		})
		return CaptureOutcome{Order: order, CaptureID: order.Payment.CaptureID}, nil
	}

	s.logger(ctx, "reconcile.completion.applied", map[string]any{
		"externalOrderId": externalOrderID,
		"orderId":         order.ID,
		"captureId":       captureID,
		"source":          source,
	})
	s.runSideEffects(ctx, order)
	return CaptureOutcome{Order: order, CaptureID: captureID, Applied: true}, nil
}

// markPaymentFailed records a decline. The order stays pending so the buyer can
// retry with another funding source.
func (s *reconciliationService) markPaymentFailed(ctx context.Context, externalOrderID, reason string) error {
	order, applied, err := s.orders.FailPaymentIfPending(ctx, externalOrderID, repositories.PaymentFailure{
		Reason:   strings.TrimSpace(reason),
		FailedAt: s.now(),
	})
	if err != nil {
		if isRepoNotFound(err) {
			return ErrReconcileOrderNotFound
		}
		return fmt.Errorf("%w: recording payment failure: %v", ErrReconcileUnavailable, err)
	}
	s.logger(ctx, "reconcile.payment.failed", map[string]any{
		"externalOrderId": externalOrderID,
		"orderId":         order.ID,
		"applied":         applied,
	})
	return nil
}

// runSideEffects enqueues the confirmation email, the back-office alert, and
// clears the buyer's cart. Failures are logged and never unwind the settled
// payment state.
func (s *reconciliationService) runSideEffects(ctx context.Context, order domain.Order) {
	if s.notifications != nil {
		if err := s.notifications.OrderConfirmed(ctx, order); err != nil {
			s.logger(ctx, "reconcile.sideeffect.confirmation_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
		if err := s.notifications.OrderAlert(ctx, order); err != nil {
			s.logger(ctx, "reconcile.sideeffect.alert_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
	if s.carts != nil {
		if err := s.carts.ClearCart(ctx, order.UserID); err != nil {
			s.logger(ctx, "reconcile.sideeffect.cart_clear_failed", map[string]any{
				"orderId": order.ID,
				"userId":  order.UserID,
				"error":   err.Error(),
			})
		}
	}
}

var _ ReconciliationService = (*reconciliationService)(nil)
