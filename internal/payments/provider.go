package payments

import (
	"context"
	"errors"
	"net/http"
)

// Status enumerates the normalised payment states reported by the provider.
type Status string

const (
	// StatusPending indicates the payment is awaiting buyer approval or capture.
	StatusPending Status = "pending"
	// StatusCompleted indicates the provider confirmed the capture.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the provider declined or voided the payment.
	StatusFailed Status = "failed"
	// StatusRefunded indicates captured funds were returned.
	StatusRefunded Status = "refunded"
)

const (
	// EventCaptureCompleted signals the provider settled a capture.
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	// EventCaptureDenied signals the provider declined a capture.
	EventCaptureDenied = "PAYMENT.CAPTURE.DENIED"
)

var (
	// ErrAuthorizationDeclined is returned when the provider rejects the authorization attempt.
	ErrAuthorizationDeclined = errors.New("payments: authorization declined")
	// ErrCaptureDeclined is returned when the provider refuses to capture authorized funds.
	ErrCaptureDeclined = errors.New("payments: capture declined")
	// ErrOrderNotFound is returned when the provider does not know the referenced order.
	ErrOrderNotFound = errors.New("payments: provider order not found")
	// ErrSignatureInvalid is returned when a webhook payload fails signature verification.
	ErrSignatureInvalid = errors.New("payments: webhook signature invalid")
	// ErrUnavailable is returned when the provider cannot be reached or keeps failing transiently.
	ErrUnavailable = errors.New("payments: provider unavailable")
)

// AuthorizationRequest captures the order payload handed to the provider for approval.
type AuthorizationRequest struct {
	ReferenceID    string
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
	ReturnURL      string
	CancelURL      string
}

// Authorization represents the provider-side order created for buyer approval.
type Authorization struct {
	ExternalOrderID string
	ApprovalURL     string
	Status          Status
	RawStatus       string
}

// CaptureResult reports the outcome of a capture attempt.
type CaptureResult struct {
	CaptureID       string
	ExternalOrderID string
	Status          Status
	Amount          int64
	Currency        string
	RawStatus       string
}

// OrderDetails reflects the provider's current view of an order. Used to
// resolve ambiguous capture outcomes instead of blindly retrying.
type OrderDetails struct {
	ExternalOrderID string
	Status          Status
	RawStatus       string
	CaptureID       string
}

// WebhookRequest carries the raw transport data needed to verify a webhook delivery.
type WebhookRequest struct {
	Headers http.Header
	Body    []byte
}

// WebhookEvent is a verified, parsed provider notification.
type WebhookEvent struct {
	ID              string
	EventType       string
	ExternalOrderID string
	CaptureID       string
	Summary         string
}

// Provider defines the contract the payment provider adapter implements.
type Provider interface {
	// Name returns the provider identifier stored on payment records.
	Name() string
	// Authorize creates a provider-side order and returns the approval handoff.
	Authorize(ctx context.Context, req AuthorizationRequest) (Authorization, error)
	// Capture settles the authorized funds for the given provider order.
	Capture(ctx context.Context, externalOrderID string) (CaptureResult, error)
	// LookupOrder fetches the provider's current view of an order.
	LookupOrder(ctx context.Context, externalOrderID string) (OrderDetails, error)
	// VerifyWebhook validates the delivery signature and parses the event payload.
	VerifyWebhook(ctx context.Context, req WebhookRequest) (WebhookEvent, error)
}
