package services

import (
	"context"
	"net/http"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartEstimate       = domain.CartEstimate
	Order              = domain.Order
	OrderTotals        = domain.OrderTotals
	OrderLineItem      = domain.OrderLineItem
	OrderStatus        = domain.OrderStatus
	OrderContact       = domain.OrderContact
	Payment            = domain.Payment
	PaymentStatus      = domain.PaymentStatus
	Address            = domain.Address
	SystemHealthReport = domain.SystemHealthReport
)

// CartService manages mutable cart state and keeps the server-side estimate authoritative.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CheckoutService validates the cart, authorizes payment with the provider, and
// persists the provisional order.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// ReconciliationService applies payment completion exactly once, whether the
// signal arrives through the synchronous capture path or the webhook path.
type ReconciliationService interface {
	CaptureOrder(ctx context.Context, cmd CaptureOrderCommand) (CaptureOutcome, error)
	ProcessWebhook(ctx context.Context, cmd WebhookCommand) (WebhookOutcome, error)
}

// OrderService encapsulates order read flows, cancellation, and fulfilment transitions.
type OrderService interface {
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// NotificationService enqueues customer and back-office notifications. Delivery
// is best-effort and never rolls back the state that triggered it.
type NotificationService interface {
	OrderConfirmed(ctx context.Context, order Order) error
	OrderAlert(ctx context.Context, order Order) error
}

// SystemService aggregates utility endpoints (health checks, build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	Currency  string
	Metadata  map[string]any
}

type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

type CheckoutCommand struct {
	UserID    string
	ReturnURL string
	CancelURL string
	Contact   *OrderContact
	Shipping  *Address
}

// CheckoutResult is the approval handoff returned to the client.
type CheckoutResult struct {
	OrderID         string
	OrderNumber     string
	ExternalOrderID string
	ApprovalURL     string
	Amount          int64
	Currency        string
}

type CaptureOrderCommand struct {
	UserID          string
	ExternalOrderID string
}

// CaptureOutcome reports whether the capture path won the completion race.
type CaptureOutcome struct {
	Order     Order
	CaptureID string
	Applied   bool
}

type WebhookCommand struct {
	Headers http.Header
	Body    []byte
}

// WebhookOutcome reports how a webhook delivery was handled.
type WebhookOutcome struct {
	EventID   string
	EventType string
	Applied   bool
	Ignored   bool
}

type OrderListFilter = repositories.OrderListFilter

type OrderReadOptions struct {
	UserID       string
	IncludeAdmin bool
}

type OrderStatusTransitionCommand struct {
	OrderID  string
	Target   OrderStatus
	ActorRef string
}

type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
	Now     *time.Time
}
