package repositories

import (
	"context"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart header + items persistence with optimistic locking guarantees.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string, now time.Time) error
}

// PaymentCompletion carries the capture evidence applied when a payment settles.
type PaymentCompletion struct {
	CaptureID   string
	CompletedAt time.Time
}

// PaymentFailure carries the decline evidence recorded when a payment fails.
type PaymentFailure struct {
	Reason   string
	FailedAt time.Time
}

// OrderCancellation records who cancelled an order and why.
type OrderCancellation struct {
	Reason      string
	CancelledAt time.Time
}

// OrderRepository persists order headers with their embedded payment record and
// provides the conditional transitions the reconciliation flow depends on.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByExternalOrderID(ctx context.Context, externalOrderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)

	// CompletePaymentIfPending transitions the order to processing and its payment
	// to completed in one atomic write, guarded on the payment still being pending.
	// The returned flag reports whether this call performed the transition; a false
	// flag with a nil error means another path already settled the payment.
	CompletePaymentIfPending(ctx context.Context, externalOrderID string, completion PaymentCompletion) (domain.Order, bool, error)

	// FailPaymentIfPending marks the payment failed while leaving the order pending,
	// guarded on the payment still being pending.
	FailPaymentIfPending(ctx context.Context, externalOrderID string, failure PaymentFailure) (domain.Order, bool, error)

	// CancelIfPending cancels the order only while it is still pending. A conflict
	// error is returned when the order has already left the pending state.
	CancelIfPending(ctx context.Context, orderID string, cancellation OrderCancellation) (domain.Order, error)

	// UpdateStatus applies a fulfilment transition guarded on the expected current status.
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error)
}

// OrderListFilter describes pagination and filtering for order queries.
type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig tunes counter initialisation and bounds.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
