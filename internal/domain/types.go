package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

const (
	// HealthStatusOK indicates the dependency responded normally.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates the dependency responded with elevated latency or partial failure.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the dependency is unreachable or failing.
	HealthStatusError = "error"
)

// SystemHealthCheck captures the probe result for a single dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Cart aggregates the mutable shopping cart state for a user.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	Estimate  *CartEstimate
	Metadata  map[string]any
	UpdatedAt time.Time
}

// CartItem stores a single SKU entry within a cart.
type CartItem struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	Currency  string
	Metadata  map[string]any
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// CartEstimate summarizes totals calculated for the cart in minor currency units.
type CartEstimate struct {
	Subtotal int64
	Shipping int64
	Total    int64
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment completion.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates payment completed and fulfilment can begin.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been shipped.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order has been delivered to the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before payment completed.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates lifecycle states for the payment attached to an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the payment was authorised but not yet captured.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted indicates funds were captured.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed indicates the provider declined or voided the payment.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the captured payment was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order captures order headers returned to handlers/services. The payment
// sub-record is embedded one-to-one and shares the order's lifecycle.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	CartRef         *string
	Status          OrderStatus
	Currency        string
	Totals          OrderTotals
	Items           []OrderLineItem
	ShippingAddress *Address
	Contact         *OrderContact
	Payment         Payment
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PlacedAt        *time.Time
	CompletedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    *string
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Shipping int64
	Total    int64
}

// OrderLineItem mirrors cart items snapshotted at the time of checkout.
type OrderLineItem struct {
	ProductRef string
	SKU        string
	Name       string
	Quantity   int
	UnitPrice  int64
	Total      int64
	Metadata   map[string]any
}

// OrderContact stores user contact snapshot for notifications.
type OrderContact struct {
	Email string
	Phone string
}

// Payment encapsulates the provider references and settlement state for an order.
type Payment struct {
	ID              string
	Provider        string
	ExternalOrderID string
	CaptureID       string
	Status          PaymentStatus
	Amount          int64
	Currency        string
	ApprovalURL     string
	CapturedAt      *time.Time
	FailedAt        *time.Time
	RefundedAt      *time.Time
	FailureReason   *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Address stores a shipping destination snapshot.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}
