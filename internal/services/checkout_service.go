package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/payments"
	"github.com/oakmarket/api/internal/repositories"
)

const orderNumberCounter = "orders"

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartEmpty indicates the cart has no items to order.
	ErrCheckoutCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutPaymentFailed indicates the provider refused to authorise the payment.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment authorization failed")
)

// checkoutAuthorizer abstracts the payment provider for easier testing.
type checkoutAuthorizer interface {
	Name() string
	Authorize(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Provider    checkoutAuthorizer
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
	ReturnURL   string
	CancelURL   string
}

type checkoutService struct {
	carts     repositories.CartRepository
	orders    repositories.OrderRepository
	counters  repositories.CounterRepository
	provider  checkoutAuthorizer
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	newID     func() string
	returnURL string
	cancelURL string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		carts:     deps.Carts,
		orders:    deps.Orders,
		counters:  deps.Counters,
		provider:  deps.Provider,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		newID:     idGen,
		returnURL: strings.TrimSpace(deps.ReturnURL),
		cancelURL: strings.TrimSpace(deps.CancelURL),
	}, nil
}

// Checkout validates the cart, authorises payment with the provider, and persists
// the provisional order. The order and payment records are only written after a
// successful authorisation, so a declined authorisation leaves no trace beyond a
// log entry.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if s == nil || s.carts == nil || s.orders == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, ErrCheckoutCartEmpty
		}
		return CheckoutResult{}, fmt.Errorf("%w: loading cart: %v", ErrCheckoutUnavailable, err)
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, ErrCheckoutCartEmpty
	}

	totals, items, err := snapshotCart(cart)
	if err != nil {
		return CheckoutResult{}, err
	}

	now := s.now()
	orderID := s.newID()
	orderNumber, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: allocating order number: %v", ErrCheckoutUnavailable, err)
	}

	returnURL := strings.TrimSpace(cmd.ReturnURL)
	if returnURL == "" {
		returnURL = s.returnURL
	}
	cancelURL := strings.TrimSpace(cmd.CancelURL)
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	auth, err := s.provider.Authorize(ctx, payments.AuthorizationRequest{
		ReferenceID:    orderID,
		Amount:         totals.Total,
		Currency:       cart.Currency,
		Description:    fmt.Sprintf("Order %s", orderNumber),
		IdempotencyKey: checkoutAttemptKey(cart.ID, now),
		ReturnURL:      returnURL,
		CancelURL:      cancelURL,
	})
	if err != nil {
		s.logger(ctx, "checkout.authorization.failed", map[string]any{
			"userId": uid,
			"cartId": cart.ID,
			"amount": totals.Total,
			"error":  err.Error(),
		})
		if errors.Is(err, payments.ErrAuthorizationDeclined) {
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
		}
		return CheckoutResult{}, fmt.Errorf("%w: authorizing payment: %v", ErrCheckoutUnavailable, err)
	}

	cartRef := cart.ID
	placedAt := now
	order := domain.Order{
		ID:          orderID,
		OrderNumber: orderNumber,
		UserID:      uid,
		CartRef:     &cartRef,
		Status:      domain.OrderStatusPending,
		Currency:    cart.Currency,
		Totals:      totals,
		Items:       items,
		Contact:     cmd.Contact,
		Payment: domain.Payment{
			ID:              s.newID(),
			Provider:        s.provider.Name(),
			ExternalOrderID: auth.ExternalOrderID,
			Status:          domain.PaymentStatusPending,
			Amount:          totals.Total,
			Currency:        cart.Currency,
			ApprovalURL:     auth.ApprovalURL,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		CreatedAt: now,
		UpdatedAt: now,
		PlacedAt:  &placedAt,
	}
	if cmd.Shipping != nil {
		shipping := *cmd.Shipping
		order.ShippingAddress = &shipping
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: persisting order: %v", ErrCheckoutUnavailable, err)
	}

	s.logger(ctx, "checkout.order.created", map[string]any{
		"userId":          uid,
		"orderId":         order.ID,
		"orderNumber":     order.OrderNumber,
		"externalOrderId": auth.ExternalOrderID,
		"amount":          totals.Total,
		"currency":        cart.Currency,
	})

	return CheckoutResult{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		ExternalOrderID: auth.ExternalOrderID,
		ApprovalURL:     auth.ApprovalURL,
		Amount:          totals.Total,
		Currency:        cart.Currency,
	}, nil
}

// snapshotCart freezes the cart lines into order line items and recomputes the
// totals server-side from unit prices.
func snapshotCart(cart Cart) (OrderTotals, []OrderLineItem, error) {
	var subtotal int64
	items := make([]OrderLineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return OrderTotals{}, nil, fmt.Errorf("%w: item %s has invalid quantity", ErrCheckoutInvalidInput, item.ID)
		}
		if item.UnitPrice < 0 {
			return OrderTotals{}, nil, fmt.Errorf("%w: item %s has negative price", ErrCheckoutInvalidInput, item.ID)
		}
		lineTotal := item.UnitPrice * int64(item.Quantity)
		subtotal += lineTotal
		items = append(items, OrderLineItem{
			ProductRef: item.ProductID,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      lineTotal,
			Metadata:   item.Metadata,
		})
	}

	var shipping int64
	if cart.Estimate != nil {
		shipping = cart.Estimate.Shipping
	}
	return OrderTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal + shipping,
	}, items, nil
}

func (s *checkoutService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, fmt.Sprintf("%s-%d", orderNumberCounter, now.Year()), 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%04d-%06d", now.Year(), seq), nil
}

// checkoutAttemptKey derives the provider idempotency key from the cart and the
// attempt timestamp, so retries of the same submission reuse the key while a new
// attempt gets a fresh one.
func checkoutAttemptKey(cartID string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", cartID, at.UnixNano())))
	return hex.EncodeToString(sum[:16])
}

var _ CheckoutService = (*checkoutService)(nil)
