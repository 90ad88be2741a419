package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/payments"
	"github.com/oakmarket/api/internal/repositories"
)

func checkoutCartFixture() domain.Cart {
	return domain.Cart{
		ID:       "user-1",
		UserID:   "user-1",
		Currency: "USD",
		Items: []domain.CartItem{
			{ID: "item-1", ProductID: "prod-1", SKU: "SKU-1", Name: "Mug", Quantity: 2, UnitPrice: 1200},
			{ID: "item-2", ProductID: "prod-2", SKU: "SKU-2", Name: "Plate", Quantity: 1, UnitPrice: 800},
		},
		Estimate: &domain.CartEstimate{Subtotal: 3200, Shipping: 1000, Total: 4200},
	}
}

func TestCheckoutCreatesPendingOrderAfterAuthorization(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	var inserted domain.Order
	var authReq payments.AuthorizationRequest

	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCartFixture(), nil
		},
	}
	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	counters := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders-2026" {
				t.Fatalf("unexpected counter id %q", counterID)
			}
			return 42, nil
		},
	}
	provider := &stubAuthorizer{
		authorizeFunc: func(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error) {
			authReq = req
			return payments.Authorization{
				ExternalOrderID: "PAYPAL-9",
				ApprovalURL:     "https://paypal.test/approve/PAYPAL-9",
				Status:          payments.StatusPending,
			}, nil
		},
	}

	ids := []string{"order-ulid", "payment-ulid"}
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Counters: counters,
		Provider: provider,
		Clock:    func() time.Time { return now },
		IDGenerator: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
		ReturnURL: "https://shop.test/return",
		CancelURL: "https://shop.test/cancel",
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	result, err := service.Checkout(context.Background(), CheckoutCommand{
		UserID:  "user-1",
		Contact: &domain.OrderContact{Email: "buyer@example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.OrderNumber != "ORD-2026-000042" {
		t.Fatalf("unexpected order number %q", result.OrderNumber)
	}
	if result.ExternalOrderID != "PAYPAL-9" {
		t.Fatalf("unexpected external order id %q", result.ExternalOrderID)
	}
	if result.Amount != 4200 {
		t.Fatalf("expected total 4200, got %d", result.Amount)
	}

	if authReq.Amount != 4200 || authReq.Currency != "USD" {
		t.Fatalf("unexpected authorization request %+v", authReq)
	}
	if want := checkoutAttemptKey("user-1", now); authReq.IdempotencyKey != want {
		t.Fatalf("expected idempotency key %q, got %q", want, authReq.IdempotencyKey)
	}
	if authReq.ReturnURL != "https://shop.test/return" {
		t.Fatalf("unexpected return url %q", authReq.ReturnURL)
	}

	if inserted.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", inserted.Status)
	}
	if inserted.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", inserted.Payment.Status)
	}
	if inserted.Payment.ExternalOrderID != "PAYPAL-9" {
		t.Fatalf("unexpected payment external order id %q", inserted.Payment.ExternalOrderID)
	}
	if inserted.Totals.Subtotal != 3200 || inserted.Totals.Shipping != 1000 {
		t.Fatalf("unexpected totals %+v", inserted.Totals)
	}
	if len(inserted.Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(inserted.Items))
	}
	if inserted.Items[0].Total != 2400 {
		t.Fatalf("expected line total 2400, got %d", inserted.Items[0].Total)
	}
}

func TestCheckoutSameAttemptReusesIdempotencyKey(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	first := checkoutAttemptKey("cart-1", now)
	retry := checkoutAttemptKey("cart-1", now)
	if first != retry {
		t.Fatalf("retry of the same attempt must reuse the key: %q vs %q", first, retry)
	}

	later := checkoutAttemptKey("cart-1", now.Add(time.Second))
	if first == later {
		t.Fatal("a new attempt must derive a fresh key")
	}

	// Two buyers can submit within the same wall-clock second.
	subSecond := checkoutAttemptKey("cart-1", now.Add(200*time.Millisecond))
	if first == subSecond {
		t.Fatal("attempts in the same second must not share a key")
	}

	otherCart := checkoutAttemptKey("cart-2", now)
	if first == otherCart {
		t.Fatal("different carts must not share a key")
	}
}

func TestCheckoutDeclinedAuthorizationWritesNothing(t *testing.T) {
	now := time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC)
	inserted := false

	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCartFixture(), nil
		},
	}
	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			inserted = true
			return nil
		},
	}
	counters := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			return 7, nil
		},
	}
	provider := &stubAuthorizer{
		authorizeFunc: func(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error) {
			return payments.Authorization{}, payments.ErrAuthorizationDeclined
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Counters: counters,
		Provider: provider,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.Checkout(context.Background(), CheckoutCommand{UserID: "user-1"})
	if !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected ErrCheckoutPaymentFailed, got %v", err)
	}
	if inserted {
		t.Fatal("declined authorization must not persist an order")
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: "user-1", UserID: "user-1", Currency: "USD"}, nil
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   &stubOrderRepository{},
		Counters: &stubCounterRepository{},
		Provider: &stubAuthorizer{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	if _, err := service.Checkout(context.Background(), CheckoutCommand{UserID: "user-1"}); !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected ErrCheckoutCartEmpty, got %v", err)
	}
}

func TestCheckoutMissingCartTreatedAsEmpty(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   &stubOrderRepository{},
		Counters: &stubCounterRepository{},
		Provider: &stubAuthorizer{},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	if _, err := service.Checkout(context.Background(), CheckoutCommand{UserID: "user-1"}); !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected ErrCheckoutCartEmpty, got %v", err)
	}
}

type stubOrderRepository struct {
	insertFunc         func(ctx context.Context, order domain.Order) error
	findByIDFunc       func(ctx context.Context, orderID string) (domain.Order, error)
	findByExternalFunc func(ctx context.Context, externalOrderID string) (domain.Order, error)
	listFunc           func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	completeFunc       func(ctx context.Context, externalOrderID string, completion repositories.PaymentCompletion) (domain.Order, bool, error)
	failFunc           func(ctx context.Context, externalOrderID string, failure repositories.PaymentFailure) (domain.Order, bool, error)
	cancelFunc         func(ctx context.Context, orderID string, cancellation repositories.OrderCancellation) (domain.Order, error)
	updateStatusFunc   func(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) FindByExternalOrderID(ctx context.Context, externalOrderID string) (domain.Order, error) {
	if s.findByExternalFunc != nil {
		return s.findByExternalFunc(ctx, externalOrderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, errors.New("not implemented")
}

func (s *stubOrderRepository) CompletePaymentIfPending(ctx context.Context, externalOrderID string, completion repositories.PaymentCompletion) (domain.Order, bool, error) {
	if s.completeFunc != nil {
		return s.completeFunc(ctx, externalOrderID, completion)
	}
	return domain.Order{}, false, errors.New("not implemented")
}

func (s *stubOrderRepository) FailPaymentIfPending(ctx context.Context, externalOrderID string, failure repositories.PaymentFailure) (domain.Order, bool, error) {
	if s.failFunc != nil {
		return s.failFunc(ctx, externalOrderID, failure)
	}
	return domain.Order{}, false, errors.New("not implemented")
}

func (s *stubOrderRepository) CancelIfPending(ctx context.Context, orderID string, cancellation repositories.OrderCancellation) (domain.Order, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, orderID, cancellation)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, orderID, from, to, now)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubCounterRepository struct {
	nextFunc      func(ctx context.Context, counterID string, step int64) (int64, error)
	configureFunc func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFunc != nil {
		return s.nextFunc(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if s.configureFunc != nil {
		return s.configureFunc(ctx, counterID, cfg)
	}
	return nil
}

type stubAuthorizer struct {
	name          string
	authorizeFunc func(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error)
}

func (s *stubAuthorizer) Name() string {
	if s.name != "" {
		return s.name
	}
	return "paypal"
}

func (s *stubAuthorizer) Authorize(ctx context.Context, req payments.AuthorizationRequest) (payments.Authorization, error) {
	if s.authorizeFunc != nil {
		return s.authorizeFunc(ctx, req)
	}
	return payments.Authorization{}, errors.New("not implemented")
}
