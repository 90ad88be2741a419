package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/repositories"
)

func TestOrderServiceCancelPendingOrder(t *testing.T) {
	now := time.Date(2026, 4, 5, 15, 0, 0, 0, time.UTC)
	var cancellation repositories.OrderCancellation

	orders := &stubOrderRepository{
		findByIDFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: "order-1", UserID: "user-1", Status: domain.OrderStatusPending}, nil
		},
		cancelFunc: func(ctx context.Context, orderID string, c repositories.OrderCancellation) (domain.Order, error) {
			cancellation = c
			cancelled := now
			return domain.Order{
				ID:          "order-1",
				UserID:      "user-1",
				Status:      domain.OrderStatusCancelled,
				CancelledAt: &cancelled,
			}, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{
		Orders: orders,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	order, err := service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "order-1",
		UserID:  "user-1",
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", order.Status)
	}
	if cancellation.Reason != "changed my mind" {
		t.Fatalf("unexpected reason %q", cancellation.Reason)
	}
	if !cancellation.CancelledAt.Equal(now) {
		t.Fatalf("unexpected cancellation time %v", cancellation.CancelledAt)
	}
}

func TestOrderServiceCancelAfterPaymentConflicts(t *testing.T) {
	orders := &stubOrderRepository{
		findByIDFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: "order-1", UserID: "user-1", Status: domain.OrderStatusProcessing}, nil
		},
		cancelFunc: func(ctx context.Context, orderID string, c repositories.OrderCancellation) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{conflict: true}
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: orders})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	_, err = service.Cancel(context.Background(), CancelOrderCommand{OrderID: "order-1", UserID: "user-1"})
	if !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable, got %v", err)
	}
}

func TestOrderServiceCancelForbiddenForOtherUser(t *testing.T) {
	orders := &stubOrderRepository{
		findByIDFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: "order-1", UserID: "user-1", Status: domain.OrderStatusPending}, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: orders})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	_, err = service.Cancel(context.Background(), CancelOrderCommand{OrderID: "order-1", UserID: "intruder"})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestOrderServiceTransitionShippedFromProcessing(t *testing.T) {
	now := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

	orders := &stubOrderRepository{
		updateStatusFunc: func(ctx context.Context, orderID string, from, to domain.OrderStatus, at time.Time) (domain.Order, error) {
			if from != domain.OrderStatusProcessing || to != domain.OrderStatusShipped {
				t.Fatalf("unexpected transition %s -> %s", from, to)
			}
			shipped := at
			return domain.Order{ID: orderID, Status: to, ShippedAt: &shipped}, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{
		Orders: orders,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	order, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:  "order-1",
		Target:   domain.OrderStatusShipped,
		ActorRef: "admins/ops-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped status, got %s", order.Status)
	}
}

func TestOrderServiceTransitionRejectsNonFulfilmentTarget(t *testing.T) {
	service, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	_, err = service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: "order-1",
		Target:  domain.OrderStatusCancelled,
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestOrderServiceTransitionGuardConflict(t *testing.T) {
	orders := &stubOrderRepository{
		updateStatusFunc: func(ctx context.Context, orderID string, from, to domain.OrderStatus, at time.Time) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{conflict: true}
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: orders})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	_, err = service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID: "order-1",
		Target:  domain.OrderStatusDelivered,
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition on guard conflict, got %v", err)
	}
}

func TestOrderServiceGetOrderEnforcesOwnership(t *testing.T) {
	orders := &stubOrderRepository{
		findByIDFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: "order-1", UserID: "user-1"}, nil
		},
	}

	service, err := NewOrderService(OrderServiceDeps{Orders: orders})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	if _, err := service.GetOrder(context.Background(), "order-1", OrderReadOptions{UserID: "user-2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}

	if _, err := service.GetOrder(context.Background(), "order-1", OrderReadOptions{IncludeAdmin: true}); err != nil {
		t.Fatalf("admin read should bypass ownership, got %v", err)
	}
}

func TestOrderServiceListRequiresUser(t *testing.T) {
	service, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepository{}})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}

	if _, err := service.ListOrders(context.Background(), OrderListFilter{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}
