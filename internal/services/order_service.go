package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderUnavailable indicates the order service dependencies are unavailable.
	ErrOrderUnavailable = errors.New("order service: unavailable")
	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderForbidden indicates the caller does not own the requested order.
	ErrOrderForbidden = errors.New("order service: forbidden")
	// ErrOrderNotCancellable indicates the order has left the pending state and can no longer be cancelled.
	ErrOrderNotCancellable = errors.New("order service: order not cancellable")
	// ErrOrderInvalidTransition indicates the requested status change is not allowed from the current state.
	ErrOrderInvalidTransition = errors.New("order service: invalid status transition")
)

// orderStateTransitions defines the forward fulfilment path. Cancellation is
// handled separately because it is only reachable from pending.
var orderStateTransitions = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderStatusProcessing: domain.OrderStatusShipped,
	domain.OrderStatusShipped:    domain.OrderStatusDelivered,
}

// OrderServiceDeps wires repository and clock dependencies for order flows.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// ListOrders returns the caller's orders ordered by creation time, newest first.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	if strings.TrimSpace(filter.UserID) == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.wrapOrderError(err)
	}
	return page, nil
}

// GetOrder loads a single order and enforces ownership unless the caller is an admin.
func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.wrapOrderError(err)
	}
	if !opts.IncludeAdmin && order.UserID != strings.TrimSpace(opts.UserID) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

// TransitionStatus applies an admin fulfilment transition. Only the forward
// processing to shipped to delivered path is allowed here.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var from domain.OrderStatus
	found := false
	for current, next := range orderStateTransitions {
		if next == cmd.Target {
			from = current
			found = true
			break
		}
	}
	if !found {
		return Order{}, fmt.Errorf("%w: %s is not a fulfilment target", ErrOrderInvalidTransition, cmd.Target)
	}

	order, err := s.orders.UpdateStatus(ctx, id, from, cmd.Target, s.now())
	if err != nil {
		if isRepoConflict(err) {
			return Order{}, fmt.Errorf("%w: order is not %s", ErrOrderInvalidTransition, from)
		}
		return Order{}, s.wrapOrderError(err)
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": order.ID,
		"status":  string(order.Status),
		"actor":   cmd.ActorRef,
	})
	return order, nil
}

// Cancel cancels an order that is still pending. Once payment has completed the
// order is in fulfilment and cancellation is refused.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	existing, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.wrapOrderError(err)
	}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" && existing.UserID != uid {
		return Order{}, ErrOrderForbidden
	}

	cancelledAt := s.now()
	if cmd.Now != nil {
		cancelledAt = cmd.Now.UTC()
	}
	order, err := s.orders.CancelIfPending(ctx, id, repositories.OrderCancellation{
		Reason:      strings.TrimSpace(cmd.Reason),
		CancelledAt: cancelledAt,
	})
	if err != nil {
		if isRepoConflict(err) {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderNotCancellable, err)
		}
		return Order{}, s.wrapOrderError(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
		"reason":  cmd.Reason,
	})
	return order, nil
}

func (s *orderService) wrapOrderError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

var _ OrderService = (*orderService)(nil)
