package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/platform/auth"
	"github.com/oakmarket/api/internal/platform/httpx"
	"github.com/oakmarket/api/internal/platform/pagination"
	"github.com/oakmarket/api/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderCancelBodySize = 4 * 1024
)

var adminStatusTargets = map[string]domain.OrderStatus{
	"shipped":   domain.OrderStatusShipped,
	"delivered": domain.OrderStatusDelivered,
}

// orderListFilterFields declares the filter grammar accepted by the list
// endpoint: repeatable status equality and a createdAt range.
var orderListFilterFields = map[string][]pagination.Operator{
	"status":    {pagination.OperatorEqual},
	"createdAt": {pagination.OperatorGreaterEqual, pagination.OperatorLessEqual},
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type orderPaymentPayload struct {
	ID              string `json:"id"`
	Provider        string `json:"provider"`
	ExternalOrderID string `json:"externalOrderId"`
	CaptureID       string `json:"captureId,omitempty"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ApprovalURL     string `json:"approvalUrl,omitempty"`
	CapturedAt      string `json:"capturedAt,omitempty"`
	FailedAt        string `json:"failedAt,omitempty"`
	FailureReason   string `json:"failureReason,omitempty"`
}

type orderLineItemPayload struct {
	ProductRef string `json:"productRef"`
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	Total      int64  `json:"total"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type orderSummaryPayload struct {
	ID          string             `json:"id"`
	OrderNumber string             `json:"orderNumber"`
	Status      string             `json:"status"`
	Currency    string             `json:"currency"`
	Totals      orderTotalsPayload `json:"totals"`
	CreatedAt   string             `json:"createdAt,omitempty"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	Status          string                 `json:"status"`
	Currency        string                 `json:"currency"`
	Totals          orderTotalsPayload     `json:"totals"`
	Items           []orderLineItemPayload `json:"items"`
	Payment         orderPaymentPayload    `json:"payment"`
	ShippingAddress *addressPayload        `json:"shippingAddress,omitempty"`
	CreatedAt       string                 `json:"createdAt,omitempty"`
	CompletedAt     string                 `json:"completedAt,omitempty"`
	ShippedAt       string                 `json:"shippedAt,omitempty"`
	DeliveredAt     string                 `json:"deliveredAt,omitempty"`
	CancelledAt     string                 `json:"cancelledAt,omitempty"`
	CancelReason    string                 `json:"cancelReason,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

// OrderHandlers exposes order read and cancellation endpoints for authenticated users.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

// AdminRoutes registers the fulfilment transition endpoints for back-office staff.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/orders/{orderID}/status", h.updateStatus)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize:     defaultOrderPageSize,
		MaxPageSize:         maxOrderPageSize,
		AllowedFilterFields: orderListFilterFields,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID: uid,
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	for _, f := range params.Filters {
		switch f.Field {
		case "status":
			filter.Status = append(filter.Status, strings.ToLower(f.Value))
		case "createdAt":
			ts, err := time.Parse(time.RFC3339, f.Value)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdAt filter must be a valid RFC3339 timestamp", http.StatusBadRequest))
				return
			}
			if f.Op == pagination.OperatorGreaterEqual {
				filter.DateRange.From = &ts
			} else {
				filter.DateRange.To = &ts
			}
		}
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{UserID: uid})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		UserID:  uid,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || !identity.HasRole("admin") {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target, ok := adminStatusTargets[strings.ToLower(strings.TrimSpace(req.Status))]
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be shipped or delivered", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:  orderID,
		Target:   target,
		ActorRef: strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	payload := orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		Items: make([]orderLineItemPayload, 0, len(order.Items)),
		Payment: orderPaymentPayload{
			ID:              order.Payment.ID,
			Provider:        order.Payment.Provider,
			ExternalOrderID: order.Payment.ExternalOrderID,
			CaptureID:       order.Payment.CaptureID,
			Status:          string(order.Payment.Status),
			Amount:          order.Payment.Amount,
			Currency:        order.Payment.Currency,
			ApprovalURL:     order.Payment.ApprovalURL,
			CapturedAt:      formatOptionalTime(order.Payment.CapturedAt),
			FailedAt:        formatOptionalTime(order.Payment.FailedAt),
		},
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		CompletedAt:     formatOptionalTime(order.CompletedAt),
		ShippedAt:       formatOptionalTime(order.ShippedAt),
		DeliveredAt:     formatOptionalTime(order.DeliveredAt),
		CancelledAt:     formatOptionalTime(order.CancelledAt),
	}
	if order.Payment.FailureReason != nil {
		payload.Payment.FailureReason = *order.Payment.FailureReason
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderLineItemPayload{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
		})
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotCancellable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_cancellable", "order can no longer be cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
