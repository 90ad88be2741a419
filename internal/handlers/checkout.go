package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/platform/auth"
	"github.com/oakmarket/api/internal/platform/httpx"
	"github.com/oakmarket/api/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

type checkoutRequest struct {
	ReturnURL string          `json:"returnUrl"`
	CancelURL string          `json:"cancelUrl"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Shipping  *addressPayload `json:"shippingAddress"`
}

type checkoutResponse struct {
	OrderID         string `json:"orderId"`
	OrderNumber     string `json:"orderNumber"`
	ExternalOrderID string `json:"externalOrderId"`
	ApprovalURL     string `json:"approvalUrl"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// CheckoutHandlers exposes the checkout endpoint creating provisional orders.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs handlers enforcing Firebase authentication before starting checkout.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.checkoutCart)
}

func (h *CheckoutHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req checkoutRequest
	body, err := readLimitedBody(r, maxCheckoutBodySize)
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

	cmd := services.CheckoutCommand{
		UserID:    strings.TrimSpace(identity.UID),
		ReturnURL: strings.TrimSpace(req.ReturnURL),
		CancelURL: strings.TrimSpace(req.CancelURL),
		Shipping:  parseAddressPayload(req.Shipping),
	}
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if email != "" || phone != "" {
		cmd.Contact = &domain.OrderContact{Email: email, Phone: phone}
	}

	result, err := h.checkout.Checkout(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		OrderID:         result.OrderID,
		OrderNumber:     result.OrderNumber,
		ExternalOrderID: result.ExternalOrderID,
		ApprovalURL:     result.ApprovalURL,
		Amount:          result.Amount,
		Currency:        result.Currency,
	})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items to order", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_authorization_failed", "payment provider declined the authorization", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
