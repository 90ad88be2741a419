package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/platform/auth"
	"github.com/oakmarket/api/internal/services"
)

func cartRouter(h *CartHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", h.Routes)
	return router
}

func TestCartHandlersGetCart(t *testing.T) {
	added := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	service := &stubCartService{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user %q", userID)
			}
			return domain.Cart{
				ID:       "user-7",
				Currency: "USD",
				Items: []domain.CartItem{{
					ID:        "item-1",
					ProductID: "prod-1",
					Quantity:  2,
					UnitPrice: 1200,
					Currency:  "USD",
					AddedAt:   added,
				}},
				Estimate: &domain.CartEstimate{Subtotal: 2400, Shipping: 1000, Total: 3400},
			}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := cartRouter(handler)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/cart/", nil), &auth.Identity{UID: "user-7"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.Estimate == nil || resp.Estimate.Total != 3400 {
		t.Fatalf("unexpected estimate %+v", resp.Estimate)
	}
}

func TestCartHandlersAddItem(t *testing.T) {
	var gotCmd services.AddCartItemCommand
	service := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error) {
			gotCmd = cmd
			return domain.Cart{ID: cmd.UserID, Currency: cmd.Currency}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := cartRouter(handler)

	body := bytes.NewReader([]byte(`{"productId":"prod-1","quantity":3,"unitPrice":450,"currency":"USD"}`))
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/cart/items", body), &auth.Identity{UID: "user-7"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotCmd.ProductID != "prod-1" || gotCmd.Quantity != 3 || gotCmd.UnitPrice != 450 {
		t.Fatalf("unexpected command %+v", gotCmd)
	}
}

func TestCartHandlersAddItemRejectsInvalidBody(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	router := cartRouter(handler)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewReader([]byte("not json"))), &auth.Identity{UID: "user-7"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateUnknownItem(t *testing.T) {
	service := &stubCartService{
		updateFunc: func(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartItemNotFound
		},
	}

	handler := NewCartHandlers(nil, service)
	router := cartRouter(handler)

	body := bytes.NewReader([]byte(`{"quantity":1}`))
	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/cart/items/missing", body), &auth.Identity{UID: "user-7"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "cart_not_found" {
		t.Fatalf("unexpected error code %v", resp["error"])
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFunc: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := cartRouter(handler)

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/cart/", nil), &auth.Identity{UID: "user-7"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatal("expected clear to be invoked")
	}
}

func TestCartHandlersUnauthenticated(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	router := cartRouter(handler)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

type stubCartService struct {
	getFunc    func(ctx context.Context, userID string) (domain.Cart, error)
	addFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error)
	updateFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error)
	removeFunc func(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error)
	clearFunc  func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (domain.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (domain.Cart, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, cmd)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return errors.New("not implemented")
}
