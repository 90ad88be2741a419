package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
	pfirestore "github.com/oakmarket/api/internal/platform/firestore"
	"github.com/oakmarket/api/internal/repositories"
)

const (
	cartCollection = "carts"
)

// CartRepository persists cart documents within Firestore, keyed by user ID.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// UpsertCart persists the cart document using the user ID as document identifier.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	cartID := strings.TrimSpace(firstCartID(cart))
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	doc := encodeCartDocument(cart, updatedAt)
	result, err := r.base.Set(ctx, cartID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := decodeCartDocument(cartID, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := decodeCartDocument(doc.ID, doc.Data)
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// ReplaceItems swaps the cart's item set and recomputed estimate in one write.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	cart, err := r.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart.Items = items
	cart.UpdatedAt = time.Now().UTC()
	return r.UpsertCart(ctx, cart)
}

// ClearCart removes all items from the cart while keeping the document around.
func (r *CartRepository) ClearCart(ctx context.Context, userID string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	cart, err := r.GetCart(ctx, uid)
	if err != nil {
		return err
	}

	cart.Items = nil
	cart.Estimate = nil
	cart.UpdatedAt = now.UTC()
	_, err = r.UpsertCart(ctx, cart)
	return err
}

func firstCartID(cart domain.Cart) string {
	if strings.TrimSpace(cart.ID) != "" {
		return strings.TrimSpace(cart.ID)
	}
	return strings.TrimSpace(cart.UserID)
}

func encodeCartDocument(cart domain.Cart, updatedAt time.Time) cartDocument {
	doc := cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Metadata:  cloneAnyMap(cart.Metadata),
		UpdatedAt: updatedAt,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  strings.ToUpper(strings.TrimSpace(item.Currency)),
			Metadata:  cloneAnyMap(item.Metadata),
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	if cart.Estimate != nil {
		doc.Estimate = &cartEstimateDocument{
			Subtotal: cart.Estimate.Subtotal,
			Shipping: cart.Estimate.Shipping,
			Total:    cart.Estimate.Total,
		}
	}
	return doc
}

func decodeCartDocument(id string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		ID:        id,
		UserID:    id,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Items:     []domain.CartItem{},
		Metadata:  cloneAnyMap(doc.Metadata),
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
			Metadata:  cloneAnyMap(item.Metadata),
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	if doc.Estimate != nil {
		cart.Estimate = &domain.CartEstimate{
			Subtotal: doc.Estimate.Subtotal,
			Shipping: doc.Estimate.Shipping,
			Total:    doc.Estimate.Total,
		}
	}
	return cart
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type cartDocument struct {
	Currency  string                `firestore:"currency"`
	Items     []cartItemDocument    `firestore:"items,omitempty"`
	Estimate  *cartEstimateDocument `firestore:"estimate,omitempty"`
	Metadata  map[string]any        `firestore:"metadata,omitempty"`
	UpdatedAt time.Time             `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string         `firestore:"id"`
	ProductID string         `firestore:"productId"`
	SKU       string         `firestore:"sku,omitempty"`
	Name      string         `firestore:"name,omitempty"`
	Quantity  int            `firestore:"quantity"`
	UnitPrice int64          `firestore:"unitPrice"`
	Currency  string         `firestore:"currency,omitempty"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	AddedAt   time.Time      `firestore:"addedAt"`
	UpdatedAt *time.Time     `firestore:"updatedAt,omitempty"`
}

type cartEstimateDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
