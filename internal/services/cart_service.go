package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartItemQuantity = 99

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartItemNotFound indicates the referenced line item is not in the cart.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ShippingQuoter computes the shipping charge for a cart in minor currency units.
type ShippingQuoter interface {
	Quote(ctx context.Context, cart Cart) (int64, error)
}

// FlatRateShipping charges a fixed amount for any non-empty cart.
type FlatRateShipping struct {
	Amount int64
}

// Quote returns the flat rate, or zero for an empty cart.
func (f FlatRateShipping) Quote(_ context.Context, cart Cart) (int64, error) {
	if len(cart.Items) == 0 {
		return 0, nil
	}
	return f.Amount, nil
}

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Shipping        ShippingQuoter
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo     repositories.CartRepository
	shipping ShippingQuoter
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}

	shipping := deps.Shipping
	if shipping == nil {
		shipping = FlatRateShipping{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	service := &cartService{
		repo:     deps.Repository,
		shipping: shipping,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: defaultCurrency,
		logger:   logger,
	}
	return service, nil
}

// GetOrCreateCart loads the active cart for the user, creating an empty cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return s.persistCart(ctx, Cart{
				ID:       uid,
				UserID:   uid,
				Currency: s.currency,
			})
		}
		return Cart{}, s.wrapCartError(err)
	}
	return s.withEstimate(ctx, cart)
}

// AddItem appends a line item, merging quantity when the product is already present.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	switch {
	case uid == "":
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	case productID == "":
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	case cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity:
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	case cmd.UnitPrice < 0:
		return Cart{}, fmt.Errorf("%w: unit price must not be negative", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = cart.Currency
	}
	if currency != cart.Currency && len(cart.Items) > 0 {
		return Cart{}, fmt.Errorf("%w: cart currency is %s", ErrCartInvalidInput, cart.Currency)
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID && cart.Items[i].SKU == strings.TrimSpace(cmd.SKU) {
			quantity := cart.Items[i].Quantity + cmd.Quantity
			if quantity > maxCartItemQuantity {
				quantity = maxCartItemQuantity
			}
			cart.Items[i].Quantity = quantity
			cart.Items[i].UnitPrice = cmd.UnitPrice
			updated := now
			cart.Items[i].UpdatedAt = &updated
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        s.newID(),
			ProductID: productID,
			SKU:       strings.TrimSpace(cmd.SKU),
			Name:      strings.TrimSpace(cmd.Name),
			Quantity:  cmd.Quantity,
			UnitPrice: cmd.UnitPrice,
			Currency:  currency,
			Metadata:  cmd.Metadata,
			AddedAt:   now,
		})
	}
	if cart.Currency == "" {
		cart.Currency = currency
	}
	cart.UpdatedAt = now

	saved, err := s.persistCart(ctx, cart)
	if err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"userId":    uid,
		"productId": productID,
		"quantity":  cmd.Quantity,
	})
	return saved, nil
}

// UpdateItemQuantity sets the quantity for an existing line item. A quantity of
// zero removes the item.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	switch {
	case uid == "":
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	case itemID == "":
		return Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	case cmd.Quantity < 0 || cmd.Quantity > maxCartItemQuantity:
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	found := false
	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ID != itemID {
			items = append(items, item)
			continue
		}
		found = true
		if cmd.Quantity == 0 {
			continue
		}
		item.Quantity = cmd.Quantity
		updated := now
		item.UpdatedAt = &updated
		items = append(items, item)
	}
	if !found {
		return Cart{}, ErrCartItemNotFound
	}
	cart.Items = items
	cart.UpdatedAt = now

	return s.persistCart(ctx, cart)
}

// RemoveItem drops a line item from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	return s.UpdateItemQuantity(ctx, UpdateCartItemCommand{
		UserID:   cmd.UserID,
		ItemID:   cmd.ItemID,
		Quantity: 0,
	})
}

// ClearCart removes every item from the user's cart. Clearing an absent cart is a no-op.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	if err := s.repo.ClearCart(ctx, uid, s.now()); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.wrapCartError(err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"userId": uid})
	return nil
}

func (s *cartService) loadCart(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, s.wrapCartError(err)
	}
	return cart, nil
}

func (s *cartService) persistCart(ctx context.Context, cart Cart) (Cart, error) {
	estimated, err := s.withEstimate(ctx, cart)
	if err != nil {
		return Cart{}, err
	}
	if estimated.UpdatedAt.IsZero() {
		estimated.UpdatedAt = s.now()
	}
	saved, err := s.repo.UpsertCart(ctx, estimated)
	if err != nil {
		return Cart{}, s.wrapCartError(err)
	}
	return saved, nil
}

// withEstimate recomputes the server-side totals. Client-supplied totals are
// never trusted.
func (s *cartService) withEstimate(ctx context.Context, cart Cart) (Cart, error) {
	var subtotal int64
	for _, item := range cart.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	shipping, err := s.shipping.Quote(ctx, cart)
	if err != nil {
		return Cart{}, fmt.Errorf("%w: shipping quote failed", ErrCartUnavailable)
	}
	cart.Estimate = &domain.CartEstimate{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal + shipping,
	}
	return cart, nil
}

func (s *cartService) wrapCartError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

var _ CartService = (*cartService)(nil)
