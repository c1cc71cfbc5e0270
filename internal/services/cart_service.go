package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pasar/internal/apperror"
	"pasar/internal/logger"
	"pasar/internal/models"
	"pasar/internal/repositories"

	"go.uber.org/zap"
)

// cartAttempts bounds how often a cart write is retried after losing a
// version race.
const cartAttempts = 5

// CartOwner identifies a cart by customer or, for guests, by session. Exactly
// one field is set.
type CartOwner struct {
	CustomerID string
	SessionID  string
}

func (o CartOwner) validate() error {
	if (o.CustomerID == "") == (o.SessionID == "") {
		return apperror.Validation("cart owner needs exactly one of customer id and session id")
	}
	return nil
}

func (o CartOwner) isGuest() bool {
	return o.CustomerID == ""
}

// CartDiscounter prices a coupon against a cart.
type CartDiscounter interface {
	CartDiscount(ctx context.Context, cart *models.Cart, code string) (int64, error)
}

// CartDiscountFunc adapts a function to CartDiscounter.
type CartDiscountFunc func(ctx context.Context, cart *models.Cart, code string) (int64, error)

func (f CartDiscountFunc) CartDiscount(ctx context.Context, cart *models.Cart, code string) (int64, error) {
	return f(ctx, cart, code)
}

// AddItemInput is a request to put a product into the cart.
type AddItemInput struct {
	ProductID string            `json:"productId" validate:"required"`
	VariantID string            `json:"variantId,omitempty"`
	Quantity  int               `json:"quantity" validate:"gt=0"`
	Options   map[string]string `json:"selectedOptions,omitempty"`
}

// MergeResult reports the merged cart and the guest lines that could not be
// carried over in full.
type MergeResult struct {
	Cart    *models.Cart             `json:"cart"`
	Skipped []apperror.StockShortage `json:"skipped,omitempty"`
}

// CartService manages carts. It never reserves stock; availability is only
// checked.
type CartService struct {
	carts     repositories.CartRepository
	products  repositories.ProductRepository
	inventory *InventoryService
	discounts CartDiscounter
	guestTTL  time.Duration
	now       func() time.Time
}

// NewCartService creates a new CartService. discounts may be nil, which
// disables coupons.
func NewCartService(carts repositories.CartRepository, products repositories.ProductRepository, inventory *InventoryService, discounts CartDiscounter, guestTTL time.Duration) *CartService {
	return &CartService{
		carts:     carts,
		products:  products,
		inventory: inventory,
		discounts: discounts,
		guestTTL:  guestTTL,
		now:       time.Now,
	}
}

// GetCart returns the owner's cart, or an empty unsaved one. An expired guest
// cart reads as empty.
func (s *CartService) GetCart(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	return s.load(ctx, owner)
}

// AddItem adds quantity of a product, merging into an existing line for the
// same product and variant.
func (s *CartService) AddItem(ctx context.Context, owner CartOwner, in AddItemInput) (*models.Cart, error) {
	if in.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	product, variant, err := s.purchasable(ctx, in.ProductID, in.VariantID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, func(cart *models.Cart) error {
		idx := lineIndex(cart, in.ProductID, in.VariantID)
		want := in.Quantity
		if idx >= 0 {
			want += cart.Items[idx].Quantity
		}
		if err := s.ensureAvailable(ctx, product, variant, want); err != nil {
			return err
		}
		if idx >= 0 {
			cart.Items[idx].Quantity = want
			if in.Options != nil {
				cart.Items[idx].SelectedOptions = in.Options
			}
			return nil
		}
		cart.Items = append(cart.Items, models.CartItem{
			ProductID:       product.ID,
			VariantID:       in.VariantID,
			SellerID:        product.SellerID,
			Quantity:        in.Quantity,
			Price:           product.UnitPrice(variant),
			PointsPrice:     product.PointsPrice,
			SelectedOptions: in.Options,
			AddedAt:         s.now(),
		})
		return nil
	})
}

// UpdateItemQuantity sets a line's quantity; zero or less removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, owner CartOwner, productID, variantID string, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, owner, productID, variantID)
	}
	product, variant, err := s.purchasable(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, owner, func(cart *models.Cart) error {
		idx := lineIndex(cart, productID, variantID)
		if idx < 0 {
			return apperror.NotFound("item %s is not in the cart", describeItem(productID, variantID))
		}
		if err := s.ensureAvailable(ctx, product, variant, quantity); err != nil {
			return err
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
}

// RemoveItem drops the line for a product and variant.
func (s *CartService) RemoveItem(ctx context.Context, owner CartOwner, productID, variantID string) (*models.Cart, error) {
	return s.mutate(ctx, owner, func(cart *models.Cart) error {
		idx := lineIndex(cart, productID, variantID)
		if idx < 0 {
			return apperror.NotFound("item %s is not in the cart", describeItem(productID, variantID))
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
}

// Clear empties the cart and drops its coupon.
func (s *CartService) Clear(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	return s.mutate(ctx, owner, func(cart *models.Cart) error {
		cart.Items = nil
		cart.CouponCode = nil
		cart.Discount = 0
		return nil
	})
}

// RemoveOrderedLines takes the quantities that became an order out of the
// cart. Lines added or raised while the order was being placed keep whatever
// was not ordered.
func (s *CartService) RemoveOrderedLines(ctx context.Context, owner CartOwner, ordered []models.CartItem) (*models.Cart, error) {
	return s.mutate(ctx, owner, func(cart *models.Cart) error {
		for _, o := range ordered {
			idx := lineIndex(cart, o.ProductID, o.VariantID)
			if idx < 0 {
				continue
			}
			if cart.Items[idx].Quantity > o.Quantity {
				cart.Items[idx].Quantity -= o.Quantity
				continue
			}
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		}
		return nil
	})
}

// ApplyCoupon prices code against the cart and stores it.
func (s *CartService) ApplyCoupon(ctx context.Context, owner CartOwner, code string) (*models.Cart, error) {
	if code == "" {
		return nil, apperror.Validation("coupon code is required")
	}
	if s.discounts == nil {
		return nil, apperror.InvalidState("coupons are not available")
	}
	return s.mutate(ctx, owner, func(cart *models.Cart) error {
		if len(cart.Items) == 0 {
			return apperror.InvalidState("cart is empty")
		}
		cart.Recalculate()
		discount, err := s.discounts.CartDiscount(ctx, cart, code)
		if err != nil {
			return err
		}
		cart.CouponCode = &code
		cart.Discount = discount
		return nil
	})
}

// RemoveCoupon drops the applied coupon.
func (s *CartService) RemoveCoupon(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	return s.mutate(ctx, owner, func(cart *models.Cart) error {
		cart.CouponCode = nil
		cart.Discount = 0
		return nil
	})
}

// MergeGuestCart moves a guest session's lines into the customer's cart and
// deletes the guest cart. Quantities are summed; a line that no longer fits
// the available stock is capped or dropped and reported.
func (s *CartService) MergeGuestCart(ctx context.Context, sessionID, customerID string) (*MergeResult, error) {
	guestOwner := CartOwner{SessionID: sessionID}
	customer := CartOwner{CustomerID: customerID}
	if err := guestOwner.validate(); err != nil {
		return nil, err
	}
	if err := customer.validate(); err != nil {
		return nil, err
	}

	guest, err := s.load(ctx, guestOwner)
	if err != nil {
		return nil, err
	}
	if len(guest.Items) == 0 {
		cart, err := s.load(ctx, customer)
		if err != nil {
			return nil, err
		}
		s.dropGuest(ctx, guest)
		return &MergeResult{Cart: cart}, nil
	}

	var skipped []apperror.StockShortage
	cart, err := s.mutate(ctx, customer, func(cart *models.Cart) error {
		skipped = skipped[:0]
		for _, line := range guest.Items {
			idx := lineIndex(cart, line.ProductID, line.VariantID)
			want := line.Quantity
			if idx >= 0 {
				want += cart.Items[idx].Quantity
			}
			available := 0
			if avail, err := s.inventory.CheckAvailability(ctx, line.ProductID, line.VariantID, want); err == nil {
				available = avail.Available
			} else if !errors.Is(err, apperror.ErrNotFound) {
				return err
			}
			if available < want {
				skipped = append(skipped, apperror.StockShortage{
					ProductID: line.ProductID,
					VariantID: line.VariantID,
					Requested: want,
					Available: available,
				})
				want = available
			}
			switch {
			case idx >= 0 && want > 0:
				cart.Items[idx].Quantity = want
			case idx >= 0:
				cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
			case want > 0:
				line.Quantity = want
				cart.Items = append(cart.Items, line)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dropGuest(ctx, guest)
	return &MergeResult{Cart: cart, Skipped: skipped}, nil
}

func (s *CartService) dropGuest(ctx context.Context, guest *models.Cart) {
	if guest.Version == 0 {
		return
	}
	if err := s.carts.Delete(ctx, guest.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.FromCtx(ctx).Warn("failed to delete merged guest cart", zap.String("cart_id", guest.ID), zap.Error(err))
	}
}

// mutate loads fresh state, applies fn, reprices and saves. A lost version race
// is retried from a fresh read.
func (s *CartService) mutate(ctx context.Context, owner CartOwner, fn func(cart *models.Cart) error) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	log := logger.FromCtx(ctx).With(zap.String("layer", "service"), zap.String("method", "CartService.mutate"))

	for attempt := 0; attempt < cartAttempts; attempt++ {
		cart, err := s.load(ctx, owner)
		if err != nil {
			return nil, err
		}
		if err := fn(cart); err != nil {
			return nil, err
		}
		s.reprice(ctx, log, cart)
		if owner.isGuest() {
			exp := s.now().Add(s.guestTTL)
			cart.ExpiresAt = &exp
		}

		err = s.carts.Save(ctx, cart)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, repositories.ErrStaleVersion) {
			return nil, fmt.Errorf("failed to save cart: %w", err)
		}
		log.Debug("cart version conflict, retrying", zap.Int("attempt", attempt+1))
	}
	return nil, apperror.Conflict("cart was modified concurrently, try again")
}

// reprice recomputes the coupon discount and totals. A coupon that no longer
// applies is dropped.
func (s *CartService) reprice(ctx context.Context, log *zap.Logger, cart *models.Cart) {
	cart.Recalculate()
	if cart.CouponCode == nil {
		cart.Discount = 0
		cart.Recalculate()
		return
	}
	if s.discounts == nil || len(cart.Items) == 0 {
		cart.CouponCode = nil
		cart.Discount = 0
		cart.Recalculate()
		return
	}
	discount, err := s.discounts.CartDiscount(ctx, cart, *cart.CouponCode)
	if err != nil {
		log.Info("coupon no longer applies", zap.String("coupon", *cart.CouponCode), zap.Error(err))
		cart.CouponCode = nil
		discount = 0
	}
	cart.Discount = discount
	cart.Recalculate()
}

func (s *CartService) load(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	var (
		cart *models.Cart
		err  error
	)
	if owner.isGuest() {
		cart, err = s.carts.GetBySession(ctx, owner.SessionID)
	} else {
		cart, err = s.carts.GetByCustomer(ctx, owner.CustomerID)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		cart = &models.Cart{Items: []models.CartItem{}}
		if owner.isGuest() {
			cart.SessionID = &owner.SessionID
		} else {
			cart.CustomerID = &owner.CustomerID
		}
		return cart, nil
	}
	if err != nil {
		return nil, err
	}
	if cart.ExpiresAt != nil && !cart.ExpiresAt.After(s.now()) {
		cart.Items = []models.CartItem{}
		cart.CouponCode = nil
		cart.Discount = 0
		cart.Recalculate()
	}
	return cart, nil
}

// purchasable loads an active product and, when variantID is set, its variant.
func (s *CartService) purchasable(ctx context.Context, productID, variantID string) (*models.Product, *models.Variant, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, nil, notFoundOr(err, "product %s not found", productID)
	}
	if product.Status == models.ProductInactive {
		return nil, nil, apperror.InvalidState("product %s is not available for purchase", product.Name)
	}
	var variant *models.Variant
	if variantID != "" {
		variant, err = s.products.GetVariant(ctx, productID, variantID)
		if err != nil {
			return nil, nil, notFoundOr(err, "variant %s of product %s not found", variantID, productID)
		}
	}
	return product, variant, nil
}

func (s *CartService) ensureAvailable(ctx context.Context, product *models.Product, variant *models.Variant, quantity int) error {
	variantID := ""
	if variant != nil {
		variantID = variant.ID
	}
	available := 0
	avail, err := s.inventory.CheckAvailability(ctx, product.ID, variantID, quantity)
	switch {
	case err == nil:
		available = avail.Available
	case !errors.Is(err, apperror.ErrNotFound):
		return err
	}
	if quantity > available {
		return apperror.Insufficient("insufficient stock for %s: requested %d, available %d", product.NameFor(variant), quantity, available).
			WithDetail(apperror.StockShortage{
				ProductID: product.ID,
				VariantID: variantID,
				Name:      product.NameFor(variant),
				Requested: quantity,
				Available: available,
			})
	}
	return nil
}

func lineIndex(cart *models.Cart, productID, variantID string) int {
	for i, it := range cart.Items {
		if it.Matches(productID, variantID) {
			return i
		}
	}
	return -1
}
