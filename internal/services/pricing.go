package services

import (
	"context"
	"strings"

	"pasar/internal/models"
	"pasar/pkg/redisx"

	"github.com/redis/go-redis/v9"
)

// ShippingCalculator prices delivery of an order from a seller.
type ShippingCalculator interface {
	DeliveryFee(ctx context.Context, seller *models.Seller, address models.Address, subtotal int64) (int64, error)
}

// SellerShipping applies the seller's own rules: a zone fee when the city
// matches a delivery zone, else the flat fee, and nothing once the subtotal
// reaches the free-delivery threshold.
type SellerShipping struct{}

func (SellerShipping) DeliveryFee(_ context.Context, seller *models.Seller, address models.Address, subtotal int64) (int64, error) {
	if seller.FreeDeliveryThreshold > 0 && subtotal >= seller.FreeDeliveryThreshold {
		return 0, nil
	}
	for _, z := range seller.DeliveryZones {
		if strings.EqualFold(strings.TrimSpace(z.City), strings.TrimSpace(address.City)) {
			return z.Fee, nil
		}
	}
	return seller.FlatDeliveryFee, nil
}

// Discounter prices a coupon against an order being created.
type Discounter interface {
	OrderDiscount(ctx context.Context, order *models.Order, code string) (int64, error)
}

// DiscountFunc adapts a function to Discounter.
type DiscountFunc func(ctx context.Context, order *models.Order, code string) (int64, error)

func (f DiscountFunc) OrderDiscount(ctx context.Context, order *models.Order, code string) (int64, error) {
	return f(ctx, order, code)
}

// TaxCalculator computes the tax owed on an order being created.
type TaxCalculator interface {
	OrderTax(ctx context.Context, order *models.Order) (int64, error)
}

// TaxFunc adapts a function to TaxCalculator.
type TaxFunc func(ctx context.Context, order *models.Order) (int64, error)

func (f TaxFunc) OrderTax(ctx context.Context, order *models.Order) (int64, error) {
	return f(ctx, order)
}

// Sequencer hands out the per-day order counter. Values for a day increase
// strictly; gaps are allowed.
type Sequencer interface {
	Next(ctx context.Context, day string) (int64, error)
}

// RedisSequencer keeps the counter in Redis.
type RedisSequencer struct {
	rdb *redis.Client
}

func NewRedisSequencer(rdb *redis.Client) *RedisSequencer {
	return &RedisSequencer{rdb: rdb}
}

func (s *RedisSequencer) Next(ctx context.Context, day string) (int64, error) {
	return redisx.NextInSequence(ctx, s.rdb, day)
}
