package services

import (
	"context"
	"fmt"

	"pasar/internal/models"

	"github.com/shopspring/decimal"
)

// Split is the post-delivery division of an order's value.
type Split struct {
	SellerEarnings  int64 `json:"sellerEarnings"`
	CourierEarnings int64 `json:"courierEarnings"`
	PlatformFee     int64 `json:"platformFee"`
}

// CommissionEngine computes the earnings split of a delivered order.
type CommissionEngine interface {
	ComputeSplit(ctx context.Context, order *models.Order) (Split, error)
}

// RateCommission charges the platform a fixed rate of the item subtotal. The
// courier earns the delivery fee and the seller keeps the rest of the subtotal
// net of discount.
type RateCommission struct {
	Rate decimal.Decimal
}

func NewRateCommission(rate decimal.Decimal) RateCommission {
	return RateCommission{Rate: rate}
}

func (c RateCommission) ComputeSplit(_ context.Context, order *models.Order) (Split, error) {
	if c.Rate.IsNegative() || c.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return Split{}, fmt.Errorf("commission rate %s outside [0,1]", c.Rate)
	}
	// Round half away from zero, which is half-up for non-negative amounts.
	fee := decimal.NewFromInt(order.Subtotal).Mul(c.Rate).Round(0).IntPart()
	seller := order.Subtotal - order.Discount - fee
	if seller < 0 {
		seller = 0
	}
	return Split{
		SellerEarnings:  seller,
		CourierEarnings: order.DeliveryFee,
		PlatformFee:     fee,
	}, nil
}
