package models

import "time"

// Cart is a customer's (or guest session's) pending selection. Exactly one of
// CustomerID and SessionID is set.
type Cart struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CustomerID *string    `json:"customerId,omitempty" gorm:"type:varchar(36);uniqueIndex"`
	SessionID  *string    `json:"sessionId,omitempty" gorm:"type:varchar(64);uniqueIndex"`
	Items      []CartItem `json:"items" gorm:"foreignKey:CartID"`
	Subtotal   int64      `json:"subtotal"`
	Discount   int64      `json:"discount"`
	Total      int64      `json:"total"`
	CouponCode *string    `json:"couponCode,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// CartItem is one line of a cart. Price is snapshotted when the line is added.
type CartItem struct {
	ID              uint              `json:"-" gorm:"primaryKey"`
	CartID          string            `json:"-" gorm:"type:varchar(36);index"`
	Position        int               `json:"-"`
	ProductID       string            `json:"productId" gorm:"type:varchar(36)"`
	VariantID       string            `json:"variantId,omitempty" gorm:"type:varchar(36)"`
	SellerID        string            `json:"sellerId" gorm:"type:varchar(36)"`
	Quantity        int               `json:"quantity"`
	Price           int64             `json:"price"`
	PointsPrice     int64             `json:"pointsPrice,omitempty"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty" gorm:"serializer:json"`
	AddedAt         time.Time         `json:"addedAt"`
}

// LineTotal is price times quantity.
func (i CartItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Matches reports whether the line is for the given product and variant.
func (i CartItem) Matches(productID, variantID string) bool {
	return i.ProductID == productID && i.VariantID == variantID
}

// Recalculate refreshes subtotal and total from the lines and current discount.
func (c *Cart) Recalculate() {
	var subtotal int64
	for _, it := range c.Items {
		subtotal += it.LineTotal()
	}
	c.Subtotal = subtotal
	if c.Discount > subtotal {
		c.Discount = subtotal
	}
	if c.Discount < 0 {
		c.Discount = 0
	}
	c.Total = c.Subtotal - c.Discount
}

// ItemsForSeller returns the lines sold by sellerID, in cart order.
func (c *Cart) ItemsForSeller(sellerID string) []CartItem {
	var out []CartItem
	for _, it := range c.Items {
		if it.SellerID == sellerID {
			out = append(out, it)
		}
	}
	return out
}
