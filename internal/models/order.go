package models

import "time"

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderPreparing  OrderStatus = "preparing"
	OrderReady      OrderStatus = "ready"
	OrderPickedUp   OrderStatus = "picked_up"
	OrderDelivering OrderStatus = "delivering"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
	PaymentMixed  PaymentMethod = "mixed"
	PaymentOnline PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Address is the delivery destination captured on the order.
type Address struct {
	Recipient  string `json:"recipient" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// OrderItem is a snapshot of a cart line taken at order creation.
type OrderItem struct {
	ID          uint   `json:"-" gorm:"primaryKey"`
	OrderID     string `json:"-" gorm:"type:varchar(36);index"`
	Position    int    `json:"-"`
	ProductID   string `json:"productId" gorm:"type:varchar(36)"`
	VariantID   string `json:"variantId,omitempty" gorm:"type:varchar(36)"`
	InventoryID string `json:"-" gorm:"type:varchar(36)"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	PointsPrice int64  `json:"pointsPrice,omitempty"`
	Subtotal    int64  `json:"subtotal"`
}

// StatusHistoryEntry is one append-only record of the order's progression.
type StatusHistoryEntry struct {
	ID        uint        `json:"-" gorm:"primaryKey"`
	OrderID   string      `json:"-" gorm:"type:varchar(36);index"`
	Status    OrderStatus `json:"status" gorm:"type:varchar(16)"`
	Actor     string      `json:"actor"`
	Notes     string      `json:"notes,omitempty"`
	CreatedAt time.Time   `json:"timestamp"`
}

// Order is a confirmed purchase from a single seller. Amounts are in the
// smallest currency unit.
type Order struct {
	ID                 string               `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderNumber        string               `json:"orderNumber" gorm:"type:varchar(32);uniqueIndex"`
	CustomerID         string               `json:"customerId" gorm:"type:varchar(36);index"`
	SellerID           string               `json:"sellerId" gorm:"type:varchar(36);index"`
	CourierID          *string              `json:"courierId,omitempty" gorm:"type:varchar(36)"`
	Items              []OrderItem          `json:"items" gorm:"foreignKey:OrderID"`
	Subtotal           int64                `json:"subtotal"`
	DeliveryFee        int64                `json:"deliveryFee"`
	Discount           int64                `json:"discount"`
	Tax                int64                `json:"tax"`
	Total              int64                `json:"total"`
	PaymentMethod      PaymentMethod        `json:"paymentMethod" gorm:"type:varchar(16)"`
	PaymentStatus      PaymentStatus        `json:"paymentStatus" gorm:"type:varchar(16)"`
	PaymentReference   string               `json:"paymentReference,omitempty"`
	Status             OrderStatus          `json:"orderStatus" gorm:"type:varchar(16);index"`
	DeliveryAddress    Address              `json:"deliveryAddress" gorm:"embedded;embeddedPrefix:delivery_"`
	CouponCode         *string              `json:"couponCode,omitempty"`
	CustomerNotes      string               `json:"customerNotes,omitempty"`
	PointsUsed         int64                `json:"pointsUsed"`
	WalletAmountPaid   int64                `json:"walletAmountPaid"`
	StatusHistory      []StatusHistoryEntry `json:"statusHistory" gorm:"foreignKey:OrderID"`
	CancellationReason *string              `json:"cancellationReason,omitempty"`
	CancelledBy        *string              `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time           `json:"cancelledAt,omitempty"`
	DeliveredAt        *time.Time           `json:"deliveredAt,omitempty"`
	Version            int                  `json:"version"`
	CreatedAt          time.Time            `json:"createdAt" gorm:"index"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// OrderFilter narrows order listings. Zero values are ignored.
type OrderFilter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	From          *time.Time
	To            *time.Time
	Page          int
	Limit         int
}

// OrderSequence is the per-day counter behind order numbers.
type OrderSequence struct {
	Day       string `gorm:"primaryKey;type:varchar(8)"`
	Value     int64
	UpdatedAt time.Time
}
