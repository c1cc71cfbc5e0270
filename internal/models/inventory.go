package models

import "time"

// MovementType classifies a stock ledger entry.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementReserve    MovementType = "reserve"
	MovementRelease    MovementType = "release"
)

// InventoryRecord is the stock position of one product/variant held by one seller.
// AvailableQuantity is always Quantity - ReservedQuantity.
type InventoryRecord struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID         string          `json:"productId" gorm:"type:varchar(36);uniqueIndex:idx_inventory_item"`
	VariantID         string          `json:"variantId,omitempty" gorm:"type:varchar(36);uniqueIndex:idx_inventory_item"`
	SellerID          string          `json:"sellerId" gorm:"type:varchar(36);uniqueIndex:idx_inventory_item"`
	Quantity          int             `json:"quantity"`
	ReservedQuantity  int             `json:"reservedQuantity"`
	AvailableQuantity int             `json:"availableQuantity"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	ReorderPoint      int             `json:"reorderPoint"`
	ReorderQuantity   int             `json:"reorderQuantity"`
	LastRestocked     *time.Time      `json:"lastRestocked,omitempty"`
	Version           int             `json:"version"`
	Movements         []StockMovement `json:"movements,omitempty" gorm:"foreignKey:InventoryID"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsLowStock reports whether available stock is at or below the threshold.
func (r *InventoryRecord) IsLowStock() bool {
	return r.AvailableQuantity <= r.LowStockThreshold
}

// StockMovement is an immutable ledger entry. Folding QuantityDelta and
// ReservedDelta over a record's movements reproduces its current position.
type StockMovement struct {
	ID            string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	InventoryID   string       `json:"inventoryId" gorm:"type:varchar(36);index"`
	Type          MovementType `json:"type" gorm:"type:varchar(16)"`
	Quantity      int          `json:"quantity"`
	QuantityDelta int          `json:"quantityDelta"`
	ReservedDelta int          `json:"reservedDelta"`
	QuantityAfter int          `json:"quantityAfter"`
	ReservedAfter int          `json:"reservedAfter"`
	Reason        string       `json:"reason"`
	OrderID       string       `json:"orderId,omitempty" gorm:"type:varchar(36);index"`
	Actor         string       `json:"actor"`
	Notes         string       `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"timestamp" gorm:"index"`
}

// ReservationStatus is the lifecycle of an order-linked stock hold.
type ReservationStatus string

const (
	ReservationHeld     ReservationStatus = "held"
	ReservationReleased ReservationStatus = "released"
	ReservationConsumed ReservationStatus = "consumed"
)

// Reservation links reserved stock to the order it was taken for.
type Reservation struct {
	ID          string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string            `json:"orderId" gorm:"type:varchar(36);uniqueIndex:idx_reservation_hold"`
	InventoryID string            `json:"inventoryId" gorm:"type:varchar(36);uniqueIndex:idx_reservation_hold"`
	Quantity    int               `json:"quantity"`
	Status      ReservationStatus `json:"status" gorm:"type:varchar(16);index"`
	CreatedAt   time.Time         `json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}
