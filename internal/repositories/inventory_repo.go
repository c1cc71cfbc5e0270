package repositories

import (
	"context"
	"time"

	"pasar/internal/models"
)

// StockChange is one atomic mutation of an inventory record. The deltas are
// applied only if the resulting available and reserved quantities stay
// non-negative; the movement is appended in the same transaction.
type StockChange struct {
	InventoryID   string
	QuantityDelta int
	ReservedDelta int
	Restocked     bool
	// KeepHolds rejects the change if it would leave less reserved stock than
	// the open order holds on the record account for.
	KeepHolds bool
	Movement  models.StockMovement
	Hold      *HoldTransition
}

// HoldTransition moves an order-linked reservation along with the stock change.
// An empty From creates a new hold in status To.
type HoldTransition struct {
	OrderID  string
	Quantity int
	From     models.ReservationStatus
	To       models.ReservationStatus
}

// InventoryRepository persists inventory records, their movement log and
// order-linked reservations.
type InventoryRepository interface {
	Create(ctx context.Context, record *models.InventoryRecord) error
	GetByID(ctx context.Context, id string) (*models.InventoryRecord, error)
	Find(ctx context.Context, productID, variantID string) (*models.InventoryRecord, error)
	Apply(ctx context.Context, change StockChange) (*models.InventoryRecord, error)
	Movements(ctx context.Context, inventoryID string) ([]models.StockMovement, error)
	SumAvailable(ctx context.Context, productID string) (int, error)
	GetHold(ctx context.Context, orderID, inventoryID string) (*models.Reservation, error)
	ListStaleHolds(ctx context.Context, before time.Time, afterID string, limit int) ([]models.Reservation, error)
	HeldQuantity(ctx context.Context, inventoryID string) (int, error)
}
