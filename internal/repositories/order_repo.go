package repositories

import (
	"context"

	"pasar/internal/models"
)

// OrderScope restricts a listing to one customer or one seller.
type OrderScope struct {
	CustomerID string
	SellerID   string
}

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, scope OrderScope, filter models.OrderFilter) ([]models.Order, int64, error)
	// Transition writes the order's mutable fields and appends entry, provided
	// the stored version still equals expectedVersion.
	Transition(ctx context.Context, order *models.Order, expectedVersion int, entry models.StatusHistoryEntry) error
}
