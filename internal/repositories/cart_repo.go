package repositories

import (
	"context"

	"pasar/internal/models"
)

// CartRepository persists carts with optimistic versioning.
type CartRepository interface {
	GetByCustomer(ctx context.Context, customerID string) (*models.Cart, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Cart, error)
	// Save inserts a cart with Version 0, otherwise updates it only if the stored
	// version still equals cart.Version. Lines are replaced wholesale.
	Save(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, id string) error
}
