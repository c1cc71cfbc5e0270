package repositories

import (
	"context"

	"pasar/internal/models"
)

// ProductRepository is the read side of the catalog plus the stock-driven
// status flip.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (*models.Variant, error)
	Create(ctx context.Context, product *models.Product) error
	SetStockStatus(ctx context.Context, id string, status models.ProductStatus) (bool, error)
}

// SellerRepository looks up seller profiles.
type SellerRepository interface {
	GetByID(ctx context.Context, id string) (*models.Seller, error)
	Create(ctx context.Context, seller *models.Seller) error
}
