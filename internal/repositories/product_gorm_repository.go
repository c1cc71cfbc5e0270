package repositories

import (
	"context"
	"errors"
	"fmt"

	"pasar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{db: db}
}

// GetByID retrieves a live (not soft-deleted) product with its live variants.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", "deleted_at IS NULL").
		Where("deleted_at IS NULL").
		First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// GetVariant retrieves a live variant that belongs to productID.
func (r *GORMProductRepository) GetVariant(ctx context.Context, productID, variantID string) (*models.Variant, error) {
	var variant models.Variant
	err := r.db.WithContext(ctx).
		Where("deleted_at IS NULL AND product_id = ?", productID).
		First(&variant, "id = ?", variantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("variant %s of product %s: %w", variantID, productID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get variant %s: %w", variantID, err)
	}
	return &variant, nil
}

// Create inserts a product together with its variants.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	for i := range product.Variants {
		if product.Variants[i].ID == "" {
			product.Variants[i].ID = uuid.New().String()
		}
	}
	if product.Status == "" {
		product.Status = models.ProductActive
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// SetStockStatus flips a product between active and out_of_stock. Inactive or
// deleted products are left untouched. It reports whether a row changed.
func (r *GORMProductRepository) SetStockStatus(ctx context.Context, id string, status models.ProductStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND deleted_at IS NULL AND status IN ? AND status <> ?", id,
			[]models.ProductStatus{models.ProductActive, models.ProductOutOfStock}, status).
		Update("status", status)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update status of product %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GORMSellerRepository is a GORM implementation of SellerRepository.
type GORMSellerRepository struct {
	db *gorm.DB
}

// NewGORMSellerRepository creates a new instance of GORMSellerRepository.
func NewGORMSellerRepository(db *gorm.DB) *GORMSellerRepository {
	return &GORMSellerRepository{db: db}
}

// GetByID retrieves a live seller with its delivery zones.
func (r *GORMSellerRepository) GetByID(ctx context.Context, id string) (*models.Seller, error) {
	var seller models.Seller
	err := r.db.WithContext(ctx).
		Preload("DeliveryZones").
		Where("deleted_at IS NULL").
		First(&seller, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("seller with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get seller by ID %s: %w", id, err)
	}
	return &seller, nil
}

// Create inserts a seller together with its delivery zones.
func (r *GORMSellerRepository) Create(ctx context.Context, seller *models.Seller) error {
	if seller.ID == "" {
		seller.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(seller).Error; err != nil {
		return fmt.Errorf("failed to create seller: %w", err)
	}
	return nil
}
