package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pasar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

func (r *GORMCartRepository) GetByCustomer(ctx context.Context, customerID string) (*models.Cart, error) {
	return r.get(ctx, "customer_id = ?", customerID)
}

func (r *GORMCartRepository) GetBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	return r.get(ctx, "session_id = ?", sessionID)
}

func (r *GORMCartRepository) get(ctx context.Context, query string, arg string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where(query, arg).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

func (r *GORMCartRepository) Save(ctx context.Context, cart *models.Cart) error {
	now := time.Now()
	expected := cart.Version

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expected == 0 {
			if cart.ID == "" {
				cart.ID = uuid.New().String()
			}
			cart.CreatedAt = now
			cart.UpdatedAt = now
			cart.Version = 1
			if err := tx.Omit("Items").Create(cart).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrStaleVersion
				}
				return fmt.Errorf("failed to create cart: %w", err)
			}
		} else {
			res := tx.Model(&models.Cart{}).
				Where("id = ? AND version = ?", cart.ID, expected).
				Updates(map[string]any{
					"subtotal":    cart.Subtotal,
					"discount":    cart.Discount,
					"total":       cart.Total,
					"coupon_code": cart.CouponCode,
					"expires_at":  cart.ExpiresAt,
					"version":     expected + 1,
					"updated_at":  now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to update cart %s: %w", cart.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrStaleVersion
			}
			if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
				return fmt.Errorf("failed to replace cart items: %w", err)
			}
			cart.Version = expected + 1
			cart.UpdatedAt = now
		}

		for i := range cart.Items {
			cart.Items[i].ID = 0
			cart.Items[i].CartID = cart.ID
			cart.Items[i].Position = i
		}
		if len(cart.Items) > 0 {
			if err := tx.Create(&cart.Items).Error; err != nil {
				return fmt.Errorf("failed to write cart items: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		cart.Version = expected
		return err
	}
	return nil
}

func (r *GORMCartRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete cart items: %w", err)
		}
		res := tx.Delete(&models.Cart{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete cart %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("cart %s: %w", id, ErrNotFound)
		}
		return nil
	})
}
