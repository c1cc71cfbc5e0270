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

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

// Create inserts the order with its items and initial history. A clash on the
// order number is reported as ErrDuplicateKey.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Version == 0 {
		order.Version = 1
	}
	for i := range order.Items {
		order.Items[i].Position = i
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("order number %s: %w", order.OrderNumber, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order with items and history in insertion order.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// NormalizeFilter applies the default page size, caps the limit and starts
// pages at 1.
func NormalizeFilter(filter models.OrderFilter) models.OrderFilter {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return filter
}

// List returns one page of orders, newest first, and the total match count.
func (r *GORMOrderRepository) List(ctx context.Context, scope OrderScope, filter models.OrderFilter) ([]models.Order, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Order{})
		if scope.CustomerID != "" {
			q = q.Where("customer_id = ?", scope.CustomerID)
		}
		if scope.SellerID != "" {
			q = q.Where("seller_id = ?", scope.SellerID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.PaymentStatus != "" {
			q = q.Where("payment_status = ?", filter.PaymentStatus)
		}
		if filter.From != nil {
			q = q.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			q = q.Where("created_at < ?", *filter.To)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	filter = NormalizeFilter(filter)
	limit, page := filter.Limit, filter.Page

	var orders []models.Order
	err := scoped().
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// Transition updates the order under an optimistic version check.
func (r *GORMOrderRepository) Transition(ctx context.Context, order *models.Order, expectedVersion int, entry models.StatusHistoryEntry) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND version = ?", order.ID, expectedVersion).
			Updates(map[string]any{
				"status":              order.Status,
				"payment_status":      order.PaymentStatus,
				"payment_reference":   order.PaymentReference,
				"courier_id":          order.CourierID,
				"cancellation_reason": order.CancellationReason,
				"cancelled_by":        order.CancelledBy,
				"cancelled_at":        order.CancelledAt,
				"delivered_at":        order.DeliveredAt,
				"version":             expectedVersion + 1,
				"updated_at":          now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("order %s at version %d: %w", order.ID, expectedVersion, ErrStaleVersion)
		}

		entry.ID = 0
		entry.OrderID = order.ID
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}

		order.Version = expectedVersion + 1
		order.UpdatedAt = now
		order.StatusHistory = append(order.StatusHistory, entry)
		return nil
	})
}
