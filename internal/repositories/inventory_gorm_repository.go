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

// GORMInventoryRepository is a GORM implementation of InventoryRepository.
type GORMInventoryRepository struct {
	db *gorm.DB
}

// NewGORMInventoryRepository creates a new instance of GORMInventoryRepository.
func NewGORMInventoryRepository(db *gorm.DB) *GORMInventoryRepository {
	return &GORMInventoryRepository{db: db}
}

// Create inserts a record with no stock. Opening stock must go through Apply so
// that it appears in the movement log.
func (r *GORMInventoryRepository) Create(ctx context.Context, record *models.InventoryRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.Quantity = 0
	record.ReservedQuantity = 0
	record.AvailableQuantity = 0
	record.Version = 1
	if err := r.db.WithContext(ctx).Omit("Movements").Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("inventory for product %s variant %q: %w", record.ProductID, record.VariantID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create inventory record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID.
func (r *GORMInventoryRepository) GetByID(ctx context.Context, id string) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("inventory %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get inventory %s: %w", id, err)
	}
	return &record, nil
}

// Find retrieves the record for a product and variant; an empty variantID
// addresses the product itself.
func (r *GORMInventoryRepository) Find(ctx context.Context, productID, variantID string) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("inventory for product %s variant %q: %w", productID, variantID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find inventory for product %s: %w", productID, err)
	}
	return &record, nil
}

// Apply performs the change as a single conditional update: the row is only
// written if the new available and reserved quantities are non-negative, so
// concurrent callers can never oversell.
func (r *GORMInventoryRepository) Apply(ctx context.Context, change StockChange) (*models.InventoryRecord, error) {
	var out models.InventoryRecord
	now := time.Now()
	availableDelta := change.QuantityDelta - change.ReservedDelta

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if change.Hold != nil {
			if err := applyHold(tx, change.InventoryID, change.Hold, now); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"quantity":           gorm.Expr("quantity + ?", change.QuantityDelta),
			"reserved_quantity":  gorm.Expr("reserved_quantity + ?", change.ReservedDelta),
			"available_quantity": gorm.Expr("available_quantity + ?", availableDelta),
			"version":            gorm.Expr("version + 1"),
			"updated_at":         now,
		}
		if change.Restocked {
			updates["last_restocked"] = now
		}

		q := tx.Model(&models.InventoryRecord{}).
			Where("id = ? AND available_quantity + ? >= 0 AND reserved_quantity + ? >= 0",
				change.InventoryID, availableDelta, change.ReservedDelta)
		if change.KeepHolds {
			q = q.Where("reserved_quantity + ? >= (SELECT COALESCE(SUM(quantity), 0) FROM reservations WHERE inventory_id = ? AND status = ?)",
				change.ReservedDelta, change.InventoryID, models.ReservationHeld)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update inventory %s: %w", change.InventoryID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.InventoryRecord{}).Where("id = ?", change.InventoryID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("inventory %s: %w", change.InventoryID, ErrNotFound)
			}
			return ErrStockConstraint
		}

		if err := tx.First(&out, "id = ?", change.InventoryID).Error; err != nil {
			return fmt.Errorf("failed to reload inventory %s: %w", change.InventoryID, err)
		}

		mv := change.Movement
		mv.ID = uuid.New().String()
		mv.InventoryID = change.InventoryID
		mv.QuantityDelta = change.QuantityDelta
		mv.ReservedDelta = change.ReservedDelta
		mv.QuantityAfter = out.Quantity
		mv.ReservedAfter = out.ReservedQuantity
		mv.CreatedAt = now
		if err := tx.Create(&mv).Error; err != nil {
			return fmt.Errorf("failed to record stock movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func applyHold(tx *gorm.DB, inventoryID string, hold *HoldTransition, now time.Time) error {
	if hold.From == "" {
		res := tx.Create(&models.Reservation{
			ID:          uuid.New().String(),
			OrderID:     hold.OrderID,
			InventoryID: inventoryID,
			Quantity:    hold.Quantity,
			Status:      hold.To,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("hold for order %s: %w", hold.OrderID, ErrDuplicateKey)
			}
			return fmt.Errorf("failed to create reservation: %w", res.Error)
		}
		return nil
	}

	res := tx.Model(&models.Reservation{}).
		Where("order_id = ? AND inventory_id = ? AND status = ?", hold.OrderID, inventoryID, hold.From).
		Updates(map[string]any{"status": hold.To, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to update reservation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrHoldNotFound
	}
	return nil
}

// Movements returns the ledger of a record, oldest first.
func (r *GORMInventoryRepository) Movements(ctx context.Context, inventoryID string) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("inventory_id = ?", inventoryID).
		Order("created_at ASC").
		Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list movements of inventory %s: %w", inventoryID, err)
	}
	return movements, nil
}

// SumAvailable totals available stock over every record of a product.
func (r *GORMInventoryRepository) SumAvailable(ctx context.Context, productID string) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Select("COALESCE(SUM(available_quantity), 0)").
		Where("product_id = ?", productID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum availability of product %s: %w", productID, err)
	}
	return total, nil
}

// GetHold returns the reservation an order holds on a record.
func (r *GORMInventoryRepository) GetHold(ctx context.Context, orderID, inventoryID string) (*models.Reservation, error) {
	var hold models.Reservation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND inventory_id = ?", orderID, inventoryID).
		First(&hold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("hold of order %s on %s: %w", orderID, inventoryID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

// HeldQuantity totals the stock that open order holds keep reserved on a record.
func (r *GORMInventoryRepository) HeldQuantity(ctx context.Context, inventoryID string) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("inventory_id = ? AND status = ?", inventoryID, models.ReservationHeld).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum holds of inventory %s: %w", inventoryID, err)
	}
	return total, nil
}

// ListStaleHolds returns holds still in status held that were created before
// the cutoff and whose order is missing or terminal. Holds of orders in
// progress are left out so they never crowd a page. Results are ordered by id
// and start after afterID, which lets callers page through the backlog.
func (r *GORMInventoryRepository) ListStaleHolds(ctx context.Context, before time.Time, afterID string, limit int) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("reservations.*").
		Joins("LEFT JOIN orders ON orders.id = reservations.order_id").
		Where("reservations.status = ? AND reservations.created_at < ?", models.ReservationHeld, before).
		Where("orders.id IS NULL OR orders.status IN ?", []models.OrderStatus{models.OrderCancelled, models.OrderDelivered})
	if afterID != "" {
		q = q.Where("reservations.id > ?", afterID)
	}

	var holds []models.Reservation
	if err := q.Order("reservations.id ASC").Limit(limit).Find(&holds).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale reservations: %w", err)
	}
	return holds, nil
}
