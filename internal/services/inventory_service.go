package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pasar/internal/apperror"
	"pasar/internal/logger"
	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/pkg/events"

	"go.uber.org/zap"
)

// releaseAttempts bounds the reload-and-retry loop of a floored release that
// loses a race against another release.
const releaseAttempts = 3

// InventoryService owns stock positions, their movement log and order-linked
// reservations.
type InventoryService struct {
	repo     repositories.InventoryRepository
	products repositories.ProductRepository
	events   events.Publisher
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(repo repositories.InventoryRepository, products repositories.ProductRepository, pub events.Publisher) *InventoryService {
	return &InventoryService{
		repo:     repo,
		products: products,
		events:   pub,
	}
}

// CreateRecordInput opens a stock position for a product or one of its variants.
type CreateRecordInput struct {
	ProductID         string `json:"productId" validate:"required"`
	VariantID         string `json:"variantId,omitempty"`
	SellerID          string `json:"sellerId" validate:"required"`
	InitialQuantity   int    `json:"initialQuantity" validate:"gte=0"`
	LowStockThreshold int    `json:"lowStockThreshold" validate:"gte=0"`
	ReorderPoint      int    `json:"reorderPoint" validate:"gte=0"`
	ReorderQuantity   int    `json:"reorderQuantity" validate:"gte=0"`
	Actor             string `json:"-"`
}

// StockInput is a manual change of on-hand quantity.
type StockInput struct {
	ProductID string              `json:"productId" validate:"required"`
	VariantID string              `json:"variantId,omitempty"`
	Quantity  int                 `json:"quantity" validate:"gt=0"`
	Type      models.MovementType `json:"type,omitempty" validate:"omitempty,oneof=out adjustment"`
	Reason    string              `json:"reason,omitempty"`
	OrderID   string              `json:"orderId,omitempty"`
	Notes     string              `json:"notes,omitempty"`
	Actor     string              `json:"-"`
}

// Availability answers whether a quantity can currently be sold.
type Availability struct {
	InventoryID string `json:"inventoryId"`
	ProductID   string `json:"productId"`
	VariantID   string `json:"variantId,omitempty"`
	Available   int    `json:"available"`
	Requested   int    `json:"requested"`
	CanFulfill  bool   `json:"canFulfill"`
}

// CreateRecord opens the position with no stock and books the initial quantity
// as an `in` movement so the log reproduces the record from zero.
func (s *InventoryService) CreateRecord(ctx context.Context, in CreateRecordInput) (*models.InventoryRecord, error) {
	if in.InitialQuantity < 0 {
		return nil, apperror.Validation("initial quantity must not be negative")
	}
	if _, err := s.products.GetByID(ctx, in.ProductID); err != nil {
		return nil, notFoundOr(err, "product %s not found", in.ProductID)
	}

	rec := &models.InventoryRecord{
		ProductID:         in.ProductID,
		VariantID:         in.VariantID,
		SellerID:          in.SellerID,
		LowStockThreshold: in.LowStockThreshold,
		ReorderPoint:      in.ReorderPoint,
		ReorderQuantity:   in.ReorderQuantity,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, apperror.Conflict("inventory for product %s already exists", in.ProductID).Wrap(err)
		}
		return nil, err
	}
	if in.InitialQuantity == 0 {
		return rec, nil
	}
	return s.AddStock(ctx, StockInput{
		ProductID: in.ProductID,
		VariantID: in.VariantID,
		Quantity:  in.InitialQuantity,
		Reason:    "initial stock",
		Actor:     in.Actor,
	})
}

// GetRecord loads the position of a product or variant.
func (s *InventoryService) GetRecord(ctx context.Context, productID, variantID string) (*models.InventoryRecord, error) {
	rec, err := s.repo.Find(ctx, productID, variantID)
	if err != nil {
		return nil, notFoundOr(err, "no inventory for product %s", describeItem(productID, variantID))
	}
	return rec, nil
}

// CheckAvailability reports the available quantity and whether quantity can be met.
func (s *InventoryService) CheckAvailability(ctx context.Context, productID, variantID string, quantity int) (*Availability, error) {
	rec, err := s.GetRecord(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	return &Availability{
		InventoryID: rec.ID,
		ProductID:   productID,
		VariantID:   variantID,
		Available:   rec.AvailableQuantity,
		Requested:   quantity,
		CanFulfill:  quantity <= rec.AvailableQuantity,
	}, nil
}

// Reserve holds quantity of available stock. The check and the increment are a
// single conditional update, so concurrent reservations never oversell.
func (s *InventoryService) Reserve(ctx context.Context, productID, variantID string, quantity int, actor string) (*models.InventoryRecord, error) {
	if quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	rec, err := s.GetRecord(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, rec, repositories.StockChange{
		InventoryID:   rec.ID,
		ReservedDelta: quantity,
		Movement: models.StockMovement{
			Type:     models.MovementReserve,
			Quantity: quantity,
			Reason:   "manual reservation",
			Actor:    actor,
		},
	})
}

// Release returns manually reserved stock to availability. Stock backing open
// order holds is never released here, so the release is capped at the
// reserved quantity no order accounts for, and releasing nothing records no
// movement.
func (s *InventoryService) Release(ctx context.Context, productID, variantID string, quantity int, actor string) (*models.InventoryRecord, error) {
	if quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	rec, err := s.GetRecord(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		held, err := s.repo.HeldQuantity(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		q := min(quantity, rec.ReservedQuantity-held)
		if q <= 0 {
			return rec, nil
		}
		out, err := s.apply(ctx, rec, repositories.StockChange{
			InventoryID:   rec.ID,
			ReservedDelta: -q,
			KeepHolds:     true,
			Movement: models.StockMovement{
				Type:     models.MovementRelease,
				Quantity: q,
				Reason:   "manual release",
				Actor:    actor,
			},
		})
		if err == nil || !errors.Is(err, apperror.ErrInsufficientResource) || attempt+1 >= releaseAttempts {
			return out, err
		}
		// Another writer changed the row; retry on the fresh reserved quantity.
		if rec, err = s.GetRecord(ctx, productID, variantID); err != nil {
			return nil, err
		}
	}
}

// ReserveForOrder reserves quantity on a record and opens the order's hold on it.
func (s *InventoryService) ReserveForOrder(ctx context.Context, orderID string, rec *models.InventoryRecord, quantity int, actor string) (*models.InventoryRecord, error) {
	if quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	out, err := s.apply(ctx, rec, repositories.StockChange{
		InventoryID:   rec.ID,
		ReservedDelta: quantity,
		Movement: models.StockMovement{
			Type:     models.MovementReserve,
			Quantity: quantity,
			Reason:   "order reservation",
			OrderID:  orderID,
			Actor:    actor,
		},
		Hold: &repositories.HoldTransition{
			OrderID:  orderID,
			Quantity: quantity,
			To:       models.ReservationHeld,
		},
	})
	if errors.Is(err, repositories.ErrDuplicateKey) {
		return nil, apperror.Conflict("order %s already holds stock on %s", orderID, rec.ID).Wrap(err)
	}
	return out, err
}

// ReleaseForOrder gives back the stock an order holds on a record. It reports
// false when the hold was already released or consumed, which makes repeated
// cancellation harmless. The movement is typed by the caller: `return` for a
// cancelled order, `release` for an abandoned or failed one.
func (s *InventoryService) ReleaseForOrder(ctx context.Context, orderID, inventoryID string, typ models.MovementType, reason, actor string) (bool, error) {
	return s.settleHold(ctx, orderID, inventoryID, models.ReservationReleased, func(hold *models.Reservation) repositories.StockChange {
		return repositories.StockChange{
			ReservedDelta: -hold.Quantity,
			Movement: models.StockMovement{
				Type:     typ,
				Quantity: hold.Quantity,
				Reason:   reason,
				Actor:    actor,
			},
		}
	})
}

// ConsumeForOrder turns the order's hold into a shipment: reserved and on-hand
// stock both drop by the held quantity.
func (s *InventoryService) ConsumeForOrder(ctx context.Context, orderID, inventoryID, actor string) (bool, error) {
	return s.settleHold(ctx, orderID, inventoryID, models.ReservationConsumed, func(hold *models.Reservation) repositories.StockChange {
		return repositories.StockChange{
			QuantityDelta: -hold.Quantity,
			ReservedDelta: -hold.Quantity,
			Movement: models.StockMovement{
				Type:     models.MovementOut,
				Quantity: hold.Quantity,
				Reason:   "order delivered",
				Actor:    actor,
			},
		}
	})
}

func (s *InventoryService) settleHold(ctx context.Context, orderID, inventoryID string, to models.ReservationStatus, build func(*models.Reservation) repositories.StockChange) (bool, error) {
	hold, err := s.repo.GetHold(ctx, orderID, inventoryID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if hold.Status != models.ReservationHeld {
		return false, nil
	}
	rec, err := s.repo.GetByID(ctx, inventoryID)
	if err != nil {
		return false, notFoundOr(err, "inventory %s not found", inventoryID)
	}

	change := build(hold)
	change.InventoryID = inventoryID
	change.Movement.OrderID = orderID
	change.Hold = &repositories.HoldTransition{
		OrderID:  orderID,
		Quantity: hold.Quantity,
		From:     models.ReservationHeld,
		To:       to,
	}
	if _, err := s.apply(ctx, rec, change); err != nil {
		if errors.Is(err, repositories.ErrHoldNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddStock books received goods as an `in` movement and marks the restock time.
func (s *InventoryService) AddStock(ctx context.Context, in StockInput) (*models.InventoryRecord, error) {
	if in.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	rec, err := s.GetRecord(ctx, in.ProductID, in.VariantID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, rec, repositories.StockChange{
		InventoryID:   rec.ID,
		QuantityDelta: in.Quantity,
		Restocked:     true,
		Movement:      in.movement(models.MovementIn, "restock"),
	})
}

// RemoveStock takes on-hand stock out as an `out` (default) or `adjustment`
// movement. Reserved stock cannot be removed.
func (s *InventoryService) RemoveStock(ctx context.Context, in StockInput) (*models.InventoryRecord, error) {
	if in.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	typ := in.Type
	switch typ {
	case "":
		typ = models.MovementOut
	case models.MovementOut, models.MovementAdjustment:
	default:
		return nil, apperror.Validation("movement type %q cannot remove stock", typ)
	}
	rec, err := s.GetRecord(ctx, in.ProductID, in.VariantID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, rec, repositories.StockChange{
		InventoryID:   rec.ID,
		QuantityDelta: -in.Quantity,
		Movement:      in.movement(typ, "stock removal"),
	})
}

// ReturnStock puts goods sent back by a customer into on-hand stock.
func (s *InventoryService) ReturnStock(ctx context.Context, in StockInput) (*models.InventoryRecord, error) {
	if in.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	rec, err := s.GetRecord(ctx, in.ProductID, in.VariantID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, rec, repositories.StockChange{
		InventoryID:   rec.ID,
		QuantityDelta: in.Quantity,
		Movement:      in.movement(models.MovementReturn, "customer return"),
	})
}

func (in StockInput) movement(typ models.MovementType, defaultReason string) models.StockMovement {
	reason := in.Reason
	if reason == "" {
		reason = defaultReason
	}
	return models.StockMovement{
		Type:     typ,
		Quantity: in.Quantity,
		Reason:   reason,
		OrderID:  in.OrderID,
		Actor:    in.Actor,
		Notes:    in.Notes,
	}
}

// Movements lists the ledger of a record, oldest first.
func (s *InventoryService) Movements(ctx context.Context, inventoryID string) ([]models.StockMovement, error) {
	if _, err := s.repo.GetByID(ctx, inventoryID); err != nil {
		return nil, notFoundOr(err, "inventory %s not found", inventoryID)
	}
	return s.repo.Movements(ctx, inventoryID)
}

// StaleHolds lists holds still open since before the cutoff whose order is
// missing or terminal, starting after the hold id afterID.
func (s *InventoryService) StaleHolds(ctx context.Context, before time.Time, afterID string, limit int) ([]models.Reservation, error) {
	return s.repo.ListStaleHolds(ctx, before, afterID, limit)
}

// apply runs one stock change and its catalog side effects. A change rejected by
// the stock constraint becomes an InsufficientResource error describing the item.
func (s *InventoryService) apply(ctx context.Context, rec *models.InventoryRecord, change repositories.StockChange) (*models.InventoryRecord, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "InventoryService.apply"),
		zap.String("inventory_id", rec.ID),
		zap.String("movement", string(change.Movement.Type)),
	)

	out, err := s.repo.Apply(ctx, change)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrStockConstraint):
			available := rec.AvailableQuantity
			if fresh, ferr := s.repo.GetByID(ctx, rec.ID); ferr == nil {
				available = fresh.AvailableQuantity
			}
			requested := change.Movement.Quantity
			return nil, apperror.Insufficient("insufficient stock for %s: requested %d, available %d",
				describeItem(rec.ProductID, rec.VariantID), requested, available).
				WithDetail(apperror.StockShortage{
					ProductID: rec.ProductID,
					VariantID: rec.VariantID,
					Requested: requested,
					Available: available,
				})
		case errors.Is(err, repositories.ErrNotFound):
			return nil, apperror.NotFound("inventory %s not found", rec.ID).Wrap(err)
		case errors.Is(err, repositories.ErrHoldNotFound), errors.Is(err, repositories.ErrDuplicateKey):
			return nil, err
		}
		log.Error("failed to apply stock change", zap.Error(err))
		return nil, fmt.Errorf("failed to apply stock change to %s: %w", rec.ID, err)
	}

	log.Debug("stock changed",
		zap.Int("quantity", out.Quantity),
		zap.Int("reserved", out.ReservedQuantity),
		zap.Int("available", out.AvailableQuantity))

	s.afterMutation(ctx, log, out)
	return out, nil
}

// afterMutation syncs the product's catalog status and raises the low-stock
// signal. Neither may fail the mutation that triggered it.
func (s *InventoryService) afterMutation(ctx context.Context, log *zap.Logger, rec *models.InventoryRecord) {
	total, err := s.repo.SumAvailable(ctx, rec.ProductID)
	if err != nil {
		log.Warn("failed to sum product availability", zap.Error(err))
	} else {
		status := models.ProductActive
		if total <= 0 {
			status = models.ProductOutOfStock
		}
		changed, err := s.products.SetStockStatus(ctx, rec.ProductID, status)
		if err != nil {
			log.Warn("failed to sync product status", zap.Error(err))
		} else if changed {
			log.Info("product stock status changed", zap.String("product_id", rec.ProductID), zap.String("status", string(status)))
		}
	}

	if rec.IsLowStock() && s.events != nil {
		log.Info("low stock", zap.Int("available", rec.AvailableQuantity), zap.Int("threshold", rec.LowStockThreshold))
		s.events.Publish(ctx, events.InventoryLowStock, rec.ID, map[string]any{
			"inventoryId":     rec.ID,
			"productId":       rec.ProductID,
			"variantId":       rec.VariantID,
			"sellerId":        rec.SellerID,
			"available":       rec.AvailableQuantity,
			"threshold":       rec.LowStockThreshold,
			"reorderPoint":    rec.ReorderPoint,
			"reorderQuantity": rec.ReorderQuantity,
		})
	}
}

func describeItem(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + "/" + variantID
}

// notFoundOr classifies a repository miss as NotFound and passes other errors through.
func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperror.NotFound(format, args...).Wrap(err)
	}
	return err
}
