package services

import (
	"context"
	"errors"
	"time"

	"pasar/internal/logger"
	"pasar/internal/models"
	"pasar/internal/repositories"

	"go.uber.org/zap"
)

const sweepBatch = 100

// SweepResult counts what one reconciliation pass did.
type SweepResult struct {
	Released int `json:"released"`
	Consumed int `json:"consumed"`
	Skipped  int `json:"skipped"`
}

// ReconciliationService heals stock holds that checkout, cancellation or
// delivery left open, for example after a crash between two writes.
type ReconciliationService struct {
	inventory *InventoryService
	orders    repositories.OrderRepository
	timeout   time.Duration
	now       func() time.Time
}

// NewReconciliationService creates a new ReconciliationService. Holds younger
// than timeout are never touched.
func NewReconciliationService(inventory *InventoryService, orders repositories.OrderRepository, timeout time.Duration) *ReconciliationService {
	return &ReconciliationService{
		inventory: inventory,
		orders:    orders,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Sweep settles every open hold older than the timeout according to its order:
// no order releases it, a cancelled order releases it as a return, and a
// delivered order consumes it. Holds of orders still in progress are never
// listed; the backlog is paged through by hold id, so holds that fail to
// settle cannot hide the ones behind them.
func (s *ReconciliationService) Sweep(ctx context.Context) (SweepResult, error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "service"), zap.String("method", "ReconciliationService.Sweep"))

	var res SweepResult
	cutoff := s.now().Add(-s.timeout)
	after := ""
	for {
		holds, err := s.inventory.StaleHolds(ctx, cutoff, after, sweepBatch)
		if err != nil {
			return res, err
		}
		for _, h := range holds {
			s.settle(ctx, log, h, &res)
		}
		if len(holds) < sweepBatch {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		after = holds[len(holds)-1].ID
	}
}

func (s *ReconciliationService) settle(ctx context.Context, log *zap.Logger, h models.Reservation, res *SweepResult) {
	hlog := log.With(zap.String("order_id", h.OrderID), zap.String("inventory_id", h.InventoryID))

	order, err := s.orders.GetByID(ctx, h.OrderID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		hlog.Warn("failed to load order for hold", zap.Error(err))
		res.Skipped++
		return
	}

	var done bool
	switch {
	case order == nil:
		done, err = s.inventory.ReleaseForOrder(ctx, h.OrderID, h.InventoryID, models.MovementRelease, "orphaned reservation", "system")
	case order.Status == models.OrderCancelled:
		reason := "order cancelled"
		if order.CancellationReason != nil {
			reason = *order.CancellationReason
		}
		done, err = s.inventory.ReleaseForOrder(ctx, h.OrderID, h.InventoryID, models.MovementReturn, reason, "system")
	case order.Status == models.OrderDelivered:
		done, err = s.inventory.ConsumeForOrder(ctx, h.OrderID, h.InventoryID, "system")
		if err != nil {
			hlog.Error("failed to consume hold", zap.Error(err))
			res.Skipped++
			return
		}
		if done {
			res.Consumed++
			hlog.Info("consumed hold of delivered order")
		}
		return
	default:
		// Listed without an order, but the checkout has since saved it.
		res.Skipped++
		return
	}

	if err != nil {
		hlog.Error("failed to release hold", zap.Error(err))
		res.Skipped++
		return
	}
	if done {
		res.Released++
		hlog.Info("released stale hold", zap.Int("quantity", h.Quantity))
	}
}
