package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pasar/internal/apperror"
	"pasar/internal/logger"
	"pasar/internal/models"
	"pasar/pkg/events"

	"go.uber.org/zap"
)

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:    {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed:  {models.OrderPreparing, models.OrderCancelled},
	models.OrderPreparing:  {models.OrderReady, models.OrderCancelled},
	models.OrderReady:      {models.OrderPickedUp, models.OrderCancelled},
	models.OrderPickedUp:   {models.OrderDelivering},
	models.OrderDelivering: {models.OrderDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func knownStatus(s models.OrderStatus) bool {
	if _, ok := transitions[s]; ok {
		return true
	}
	return s.IsTerminal()
}

// StatusUpdateInput moves an order to its next status.
type StatusUpdateInput struct {
	Status    models.OrderStatus `json:"status" validate:"required"`
	Notes     string             `json:"notes,omitempty"`
	CourierID string             `json:"courierId,omitempty"`
	Actor     string             `json:"-"`
}

// UpdateStatus applies one legal transition. Moving to cancelled is handled as
// a cancellation. On delivery the stock holds are consumed, cash is collected
// and settlement runs; a settlement failure never reverts the delivery.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, in StatusUpdateInput) (*models.Order, error) {
	if !knownStatus(in.Status) {
		return nil, apperror.Validation("unknown order status %q", in.Status).
			WithDetail(map[string]string{"status": "oneof"})
	}
	if in.Status == models.OrderCancelled {
		reason := in.Notes
		if strings.TrimSpace(reason) == "" {
			reason = "cancelled by status update"
		}
		return s.CancelOrder(ctx, orderID, reason, in.Actor)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if !CanTransition(from, in.Status) {
		return nil, apperror.InvalidState("invalid status transition from %s to %s", from, in.Status)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "OrderService.UpdateStatus"),
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(in.Status)),
	)

	now := s.now()
	expected := order.Version
	order.Status = in.Status
	order.UpdatedAt = now
	if in.Status == models.OrderPickedUp && in.CourierID != "" {
		courier := in.CourierID
		order.CourierID = &courier
	}
	if in.Status == models.OrderDelivered {
		order.DeliveredAt = &now
		if order.PaymentStatus == models.PaymentPending && order.PaymentMethod != models.PaymentOnline {
			// The cash share is collected at the door.
			order.PaymentStatus = models.PaymentPaid
		}
	}

	entry := models.StatusHistoryEntry{Status: in.Status, Actor: in.Actor, Notes: in.Notes, CreatedAt: now}
	if err := s.transition(ctx, order, expected, entry); err != nil {
		return nil, err
	}
	log.Info("order status updated")

	if in.Status == models.OrderDelivered {
		s.fulfil(ctx, log, order, in.Actor)
	}

	s.publish(ctx, events.OrderStatusUpdated, order, map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"from":        from,
		"to":          order.Status,
		"actor":       in.Actor,
	})
	return order, nil
}

// fulfil consumes the delivered order's holds and settles it. Failures are
// logged; the reconciliation sweep and the settlement retry finish the work.
func (s *OrderService) fulfil(ctx context.Context, log *zap.Logger, order *models.Order, actor string) {
	for _, it := range order.Items {
		if _, err := s.inventory.ConsumeForOrder(ctx, order.ID, it.InventoryID, actor); err != nil {
			log.Error("failed to consume stock hold", zap.String("inventory_id", it.InventoryID), zap.Error(err))
		}
	}
	if s.settlement == nil {
		return
	}
	if err := s.settlement.Settle(ctx, order); err != nil {
		log.Warn("settlement deferred", zap.Error(err))
	}
}

// CancelOrder cancels a pending, confirmed, preparing or ready order. The
// status is written first under the version check, so a concurrent transition
// wins or loses as a whole; afterwards every item's hold is released with a
// `return` movement and any wallet payment is refunded. A failed release or
// refund is returned along with the cancelled order; the reconciliation sweep
// and RetryRefund finish that work.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason, actor string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("cancellation reason is required").
			WithDetail(map[string]string{"reason": "required"})
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if from.IsTerminal() {
		return nil, apperror.InvalidState("order %s is already %s", order.OrderNumber, from)
	}
	if !CanTransition(from, models.OrderCancelled) {
		return nil, apperror.InvalidState("invalid status transition from %s to %s", from, models.OrderCancelled)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "OrderService.CancelOrder"),
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
	)

	now := s.now()
	expected := order.Version
	order.Status = models.OrderCancelled
	order.CancellationReason = &reason
	order.CancelledBy = &actor
	order.CancelledAt = &now
	order.UpdatedAt = now
	if order.WalletAmountPaid > 0 {
		order.PaymentStatus = models.PaymentRefunded
	}

	entry := models.StatusHistoryEntry{Status: models.OrderCancelled, Actor: actor, Notes: reason, CreatedAt: now}
	if err := s.transition(ctx, order, expected, entry); err != nil {
		return nil, err
	}

	var releaseErrs []error
	for _, it := range order.Items {
		if _, err := s.inventory.ReleaseForOrder(ctx, order.ID, it.InventoryID, models.MovementReturn, reason, actor); err != nil {
			log.Error("failed to release stock hold", zap.String("inventory_id", it.InventoryID), zap.Error(err))
			releaseErrs = append(releaseErrs, fmt.Errorf("inventory %s: %w", it.InventoryID, err))
		}
	}

	var refundErr error
	if order.WalletAmountPaid > 0 {
		refundErr = s.wallets.Credit(ctx, order.CustomerID, order.WalletAmountPaid, "refund:"+order.ID)
		if refundErr != nil {
			log.Error("failed to refund wallet payment", zap.Int64("amount", order.WalletAmountPaid), zap.Error(refundErr))
		}
	}
	log.Info("order cancelled", zap.String("reason", reason))

	s.publish(ctx, events.OrderStatusUpdated, order, map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"from":        from,
		"to":          order.Status,
		"actor":       actor,
	})
	s.publish(ctx, events.OrderCancelled, order, map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"reason":      reason,
		"cancelledBy": actor,
		"refunded":    order.WalletAmountPaid,
	})

	var errs []error
	if len(releaseErrs) > 0 {
		errs = append(errs, fmt.Errorf("order %s cancelled but releasing its stock failed: %v", order.OrderNumber, errors.Join(releaseErrs...)))
	}
	if refundErr != nil {
		errs = append(errs, fmt.Errorf("order %s cancelled but the wallet refund failed: %w", order.OrderNumber, refundErr))
	}
	return order, errors.Join(errs...)
}

// RetryRefund re-posts the wallet refund of a cancelled order. Refunds are keyed
// by order, so a refund that already went through is not paid twice.
func (s *OrderService) RetryRefund(ctx context.Context, orderID string) error {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderCancelled || order.WalletAmountPaid == 0 {
		return apperror.InvalidState("order %s has no wallet refund due", order.OrderNumber)
	}
	return s.wallets.Credit(ctx, order.CustomerID, order.WalletAmountPaid, "refund:"+order.ID)
}
