package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pasar/internal/apperror"
	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/internal/services"
	"pasar/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []models.OrderStatus{
	models.OrderPending, models.OrderConfirmed, models.OrderPreparing, models.OrderReady,
	models.OrderPickedUp, models.OrderDelivering, models.OrderDelivered, models.OrderCancelled,
}

func TestCanTransition(t *testing.T) {
	reachable := func(from models.OrderStatus) []models.OrderStatus {
		var out []models.OrderStatus
		for _, to := range allStatuses {
			if services.CanTransition(from, to) {
				out = append(out, to)
			}
		}
		return out
	}

	assert.Equal(t, []models.OrderStatus{models.OrderConfirmed, models.OrderCancelled}, reachable(models.OrderPending))
	assert.Equal(t, []models.OrderStatus{models.OrderPreparing, models.OrderCancelled}, reachable(models.OrderConfirmed))
	assert.Equal(t, []models.OrderStatus{models.OrderReady, models.OrderCancelled}, reachable(models.OrderPreparing))
	assert.Equal(t, []models.OrderStatus{models.OrderPickedUp, models.OrderCancelled}, reachable(models.OrderReady))
	assert.Equal(t, []models.OrderStatus{models.OrderDelivering}, reachable(models.OrderPickedUp))
	assert.Equal(t, []models.OrderStatus{models.OrderDelivered}, reachable(models.OrderDelivering))
	assert.Empty(t, reachable(models.OrderDelivered))
	assert.Empty(t, reachable(models.OrderCancelled))
}

// placeOrder checks out qty units of a fresh product and returns the order.
func placeOrder(t *testing.T, e *testEnv, in services.CreateOrderInput, customer string, price int64, qty int) (*models.Order, *models.Product) {
	t.Helper()
	p := e.product(t, in.SellerID, price, 10)
	e.addToCart(t, customer, p.ID, qty)
	order, err := e.orders.CreateOrder(context.Background(), customer, in)
	require.NoError(t, err)
	return order, p
}

func advance(t *testing.T, e *testEnv, orderID string, statuses ...models.OrderStatus) *models.Order {
	t.Helper()
	var order *models.Order
	for _, st := range statuses {
		var err error
		order, err = e.orders.UpdateStatus(context.Background(), orderID, services.StatusUpdateInput{Status: st, Actor: "seller"})
		require.NoError(t, err, "to %s", st)
	}
	return order
}

func TestOrderService_CancelAfterPreparingReleasesStock(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.seller(t, 0)
	customer := uuid.NewString()
	p1 := e.product(t, s.ID, 1000, 10)
	p2 := e.product(t, s.ID, 2000, 10)
	e.addToCart(t, customer, p1.ID, 3)
	e.addToCart(t, customer, p2.ID, 1)
	order, err := e.orders.CreateOrder(ctx, customer, cashOrder(s.ID))
	require.NoError(t, err)
	assert.Equal(t, 7, e.record(t, p1.ID).AvailableQuantity)

	advance(t, e, order.ID, models.OrderConfirmed, models.OrderPreparing)

	cancelled, err := e.orders.CancelOrder(ctx, order.ID, "out of packaging", customer)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "out of packaging", *cancelled.CancellationReason)
	assert.Equal(t, customer, *cancelled.CancelledBy)

	for _, p := range []*models.Product{p1, p2} {
		rec := e.record(t, p.ID)
		assert.Equal(t, 10, rec.AvailableQuantity)
		assert.Equal(t, 0, rec.ReservedQuantity)
		assert.Equal(t, 10, rec.Quantity, "cancellation does not inflate on-hand stock")
		assertLedgerFolds(t, e, rec.ID)

		movements, err := e.inventory.Movements(ctx, rec.ID)
		require.NoError(t, err)
		last := movements[len(movements)-1]
		assert.Equal(t, models.MovementReturn, last.Type)
		assert.Equal(t, order.ID, last.OrderID)
		assert.Equal(t, "out of packaging", last.Reason)
	}

	stored, err := e.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	var history []models.OrderStatus
	for _, h := range stored.StatusHistory {
		history = append(history, h.Status)
	}
	assert.Equal(t, []models.OrderStatus{models.OrderPending, models.OrderConfirmed, models.OrderPreparing, models.OrderCancelled}, history)

	assert.Len(t, e.recorder.Named(events.OrderCancelled), 1)
	assert.Len(t, e.recorder.Named(events.OrderStatusUpdated), 3)

	// A second cancellation is refused and releases nothing.
	_, err = e.orders.CancelOrder(ctx, order.ID, "again", customer)
	assert.True(t, errors.Is(err, apperror.ErrInvalidState))
	assert.Equal(t, 10, e.record(t, p1.ID).AvailableQuantity)
}

func TestOrderService_CancelRefundsWallet(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.seller(t, 1000)
	customer := uuid.NewString()
	e.fund(t, customer, 10000)

	in := cashOrder(s.ID)
	in.PaymentMethod = models.PaymentMixed
	in.WalletAmount = 2000
	order, _ := placeOrder(t, e, in, customer, 3000, 1)
	assert.Equal(t, int64(2000), order.WalletAmountPaid)

	cancelled, err := e.orders.UpdateStatus(ctx, order.ID, services.StatusUpdateInput{Status: models.OrderCancelled, Actor: customer})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)
	assert.Equal(t, "cancelled by status update", *cancelled.CancellationReason)

	balance, err := e.wallets.Balance(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)

	// Refunds are keyed by order, so retrying does not pay twice.
	require.NoError(t, e.orders.RetryRefund(ctx, order.ID))
	balance, err = e.wallets.Balance(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)
}

func TestOrderService_ManualReleaseLeavesOrderHoldsIntact(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.seller(t, 0)
	order, p := placeOrder(t, e, cashOrder(s.ID), uuid.NewString(), 1000, 3)
	rec := e.record(t, p.ID)

	_, err := e.inventory.Reserve(ctx, p.ID, "", 2, "ops")
	require.NoError(t, err)

	// Only the two manually reserved units can be released by hand.
	got, err := e.inventory.Release(ctx, p.ID, "", 5, "ops")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReservedQuantity)
	assert.Equal(t, 2, lastMovement(t, e, rec.ID).Quantity)

	got, err = e.inventory.Release(ctx, p.ID, "", 3, "ops")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReservedQuantity, "stock held for the order stays reserved")

	cancelled, err := e.orders.CancelOrder(ctx, order.ID, "out of delivery range", "seller")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	m := lastMovement(t, e, rec.ID)
	assert.Equal(t, models.MovementReturn, m.Type)
	assert.Equal(t, order.ID, m.OrderID)
	hold, err := e.invRepo.GetHold(ctx, order.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReleased, hold.Status)

	rec = e.record(t, p.ID)
	assert.Equal(t, 0, rec.ReservedQuantity)
	assert.Equal(t, 10, rec.AvailableQuantity)
	assertLedgerFolds(t, e, rec.ID)
}

func TestOrderService_CancelReportsStuckRelease(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.seller(t, 0)
	order, p := placeOrder(t, e, cashOrder(s.ID), uuid.NewString(), 1000, 3)
	rec := e.record(t, p.ID)

	// Drift the row so the hold no longer fits the reserved quantity.
	require.NoError(t, e.db.Model(&models.InventoryRecord{}).Where("id = ?", rec.ID).
		Updates(map[string]any{"reserved_quantity": 0, "available_quantity": 10}).Error)

	cancelled, err := e.orders.CancelOrder(ctx, order.ID, "buyer request", "buyer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "releasing its stock failed")
	require.NotNil(t, cancelled)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	hold, err := e.invRepo.GetHold(ctx, order.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationHeld, hold.Status)

	// Once the row is repaired the sweep finishes the cancellation.
	require.NoError(t, e.db.Model(&models.InventoryRecord{}).Where("id = ?", rec.ID).
		Updates(map[string]any{"reserved_quantity": 3, "available_quantity": 7}).Error)
	res, err := services.NewReconciliationService(e.inventory, e.orderRepo, -time.Minute).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Released)
	assert.Equal(t, models.MovementReturn, lastMovement(t, e, rec.ID).Type)
	assert.Equal(t, 10, e.record(t, p.ID).AvailableQuantity)
}

func TestOrderService_IllegalTransitions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.seller(t, 0)
	customer := uuid.NewString()
	order, _ := placeOrder(t, e, cashOrder(s.ID), customer, 1000, 1)

	_, err := e.orders.UpdateStatus(ctx, order.ID, services.StatusUpdateInput{Status: models.OrderDelivered, Actor: "seller"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrInvalidState))
	assert.Equal(t, "invalid status transition from pending to delivered", err.Error())

	_, err = e.orders.UpdateStatus(ctx, order.ID, services.StatusUpdateInput{Status: "shipped", Actor: "seller"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	advance(t, e, order.ID, models.OrderConfirmed, models.OrderPreparing, models.OrderReady, models.OrderPickedUp)
	_, err = e.orders.CancelOrder(ctx, order.ID, "too late", customer)
	assert.True(t, errors.Is(err, apperror.ErrInvalidState))

	advance(t, e, order.ID, models.OrderDelivering, models.OrderDelivered)
	for _, to := range allStatuses {
		_, err := e.orders.UpdateStatus(ctx, order.ID, services.StatusUpdateInput{Status: to, Actor: "seller"})
		assert.True(t, errors.Is(err, apperror.ErrInvalidState), "delivered to %s", to)
	}

	_, err = e.orders.CancelOrder(ctx, order.ID, "", customer)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
	_, err = e.orders.UpdateStatus(ctx, uuid.NewString(), services.StatusUpdateInput{Status: models.OrderConfirmed})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestOrderService_DeliveryConsumesStockAndSettles(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.seller(t, 4000)
	customer := uuid.NewString()
	courier := uuid.NewString()
	order, p := placeOrder(t, e, cashOrder(s.ID), customer, 25000, 2)

	advance(t, e, order.ID, models.OrderConfirmed, models.OrderPreparing, models.OrderReady)
	picked, err := e.orders.UpdateStatus(ctx, order.ID, services.StatusUpdateInput{Status: models.OrderPickedUp, CourierID: courier, Actor: courier})
	require.NoError(t, err)
	require.NotNil(t, picked.CourierID)
	assert.Equal(t, courier, *picked.CourierID)

	delivered := advance(t, e, order.ID, models.OrderDelivering, models.OrderDelivered)
	assert.Equal(t, models.OrderDelivered, delivered.Status)
	assert.Equal(t, models.PaymentPaid, delivered.PaymentStatus, "cash collected at the door")
	assert.NotNil(t, delivered.DeliveredAt)

	rec := e.record(t, p.ID)
	assert.Equal(t, 8, rec.Quantity)
	assert.Equal(t, 0, rec.ReservedQuantity)
	assert.Equal(t, 8, rec.AvailableQuantity)
	assertLedgerFolds(t, e, rec.ID)

	st, err := e.settlements.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSettled, st.Status)
	assert.Equal(t, int64(5000), st.PlatformFee)
	assert.Equal(t, int64(45000), st.SellerEarnings)
	assert.Equal(t, int64(4000), st.CourierEarnings)

	for owner, want := range map[string]int64{s.ID: 45000, courier: 4000, platformWallet: 5000} {
		got, err := e.wallets.Balance(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, want, got, owner)
	}
}

func TestOrderRepository_TransitionRejectsStaleVersion(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	s := e.seller(t, 0)
	order, _ := placeOrder(t, e, cashOrder(s.ID), uuid.NewString(), 1000, 1)

	stale, err := e.orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	advance(t, e, order.ID, models.OrderConfirmed)

	stale.Status = models.OrderCancelled
	err = e.orderRepo.Transition(ctx, stale, stale.Version, models.StatusHistoryEntry{Status: models.OrderCancelled})
	assert.ErrorIs(t, err, repositories.ErrStaleVersion)

	current, err := e.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, current.Status)
	assert.Equal(t, 2, current.Version)
}
