package services_test

import (
	"context"
	"errors"
	"testing"

	"pasar/internal/models"
	"pasar/internal/services"
	"pasar/pkg/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockWallet is a mock implementation of services.WalletLedger
type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) Balance(ctx context.Context, ownerID string) (int64, error) {
	args := m.Called(ownerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWallet) Debit(ctx context.Context, ownerID string, amount int64, reference string) error {
	args := m.Called(ownerID, amount, reference)
	return args.Error(0)
}

func (m *MockWallet) Credit(ctx context.Context, ownerID string, amount int64, reference string) error {
	args := m.Called(ownerID, amount, reference)
	return args.Error(0)
}

func deliveredOrder(t *testing.T, e *testEnv, courierID *string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:     "ORD-TEST-" + uuid.NewString()[:8],
		CustomerID:      uuid.NewString(),
		SellerID:        uuid.NewString(),
		CourierID:       courierID,
		Subtotal:        20000,
		DeliveryFee:     3000,
		Discount:        1000,
		Total:           22000,
		PaymentMethod:   models.PaymentCash,
		PaymentStatus:   models.PaymentPaid,
		Status:          models.OrderDelivered,
		DeliveryAddress: testAddress(),
	}
	require.NoError(t, e.orderRepo.Create(context.Background(), order))
	return order
}

func TestSettlementService_FailedLegIsRetriedOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	courier := uuid.NewString()
	order := deliveredOrder(t, e, &courier)

	wallet := new(MockWallet)
	bus := events.NewBus(nil)
	rec := &events.Recorder{}
	bus.Subscribe(events.SettlementPending, rec.Observe)
	svc := services.NewSettlementService(e.settleRepo, e.orderRepo,
		services.NewRateCommission(decimal.RequireFromString("0.10")), wallet, platformWallet, bus)

	sellerRef := "settlement:" + order.ID + ":seller"
	courierRef := "settlement:" + order.ID + ":courier"
	platformRef := "settlement:" + order.ID + ":platform"
	wallet.On("Credit", order.SellerID, int64(17000), sellerRef).Return(nil).Once()
	wallet.On("Credit", courier, int64(3000), courierRef).Return(errors.New("wallet offline")).Once()

	err := svc.Settle(ctx, order)
	require.Error(t, err)

	st, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementPending, st.Status)
	assert.True(t, st.SellerPaid)
	assert.False(t, st.CourierPaid)
	assert.Equal(t, 1, st.Attempts)
	assert.Contains(t, st.LastError, "wallet offline")
	require.Len(t, rec.Named(events.SettlementPending), 1)

	wallet.On("Credit", courier, int64(3000), courierRef).Return(nil).Once()
	wallet.On("Credit", platformWallet, int64(2000), platformRef).Return(nil).Once()

	settled, err := svc.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	st, err = svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSettled, st.Status)
	assert.Equal(t, 2, st.Attempts)
	assert.Empty(t, st.LastError)

	// Nothing is left to retry and no leg is paid again.
	settled, err = svc.RetryPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled)
	require.NoError(t, svc.Settle(ctx, order))

	wallet.AssertExpectations(t)
	wallet.AssertNumberOfCalls(t, "Credit", 4)
}

func TestSettlementService_NoCourierPaysPlatform(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	order := deliveredOrder(t, e, nil)

	require.NoError(t, e.settlements.Settle(ctx, order))

	for owner, want := range map[string]int64{order.SellerID: 17000, platformWallet: 5000} {
		got, err := e.wallets.Balance(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, want, got, owner)
	}
}

func TestSettlementService_GetMissing(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.settlements.Get(context.Background(), uuid.NewString())
	require.Error(t, err)
}

func TestRateCommission_ComputeSplit(t *testing.T) {
	tests := []struct {
		name  string
		rate  string
		order models.Order
		want  services.Split
	}{
		{
			name:  "plain",
			rate:  "0.10",
			order: models.Order{Subtotal: 50000, DeliveryFee: 4000},
			want:  services.Split{SellerEarnings: 45000, CourierEarnings: 4000, PlatformFee: 5000},
		},
		{
			name:  "half rounds up",
			rate:  "0.15",
			order: models.Order{Subtotal: 1010},
			want:  services.Split{SellerEarnings: 858, PlatformFee: 152},
		},
		{
			name:  "discount comes out of the seller share",
			rate:  "0.10",
			order: models.Order{Subtotal: 10000, Discount: 2000, DeliveryFee: 500},
			want:  services.Split{SellerEarnings: 7000, CourierEarnings: 500, PlatformFee: 1000},
		},
		{
			name:  "seller share floored at zero",
			rate:  "0.50",
			order: models.Order{Subtotal: 1000, Discount: 900},
			want:  services.Split{SellerEarnings: 0, PlatformFee: 500},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := services.NewRateCommission(decimal.RequireFromString(tt.rate)).ComputeSplit(context.Background(), &tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := services.NewRateCommission(decimal.RequireFromString("1.5")).ComputeSplit(context.Background(), &models.Order{})
	assert.Error(t, err)
}
