package services

import (
	"context"
	"errors"
	"fmt"

	"pasar/internal/logger"
	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/pkg/events"

	"go.uber.org/zap"
)

const settlementBatch = 50

// Settler pays out a delivered order.
type Settler interface {
	Settle(ctx context.Context, order *models.Order) error
}

// SettlementService credits the seller, courier and platform shares of delivered
// orders. A settlement that cannot complete stays pending and is retried.
type SettlementService struct {
	repo             repositories.SettlementRepository
	orders           repositories.OrderRepository
	commission       CommissionEngine
	wallets          WalletLedger
	platformWalletID string
	events           events.Publisher
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(repo repositories.SettlementRepository, orders repositories.OrderRepository, commission CommissionEngine, wallets WalletLedger, platformWalletID string, pub events.Publisher) *SettlementService {
	return &SettlementService{
		repo:             repo,
		orders:           orders,
		commission:       commission,
		wallets:          wallets,
		platformWalletID: platformWalletID,
		events:           pub,
	}
}

// Settle creates or resumes the order's settlement and credits every unpaid leg.
func (s *SettlementService) Settle(ctx context.Context, order *models.Order) error {
	st, err := s.repo.GetByOrder(ctx, order.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		st = &models.Settlement{
			OrderID:   order.ID,
			SellerID:  order.SellerID,
			CourierID: order.CourierID,
			Status:    models.SettlementPending,
		}
		if err = s.repo.Create(ctx, st); errors.Is(err, repositories.ErrDuplicateKey) {
			st, err = s.repo.GetByOrder(ctx, order.ID)
		}
	}
	if err != nil {
		return err
	}
	return s.process(ctx, st, order)
}

// Get returns the settlement record of an order.
func (s *SettlementService) Get(ctx context.Context, orderID string) (*models.Settlement, error) {
	st, err := s.repo.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "settlement of order %s not found", orderID)
	}
	return st, nil
}

// RetryPending reprocesses pending settlements and returns how many completed.
func (s *SettlementService) RetryPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPending(ctx, settlementBatch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for i := range pending {
		st := &pending[i]
		order, err := s.orders.GetByID(ctx, st.OrderID)
		if err != nil {
			logger.FromCtx(ctx).Warn("settlement order unavailable", zap.String("order_id", st.OrderID), zap.Error(err))
			continue
		}
		if err := s.process(ctx, st, order); err == nil {
			settled++
		}
	}
	return settled, nil
}

func (s *SettlementService) process(ctx context.Context, st *models.Settlement, order *models.Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "SettlementService.process"),
		zap.String("order_id", order.ID),
	)
	if st.Status == models.SettlementSettled {
		return nil
	}
	st.Attempts++

	if !st.Computed {
		split, err := s.commission.ComputeSplit(ctx, order)
		if err != nil {
			return s.fail(ctx, log, st, fmt.Errorf("compute split: %w", err))
		}
		st.SellerEarnings = split.SellerEarnings
		st.CourierEarnings = split.CourierEarnings
		st.PlatformFee = split.PlatformFee
		st.CourierID = order.CourierID
		st.Computed = true
	}

	courierOwner := s.platformWalletID
	if st.CourierID != nil && *st.CourierID != "" {
		courierOwner = *st.CourierID
	}
	legs := []struct {
		name   string
		owner  string
		amount int64
		paid   *bool
	}{
		{"seller", st.SellerID, st.SellerEarnings, &st.SellerPaid},
		{"courier", courierOwner, st.CourierEarnings, &st.CourierPaid},
		{"platform", s.platformWalletID, st.PlatformFee, &st.PlatformPaid},
	}
	for _, leg := range legs {
		if *leg.paid {
			continue
		}
		if leg.amount > 0 {
			ref := fmt.Sprintf("settlement:%s:%s", order.ID, leg.name)
			if err := s.wallets.Credit(ctx, leg.owner, leg.amount, ref); err != nil {
				return s.fail(ctx, log, st, fmt.Errorf("credit %s share: %w", leg.name, err))
			}
		}
		*leg.paid = true
	}

	st.Status = models.SettlementSettled
	st.LastError = ""
	if err := s.repo.Save(ctx, st); err != nil {
		log.Error("failed to save settlement", zap.Error(err))
		return err
	}
	log.Info("order settled",
		zap.Int64("seller_earnings", st.SellerEarnings),
		zap.Int64("courier_earnings", st.CourierEarnings),
		zap.Int64("platform_fee", st.PlatformFee))
	return nil
}

func (s *SettlementService) fail(ctx context.Context, log *zap.Logger, st *models.Settlement, cause error) error {
	st.Status = models.SettlementPending
	st.LastError = cause.Error()
	if err := s.repo.Save(ctx, st); err != nil {
		log.Error("failed to save pending settlement", zap.Error(err))
	}
	log.Warn("settlement pending", zap.Int("attempts", st.Attempts), zap.Error(cause))
	if s.events != nil {
		s.events.Publish(ctx, events.SettlementPending, st.OrderID, map[string]any{
			"orderId":  st.OrderID,
			"attempts": st.Attempts,
			"error":    st.LastError,
		})
	}
	return cause
}
