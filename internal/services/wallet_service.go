package services

import (
	"context"
	"errors"

	"pasar/internal/apperror"
	"pasar/internal/models"
	"pasar/internal/repositories"
)

// WalletLedger is the stored-value collaborator used for wallet payments,
// refunds and settlement payouts.
type WalletLedger interface {
	Balance(ctx context.Context, ownerID string) (int64, error)
	Debit(ctx context.Context, ownerID string, amount int64, reference string) error
	Credit(ctx context.Context, ownerID string, amount int64, reference string) error
}

// WalletService is the GORM-backed WalletLedger.
type WalletService struct {
	repo repositories.WalletRepository
}

// NewWalletService creates a new WalletService.
func NewWalletService(repo repositories.WalletRepository) *WalletService {
	return &WalletService{repo: repo}
}

// Balance returns the owner's balance; an owner without a wallet has 0.
func (s *WalletService) Balance(ctx context.Context, ownerID string) (int64, error) {
	w, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return w.Balance, nil
}

// Debit withdraws amount, failing InsufficientResource when the balance is short.
func (s *WalletService) Debit(ctx context.Context, ownerID string, amount int64, reference string) error {
	if amount <= 0 {
		return apperror.Validation("debit amount must be positive")
	}
	_, err := s.repo.Debit(ctx, ownerID, amount, reference)
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrInsufficientFunds) || errors.Is(err, repositories.ErrNotFound) {
		balance, _ := s.Balance(ctx, ownerID)
		return apperror.Insufficient("insufficient wallet balance: requested %d, available %d", amount, balance).
			WithDetail(apperror.FundsShortage{OwnerID: ownerID, Requested: amount, Balance: balance})
	}
	return err
}

// Credit deposits amount. Posting the same reference twice credits once.
func (s *WalletService) Credit(ctx context.Context, ownerID string, amount int64, reference string) error {
	if amount <= 0 {
		return apperror.Validation("credit amount must be positive")
	}
	_, err := s.repo.Credit(ctx, ownerID, amount, reference)
	return err
}

// Transactions lists the owner's wallet log.
func (s *WalletService) Transactions(ctx context.Context, ownerID string) ([]models.WalletTransaction, error) {
	txs, err := s.repo.Transactions(ctx, ownerID)
	if err != nil {
		return nil, notFoundOr(err, "wallet of %s not found", ownerID)
	}
	return txs, nil
}
