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

// WalletRepository persists balances and their transaction log.
type WalletRepository interface {
	GetByOwner(ctx context.Context, ownerID string) (*models.Wallet, error)
	Debit(ctx context.Context, ownerID string, amount int64, reference string) (*models.Wallet, error)
	Credit(ctx context.Context, ownerID string, amount int64, reference string) (*models.Wallet, error)
	Transactions(ctx context.Context, ownerID string) ([]models.WalletTransaction, error)
}

// GORMWalletRepository is a GORM implementation of WalletRepository.
type GORMWalletRepository struct {
	db *gorm.DB
}

// NewGORMWalletRepository creates a new instance of GORMWalletRepository.
func NewGORMWalletRepository(db *gorm.DB) *GORMWalletRepository {
	return &GORMWalletRepository{db: db}
}

func (r *GORMWalletRepository) GetByOwner(ctx context.Context, ownerID string) (*models.Wallet, error) {
	return getWallet(r.db.WithContext(ctx), ownerID)
}

func getWallet(db *gorm.DB, ownerID string) (*models.Wallet, error) {
	var w models.Wallet
	if err := db.First(&w, "owner_id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("wallet of %s: %w", ownerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallet of %s: %w", ownerID, err)
	}
	return &w, nil
}

// Debit subtracts amount only if the balance covers it.
func (r *GORMWalletRepository) Debit(ctx context.Context, ownerID string, amount int64, reference string) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Wallet{}).
			Where("owner_id = ? AND balance >= ?", ownerID, amount).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to debit wallet of %s: %w", ownerID, res.Error)
		}
		if res.RowsAffected == 0 {
			if _, err := getWallet(tx, ownerID); err != nil {
				return err
			}
			return ErrInsufficientFunds
		}
		w, err := getWallet(tx, ownerID)
		if err != nil {
			return err
		}
		out = w
		return recordWalletTx(tx, w, models.WalletDebit, amount, reference)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Credit adds amount, opening the wallet on first credit. A credit whose
// non-empty reference was already posted to the wallet is not applied again.
func (r *GORMWalletRepository) Credit(ctx context.Context, ownerID string, amount int64, reference string) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if reference != "" {
			var posted int64
			err := tx.Model(&models.WalletTransaction{}).
				Joins("JOIN wallets ON wallets.id = wallet_transactions.wallet_id").
				Where("wallets.owner_id = ? AND wallet_transactions.reference = ? AND wallet_transactions.type = ?",
					ownerID, reference, models.WalletCredit).
				Count(&posted).Error
			if err != nil {
				return fmt.Errorf("failed to check credit %s: %w", reference, err)
			}
			if posted > 0 {
				w, err := getWallet(tx, ownerID)
				if err != nil {
					return err
				}
				out = w
				return nil
			}
		}
		res := tx.Model(&models.Wallet{}).
			Where("owner_id = ?", ownerID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance + ?", amount),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to credit wallet of %s: %w", ownerID, res.Error)
		}
		if res.RowsAffected == 0 {
			w := &models.Wallet{ID: uuid.New().String(), OwnerID: ownerID, Balance: amount, CreatedAt: now, UpdatedAt: now}
			if err := tx.Create(w).Error; err != nil {
				return fmt.Errorf("failed to open wallet of %s: %w", ownerID, err)
			}
			out = w
			return recordWalletTx(tx, w, models.WalletCredit, amount, reference)
		}
		w, err := getWallet(tx, ownerID)
		if err != nil {
			return err
		}
		out = w
		return recordWalletTx(tx, w, models.WalletCredit, amount, reference)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func recordWalletTx(tx *gorm.DB, w *models.Wallet, typ models.WalletTransactionType, amount int64, reference string) error {
	entry := models.WalletTransaction{
		ID:           uuid.New().String(),
		WalletID:     w.ID,
		Type:         typ,
		Amount:       amount,
		Reference:    reference,
		BalanceAfter: w.Balance,
		CreatedAt:    time.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record wallet transaction: %w", err)
	}
	return nil
}

// Transactions lists the wallet log of an owner, oldest first.
func (r *GORMWalletRepository) Transactions(ctx context.Context, ownerID string) ([]models.WalletTransaction, error) {
	w, err := r.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var txs []models.WalletTransaction
	if err := r.db.WithContext(ctx).Where("wallet_id = ?", w.ID).Order("created_at ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return txs, nil
}
