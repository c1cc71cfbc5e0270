package repositories

import (
	"context"
	"errors"
	"fmt"

	"pasar/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SettlementRepository persists post-delivery payout records.
type SettlementRepository interface {
	GetByOrder(ctx context.Context, orderID string) (*models.Settlement, error)
	Create(ctx context.Context, s *models.Settlement) error
	Save(ctx context.Context, s *models.Settlement) error
	ListPending(ctx context.Context, limit int) ([]models.Settlement, error)
}

// GORMSettlementRepository is a GORM implementation of SettlementRepository.
type GORMSettlementRepository struct {
	db *gorm.DB
}

// NewGORMSettlementRepository creates a new instance of GORMSettlementRepository.
func NewGORMSettlementRepository(db *gorm.DB) *GORMSettlementRepository {
	return &GORMSettlementRepository{db: db}
}

func (r *GORMSettlementRepository) GetByOrder(ctx context.Context, orderID string) (*models.Settlement, error) {
	var s models.Settlement
	if err := r.db.WithContext(ctx).First(&s, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("settlement of order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get settlement of order %s: %w", orderID, err)
	}
	return &s, nil
}

func (r *GORMSettlementRepository) Create(ctx context.Context, s *models.Settlement) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("settlement of order %s: %w", s.OrderID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	return nil
}

func (r *GORMSettlementRepository) Save(ctx context.Context, s *models.Settlement) error {
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return fmt.Errorf("failed to save settlement %s: %w", s.ID, err)
	}
	return nil
}

func (r *GORMSettlementRepository) ListPending(ctx context.Context, limit int) ([]models.Settlement, error) {
	var out []models.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SettlementPending).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending settlements: %w", err)
	}
	return out, nil
}
