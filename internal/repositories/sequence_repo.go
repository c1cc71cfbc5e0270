package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pasar/internal/models"

	"gorm.io/gorm"
)

// GORMSequenceRepository hands out per-day counters from the order_sequences table.
type GORMSequenceRepository struct {
	db *gorm.DB
}

// NewGORMSequenceRepository creates a new instance of GORMSequenceRepository.
func NewGORMSequenceRepository(db *gorm.DB) *GORMSequenceRepository {
	return &GORMSequenceRepository{db: db}
}

// Next increments the counter for day and returns the new value. The increment
// is a single UPDATE, so concurrent callers never observe the same value.
func (r *GORMSequenceRepository) Next(ctx context.Context, day string) (int64, error) {
	var value int64
	for attempt := 0; attempt < 3; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.OrderSequence{}).
				Where("day = ?", day).
				Updates(map[string]any{"value": gorm.Expr("value + 1"), "updated_at": time.Now()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				seq := models.OrderSequence{Day: day, Value: 1, UpdatedAt: time.Now()}
				if err := tx.Create(&seq).Error; err != nil {
					return err
				}
				value = 1
				return nil
			}
			var seq models.OrderSequence
			if err := tx.First(&seq, "day = ?", day).Error; err != nil {
				return err
			}
			value = seq.Value
			return nil
		})
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, fmt.Errorf("failed to advance order sequence %s: %w", day, err)
		}
	}
	return 0, fmt.Errorf("failed to advance order sequence %s: %w", day, ErrStaleVersion)
}
