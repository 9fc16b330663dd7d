package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
)

// ReadingRepository handles the rolling cache and the append-only history
type ReadingRepository struct {
	db *gorm.DB
}

func NewReadingRepository(db *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ReadingRepository) WithTx(tx *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: tx}
}

// CreateHistory appends a reading to the history
func (r *ReadingRepository) CreateHistory(ctx context.Context, reading *model.ReadingHistory) error {
	return r.db.WithContext(ctx).Create(reading).Error
}

// CreateCache inserts a row in the rolling cache
func (r *ReadingRepository) CreateCache(ctx context.Context, row *model.ReadingCache) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// PruneCache deletes an account's cache rows measured before cutoff. History is never touched.
func (r *ReadingRepository) PruneCache(ctx context.Context, accountID uuid.UUID, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND measured_at < ?", accountID, cutoff).
		Delete(&model.ReadingCache{})
	return result.RowsAffected, result.Error
}

// PruneAllCache deletes every cache row measured before cutoff
func (r *ReadingRepository) PruneAllCache(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("measured_at < ?", cutoff).
		Delete(&model.ReadingCache{})
	return result.RowsAffected, result.Error
}

// newestFirst orders readings by measurement time, then insertion order
const newestFirst = "measured_at DESC, reading_id DESC"

// Latest returns the most recent cache row of an account
func (r *ReadingRepository) Latest(ctx context.Context, accountID uuid.UUID) (*model.ReadingCache, error) {
	var row model.ReadingCache
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order(newestFirst).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CacheSince returns the cache rows measured at or after since, newest first
func (r *ReadingRepository) CacheSince(ctx context.Context, accountID uuid.UUID, since time.Time) ([]model.ReadingCache, error) {
	var rows []model.ReadingCache
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND measured_at >= ?", accountID, since).
		Order(newestFirst).
		Find(&rows).Error
	return rows, err
}

// HistorySince returns history rows measured at or after since, newest first
func (r *ReadingRepository) HistorySince(ctx context.Context, accountID uuid.UUID, since time.Time, limit int) ([]model.ReadingHistory, error) {
	var rows []model.ReadingHistory
	q := r.db.WithContext(ctx).
		Where("account_id = ? AND measured_at >= ?", accountID, since).
		Order(newestFirst)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// DeleteHistory removes a history row. Only operator tooling calls this.
func (r *ReadingRepository) DeleteHistory(ctx context.Context, accountID, readingID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("reading_id = ? AND account_id = ?", readingID, accountID).
		Delete(&model.ReadingHistory{})
	return result.RowsAffected, result.Error
}
