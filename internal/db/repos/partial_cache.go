package repos

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/elecmate/rams/internal/db/models"
)

// PartialCacheRepository provides access to cached agent outputs
type PartialCacheRepository struct {
	db *gorm.DB
}

// NewPartialCacheRepository creates a new partial cache repository instance
func NewPartialCacheRepository(db *gorm.DB) *PartialCacheRepository {
	return &PartialCacheRepository{db: db}
}

// Create inserts a new cache entry
func (r *PartialCacheRepository) Create(ctx context.Context, entry *models.PartialCacheEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Candidates returns the unexpired entries matching the categorical filters
func (r *PartialCacheRepository) Candidates(ctx context.Context, workType, jobScale string, agentType models.AgentType, now time.Time) ([]models.PartialCacheEntry, error) {
	var entries []models.PartialCacheEntry
	err := r.db.WithContext(ctx).
		Where("work_type = ? AND job_scale = ? AND agent_type = ? AND expires_at > ?", workType, jobScale, agentType, now).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query cache candidates: %w", err)
	}
	return entries, nil
}

// RecordHit increments the hit count and refreshes last_used_at. Expired
// entries are left untouched.
func (r *PartialCacheRepository) RecordHit(ctx context.Context, id uint, now time.Time) (int, error) {
	res := r.db.WithContext(ctx).Model(&models.PartialCacheEntry{}).
		Where("id = ? AND expires_at > ?", id, now).
		Updates(map[string]interface{}{
			models.CacheHitCountField:   gorm.Expr("hit_count + 1"),
			models.CacheLastUsedAtField: now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to record cache hit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrCacheEntryUnavailable
	}

	var entry models.PartialCacheEntry
	if err := r.db.WithContext(ctx).Select(models.CacheHitCountField).Where("id = ?", id).First(&entry).Error; err != nil {
		return 0, fmt.Errorf("failed to read cache hit count: %w", err)
	}
	return entry.HitCount, nil
}

// DeleteExpired removes every entry that expired before now
func (r *PartialCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.PartialCacheEntry{})
	return res.RowsAffected, res.Error
}
