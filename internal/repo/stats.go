// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on the public listing.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-comment-moderation/internal/domain"
)

// ApprovedStats returns the number of approved comments and the latest
// decision time among them. When there are none, count is 0 and
// lastDecided is nil.
func ApprovedStats(ctx context.Context, db *gorm.DB) (count int64, lastDecided *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Comment{}).Where("status = ?", domain.StatusApproved)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest decided_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		DecidedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Comment{}).
		Where("status = ?", domain.StatusApproved).
		Select("decided_at").Order("decided_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.DecidedAt, nil
}

// ApprovedStats implements the store contract on GormStore.
func (s *GormStore) ApprovedStats(ctx context.Context) (int64, *time.Time, error) {
	return ApprovedStats(ctx, s.DB)
}
