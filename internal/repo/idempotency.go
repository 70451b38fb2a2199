// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for comment submission.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-comment-moderation/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, fingerprint, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("fingerprint = ? AND key = ? AND expires_at > ?", fingerprint, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique
// violation. An expired record for the same (fingerprint, key) is replaced.
func CreateIdempotency(ctx context.Context, db *gorm.DB, fingerprint, key, commentID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Key:         key,
		CommentID:   commentID,
		Status:      status,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fingerprint = ? AND key = ? AND expires_at <= ?", fingerprint, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// GetIdempotency implements the store contract on GormStore.
func (s *GormStore) GetIdempotency(ctx context.Context, fingerprint, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, fingerprint, key, now)
}

// SaveIdempotency implements the store contract on GormStore.
func (s *GormStore) SaveIdempotency(ctx context.Context, fingerprint, key, commentID string, status int, ttl time.Duration) error {
	_, err := CreateIdempotency(ctx, s.DB, fingerprint, key, commentID, status, ttl)
	return err
}
