// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the comment store: admission, lookups,
// state transitions, and revocation, each with its identity bookkeeping in
// the same transaction.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-comment-moderation/internal/domain"
)

// GormStore is the SQL-backed comment store.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{DB: db} }

// Admit inserts c as pending and locks its fingerprint. It returns a
// *LockedError when the fingerprint already holds a pending or approved
// comment.
func (s *GormStore) Admit(ctx context.Context, c *domain.Comment) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Status = domain.StatusPending

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur domain.Identity
		err := tx.Where("fingerprint = ?", c.Fingerprint).Take(&cur).Error
		switch {
		case err == nil:
			return &LockedError{Status: cur.Status, CommentID: cur.CommentID}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Create(c).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		id := &domain.Identity{
			Fingerprint: c.Fingerprint,
			CommentID:   c.ID,
			Status:      domain.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(id).Error; err != nil {
			// Lost a race with another writer on the primary key.
			if isUniqueViolation(err) {
				return &LockedError{Status: domain.StatusPending}
			}
			return err
		}
		return nil
	})
}

// Get returns the comment with id or ErrNotFound.
func (s *GormStore) Get(ctx context.Context, id string) (*domain.Comment, error) {
	var c domain.Comment
	err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetModerationRef stores the gateway handle for a comment.
func (s *GormStore) SetModerationRef(ctx context.Context, id, ref string) error {
	res := s.DB.WithContext(ctx).Model(&domain.Comment{}).
		Where("id = ?", id).
		Updates(map[string]any{"moderation_ref": ref, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition moves a pending comment to approved or rejected. The update is
// conditional on the current status so concurrent callers cannot both
// succeed; the loser gets ErrNotPending. Approval locks the fingerprint,
// rejection releases it.
func (s *GormStore) Transition(ctx context.Context, id string, to domain.Status) (*domain.Comment, error) {
	if !domain.StatusPending.CanTransition(to) {
		return nil, ErrNotPending
	}
	var out domain.Comment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&domain.Comment{}).
			Where("id = ? AND status = ?", id, domain.StatusPending).
			Updates(map[string]any{"status": to, "decided_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("id = ?", id).Take(&out).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			return ErrNotPending
		}
		if err := tx.Where("id = ?", id).Take(&out).Error; err != nil {
			return err
		}

		if to == domain.StatusRejected {
			return tx.Where("fingerprint = ? AND comment_id = ?", out.Fingerprint, out.ID).
				Delete(&domain.Identity{}).Error
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoUpdates: clause.Assignments(map[string]any{"comment_id": out.ID, "status": domain.StatusApproved, "updated_at": now}),
		}).Create(&domain.Identity{
			Fingerprint: out.Fingerprint,
			CommentID:   out.ID,
			Status:      domain.StatusApproved,
			CreatedAt:   now,
			UpdatedAt:   now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByStatus returns comments in status, newest first (CreatedAt DESC, ID
// DESC). limit <= 0 means no limit. The read runs as a single statement, so
// it observes a consistent snapshot.
func (s *GormStore) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	q := s.DB.WithContext(ctx).Where("status = ?", status).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// FindByFingerprint returns the pending or approved comment held by fp, or
// ErrNotFound.
func (s *GormStore) FindByFingerprint(ctx context.Context, fp string) (*domain.Comment, error) {
	var c domain.Comment
	err := s.DB.WithContext(ctx).
		Where("fingerprint = ? AND status IN ?", fp, []domain.Status{domain.StatusPending, domain.StatusApproved}).
		Order("created_at DESC").
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Identity returns the admission record for fp.
func (s *GormStore) Identity(ctx context.Context, fp string) (domain.Identity, bool, error) {
	var rec domain.Identity
	err := s.DB.WithContext(ctx).Where("fingerprint = ?", fp).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, err
	}
	return rec, true, nil
}

// Revoke deletes the pending or approved comment held by fp and releases the
// fingerprint. It returns the deleted comment, or ErrNotFound.
func (s *GormStore) Revoke(ctx context.Context, fp string) (*domain.Comment, error) {
	var out domain.Comment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("fingerprint = ? AND status IN ?", fp, []domain.Status{domain.StatusPending, domain.StatusApproved}).
			Order("created_at DESC").
			Take(&out).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("id = ?", out.ID).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		return tx.Where("fingerprint = ?", fp).Delete(&domain.Identity{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RebuildIdentities recomputes the identity table from comments: every
// pending or approved comment locks its fingerprint (approved wins over
// pending, newer over older), everything else is dropped. It returns the
// number of locks written.
func (s *GormStore) RebuildIdentities(ctx context.Context) (int, error) {
	var n int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []domain.Comment
		if err := tx.Select("id", "fingerprint", "status", "created_at").
			Where("status IN ?", []domain.Status{domain.StatusPending, domain.StatusApproved}).
			Order("created_at ASC, id ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		locks := buildLocks(rows, time.Now().UTC())

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Identity{}).Error; err != nil {
			return err
		}
		if len(locks) == 0 {
			return nil
		}
		n = len(locks)
		return tx.CreateInBatches(locks, 200).Error
	})
	return n, err
}

// buildLocks folds comments (oldest first) into one identity per fingerprint.
func buildLocks(rows []domain.Comment, now time.Time) []domain.Identity {
	byFP := make(map[string]int, len(rows))
	var out []domain.Identity
	for _, c := range rows {
		rec := domain.Identity{Fingerprint: c.Fingerprint, CommentID: c.ID, Status: c.Status, CreatedAt: now, UpdatedAt: now}
		i, seen := byFP[c.Fingerprint]
		if !seen {
			byFP[c.Fingerprint] = len(out)
			out = append(out, rec)
			continue
		}
		if out[i].Status == domain.StatusApproved && c.Status != domain.StatusApproved {
			continue
		}
		out[i] = rec
	}
	return out
}

// ListOrphans returns pending comments without a moderation message that
// were created before cutoff, oldest first.
func (s *GormStore) ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	q := s.DB.WithContext(ctx).
		Where("status = ? AND moderation_ref = '' AND created_at < ?", domain.StatusPending, cutoff).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// PruneRejected deletes rejected comments decided before cutoff.
func (s *GormStore) PruneRejected(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("status = ? AND decided_at < ?", domain.StatusRejected, cutoff).
		Delete(&domain.Comment{})
	return res.RowsAffected, res.Error
}
