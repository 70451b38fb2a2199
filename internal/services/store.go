package services

import (
	"context"
	"time"

	"github.com/tbourn/go-comment-moderation/internal/domain"
	"github.com/tbourn/go-comment-moderation/internal/identity"
)

// CommentStore is the persistence contract the services rely on. Every
// method is atomic on its own; Admit, Transition and Revoke keep the identity
// records consistent with the comments they touch. repo.GormStore and
// repo.MemoryStore implement it.
type CommentStore interface {
	identity.Ledger

	Admit(ctx context.Context, c *domain.Comment) error
	Get(ctx context.Context, id string) (*domain.Comment, error)
	SetModerationRef(ctx context.Context, id, ref string) error
	Transition(ctx context.Context, id string, to domain.Status) (*domain.Comment, error)
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Comment, error)
	FindByFingerprint(ctx context.Context, fp string) (*domain.Comment, error)
	Revoke(ctx context.Context, fp string) (*domain.Comment, error)
	RebuildIdentities(ctx context.Context) (int, error)
	ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]domain.Comment, error)
	PruneRejected(ctx context.Context, cutoff time.Time) (int64, error)
	ApprovedStats(ctx context.Context) (count int64, lastDecided *time.Time, err error)

	GetIdempotency(ctx context.Context, fp, key string, now time.Time) (*domain.Idempotency, error)
	SaveIdempotency(ctx context.Context, fp, key, commentID string, status int, ttl time.Duration) error
}
