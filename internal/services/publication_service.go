// Package services – PublicationService
//
// PublicationService exposes approved comments to public readers. Reads go
// straight to the store, whose listings are single consistent snapshots.
package services

import (
	"context"
	"time"

	"github.com/tbourn/go-comment-moderation/internal/domain"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PublicationService lists approved comments.
type PublicationService struct {
	Store CommentStore
	// MaxList caps every listing; 0 means unlimited.
	MaxList int
}

// ListApproved returns approved comments newest first. limit <= 0 returns
// everything up to MaxList.
func (s *PublicationService) ListApproved(ctx context.Context, limit int) ([]domain.Comment, error) {
	tr := otel.Tracer("services/PublicationService")
	ctx, span := tr.Start(ctx, "ListApproved", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if s.MaxList > 0 && (limit <= 0 || limit > s.MaxList) {
		limit = s.MaxList
	}
	return s.Store.ListByStatus(ctx, domain.StatusApproved, limit)
}

// Stats returns the approved count and the most recent decision time, used
// for conditional GETs.
func (s *PublicationService) Stats(ctx context.Context) (int64, *time.Time, error) {
	tr := otel.Tracer("services/PublicationService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()
	return s.Store.ApprovedStats(ctx)
}
