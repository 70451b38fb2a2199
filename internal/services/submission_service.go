// Package services – SubmissionService
//
// SubmissionService validates and admits new comments. A comment is stored
// as pending under its fingerprint lock, and only after that commit is the
// moderation request posted to the gateway. Gateway failures leave the
// comment pending without a message handle; the Reconciler picks it up later.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-comment-moderation/internal/domain"
	"github.com/tbourn/go-comment-moderation/internal/identity"
	"github.com/tbourn/go-comment-moderation/internal/notify"
	"github.com/tbourn/go-comment-moderation/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultGatewayTimeout = 10 * time.Second

// SubmitInput is an untrusted submission.
type SubmitInput struct {
	Name           string
	Text           string
	Fingerprint    string
	IdempotencyKey string
}

// SubmitResult is the admitted comment. Replayed is true when the result came
// from an earlier submission with the same idempotency key.
type SubmitResult struct {
	Comment  *domain.Comment
	Replayed bool
}

// SubmissionService admits comments.
type SubmissionService struct {
	Store   CommentStore
	Gate    *identity.Gate
	Gateway notify.Gateway
	Texts   notify.Texts
	Log     zerolog.Logger

	MaxTextRunes   int
	MaxNameRunes   int
	IdempotencyTTL time.Duration
	GatewayTimeout time.Duration

	// NameSuffix returns the number used in generated display names.
	// Defaults to a random value in [1, 9999].
	NameSuffix func() int
}

// Submit validates in, admits it under the fingerprint lock and posts the
// moderation request.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("fingerprint", identity.Short(in.Fingerprint)),
			attribute.Bool("idempotent", in.IdempotencyKey != ""),
		),
	)
	defer span.End()

	text := Sanitize(in.Text)
	if text == "" {
		commentsSubmitted.WithLabelValues("missing_text").Inc()
		return nil, ErrMissingText
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		commentsSubmitted.WithLabelValues("text_too_long").Inc()
		return nil, ErrTextTooLong
	}
	if in.Fingerprint == "" {
		return nil, ErrBadIdentity
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if res, ok := s.replay(ctx, in.Fingerprint, key); ok {
			commentsSubmitted.WithLabelValues("replayed").Inc()
			return res, nil
		}
	}

	c := &domain.Comment{
		ID:          uuid.NewString(),
		DisplayName: SanitizeName(in.Name, s.MaxNameRunes),
		Body:        text,
		Fingerprint: in.Fingerprint,
		Status:      domain.StatusPending,
	}
	if c.DisplayName == "" {
		c.DisplayName = s.Texts.GeneratedNameFor(s.nameSuffix())
		c.Verified = true
	}

	err := s.Gate.Admit(ctx, in.Fingerprint, func(ctx context.Context) error {
		return s.Store.Admit(ctx, c)
	})
	if err != nil {
		var le *repo.LockedError
		if errors.As(err, &le) {
			err = &identity.DeniedError{Reason: identity.ReasonFor(le.Status), CommentID: le.CommentID}
		}
		if errors.Is(err, ErrIdentityDenied) {
			commentsSubmitted.WithLabelValues("identity_denied").Inc()
			return nil, err
		}
		commentsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("admit comment: %w", err)
	}
	commentsSubmitted.WithLabelValues("accepted").Inc()
	span.SetAttributes(attribute.String("comment.id", c.ID))

	if key != "" {
		if err := s.Store.SaveIdempotency(ctx, in.Fingerprint, key, c.ID, http.StatusCreated, s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			s.Log.Warn().Err(err).Str("comment_id", c.ID).Msg("idempotency record not saved")
		}
	}

	s.notify(ctx, c)
	return &SubmitResult{Comment: c}, nil
}

func (s *SubmissionService) replay(ctx context.Context, fp, key string) (*SubmitResult, bool) {
	rec, err := s.Store.GetIdempotency(ctx, fp, key, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	c, err := s.Store.Get(ctx, rec.CommentID)
	if err != nil {
		return nil, false
	}
	return &SubmitResult{Comment: c, Replayed: true}, true
}

func (s *SubmissionService) nameSuffix() int {
	if s.NameSuffix != nil {
		return s.NameSuffix()
	}
	return rand.IntN(9999) + 1
}

// notify posts the moderation request for c and records the handle. It runs
// detached from the caller's cancellation, bounded by GatewayTimeout.
func (s *SubmissionService) notify(ctx context.Context, c *domain.Comment) {
	timeout := s.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	ref, err := postRequest(ctx, s.Gateway, s.Texts, s.Store, c)
	switch {
	case errors.Is(err, notify.ErrDisabled):
		s.Log.Debug().Str("comment_id", c.ID).Msg("gateway disabled; comment left for manual moderation")
	case err != nil:
		s.Log.Warn().Err(err).Str("comment_id", c.ID).Str("op", "post").Msg("moderation request failed")
	default:
		c.ModerationRef = ref
	}
}

// postRequest sends the moderation prompt for c and stores the returned
// handle. Shared with the Reconciler.
func postRequest(ctx context.Context, gw notify.Gateway, tx notify.Texts, st CommentStore, c *domain.Comment) (string, error) {
	ref, err := gw.PostModerationRequest(ctx, tx.ModerationRequest(c))
	if err != nil {
		if !errors.Is(err, notify.ErrDisabled) {
			gatewayFailures.WithLabelValues("post").Inc()
		}
		return "", err
	}
	if err := st.SetModerationRef(ctx, c.ID, ref); err != nil {
		return "", fmt.Errorf("store moderation ref: %w", err)
	}
	return ref, nil
}

// Mine returns the caller's pending or approved comment.
func (s *SubmissionService) Mine(ctx context.Context, fp string) (*domain.Comment, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Mine")
	defer span.End()

	if fp == "" {
		return nil, ErrBadIdentity
	}
	c, err := s.Store.FindByFingerprint(ctx, fp)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoComment
	}
	return c, err
}

// Revoke deletes the caller's pending or approved comment and frees the
// fingerprint. A pending comment's moderation prompt is edited best-effort
// so the moderator sees it was withdrawn.
func (s *SubmissionService) Revoke(ctx context.Context, fp string) (*domain.Comment, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Revoke")
	defer span.End()

	if fp == "" {
		return nil, ErrBadIdentity
	}
	var out *domain.Comment
	err := s.Gate.Release(ctx, fp, func(ctx context.Context) error {
		c, err := s.Store.Revoke(ctx, fp)
		out = c
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoComment
	}
	if err != nil {
		return nil, fmt.Errorf("revoke comment: %w", err)
	}
	span.SetAttributes(attribute.String("comment.id", out.ID))

	if out.Status == domain.StatusPending && out.ModerationRef != "" {
		timeout := s.GatewayTimeout
		if timeout <= 0 {
			timeout = defaultGatewayTimeout
		}
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := s.Gateway.EditMessage(ectx, out.ModerationRef, s.Texts.Withdrawal(out)); err != nil {
			gatewayFailures.WithLabelValues("edit").Inc()
			s.Log.Warn().Err(err).Str("comment_id", out.ID).Str("op", "edit").Msg("withdrawal edit failed")
		}
	}
	return out, nil
}
