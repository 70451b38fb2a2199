// Package services – ModerationService
//
// ModerationService applies moderator decisions exactly once. Decisions for
// the same comment are serialized by a keyed lock, and the store's
// conditional transition decides the winner. A bounded cache of recently
// seen gateway event ids short-circuits redeliveries without touching the
// store.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-comment-moderation/internal/domain"
	"github.com/tbourn/go-comment-moderation/internal/keylock"
	"github.com/tbourn/go-comment-moderation/internal/notify"
	"github.com/tbourn/go-comment-moderation/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDecisionCacheSize is used when NewModerationService gets size <= 0.
const DefaultDecisionCacheSize = 1024

// ModerationService processes inbound decision events.
type ModerationService struct {
	Store          CommentStore
	Gateway        notify.Gateway
	Texts          notify.Texts
	Log            zerolog.Logger
	GatewayTimeout time.Duration

	locks keylock.Table
	seen  *lru.Cache[string, domain.Outcome]
}

// NewModerationService wires a ModerationService with a replay cache of
// cacheSize event ids.
func NewModerationService(store CommentStore, gw notify.Gateway, texts notify.Texts, log zerolog.Logger, cacheSize int) *ModerationService {
	if cacheSize <= 0 {
		cacheSize = DefaultDecisionCacheSize
	}
	seen, err := lru.New[string, domain.Outcome](cacheSize)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	return &ModerationService{Store: store, Gateway: gw, Texts: texts, Log: log, seen: seen}
}

// HandleDecision applies action to the comment with id.
//
//	pending  --approve--> approved (fingerprint stays locked)
//	pending  --reject-->  rejected (fingerprint released)
//
// Anything else yields AlreadyHandled or UnknownComment; the comment is
// returned whenever it exists.
func (s *ModerationService) HandleDecision(ctx context.Context, id string, action domain.Action) (domain.Outcome, *domain.Comment, error) {
	tr := otel.Tracer("services/ModerationService")
	ctx, span := tr.Start(ctx, "HandleDecision",
		trace.WithAttributes(
			attribute.String("comment.id", id),
			attribute.String("action", action.String()),
		),
	)
	defer span.End()

	to, ok := action.Target()
	if !ok || id == "" {
		return domain.OutcomeIgnored, nil, nil
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.Store.Transition(ctx, id, to)
	switch {
	case err == nil:
		return domain.OutcomeApplied, c, nil
	case errors.Is(err, repo.ErrNotFound):
		return domain.OutcomeUnknownComment, nil, nil
	case errors.Is(err, repo.ErrNotPending):
		cur, gerr := s.Store.Get(ctx, id)
		if gerr != nil {
			cur = nil
		}
		return domain.OutcomeAlreadyHandled, cur, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return 0, nil, fmt.Errorf("transition %s: %w", id, err)
	}
}

// Process handles one gateway event: parse the payload, apply it,
// acknowledge the event and, when the state changed, edit the original
// prompt. Acknowledgment and edit failures are logged and never undo the
// transition. The returned error is non-nil only when the store failed; the
// event is still acknowledged in that case.
func (s *ModerationService) Process(ctx context.Context, ev domain.DecisionEvent) (domain.Outcome, error) {
	tr := otel.Tracer("services/ModerationService")
	ctx, span := tr.Start(ctx, "Process", trace.WithAttributes(attribute.String("event.id", ev.EventID)))
	defer span.End()

	d := domain.ParseDecision(ev.Payload)

	if ev.EventID != "" {
		if _, ok := s.seen.Get(ev.EventID); ok {
			s.finish(ctx, ev, d, domain.OutcomeAlreadyHandled, nil)
			return domain.OutcomeAlreadyHandled, nil
		}
	}

	outcome, c, err := s.HandleDecision(ctx, d.CommentID, d.Action)
	if err != nil {
		s.ack(ctx, ev.EventID, s.Texts.AckIgnored)
		moderationDecisions.WithLabelValues("error").Inc()
		return 0, err
	}
	if ev.EventID != "" {
		s.seen.Add(ev.EventID, outcome)
	}
	s.finish(ctx, ev, d, outcome, c)
	return outcome, nil
}

func (s *ModerationService) finish(ctx context.Context, ev domain.DecisionEvent, d domain.Decision, o domain.Outcome, c *domain.Comment) {
	moderationDecisions.WithLabelValues(o.String()).Inc()
	s.Log.Info().
		Str("comment_id", d.CommentID).
		Str("action", d.Action.String()).
		Str("outcome", o.String()).
		Msg("moderation decision")

	s.ack(ctx, ev.EventID, s.Texts.Ack(o, d.Action))

	if o != domain.OutcomeApplied || c == nil {
		return
	}
	ref := c.ModerationRef
	if ref == "" {
		ref = ev.MessageRef
	}
	if ref == "" {
		return
	}
	ectx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	if err := s.Gateway.EditMessage(ectx, ref, s.Texts.Outcome(c)); err != nil {
		gatewayFailures.WithLabelValues("edit").Inc()
		s.Log.Warn().Err(err).Str("comment_id", c.ID).Str("op", "edit").Msg("outcome edit failed")
	}
}

func (s *ModerationService) ack(ctx context.Context, eventID, text string) {
	if eventID == "" {
		return
	}
	actx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	if err := s.Gateway.Acknowledge(actx, eventID, text); err != nil {
		gatewayFailures.WithLabelValues("ack").Inc()
		s.Log.Warn().Err(err).Str("op", "ack").Msg("acknowledge failed")
	}
}

func (s *ModerationService) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
