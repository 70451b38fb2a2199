// Package services – Reconciler
//
// Reconciler repairs the degraded states the request path accepts: pending
// comments whose moderation request never reached the gateway are posted
// again, and rejected comments past their retention are pruned.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-comment-moderation/internal/notify"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const defaultReconcileBatch = 50

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Renotified int
	Pruned     int64
}

// Reconciler periodically repairs orphaned and expired comments.
type Reconciler struct {
	Store          CommentStore
	Gateway        notify.Gateway
	Texts          notify.Texts
	Log            zerolog.Logger
	GatewayTimeout time.Duration

	Interval          time.Duration // 0 disables Run
	OrphanAfter       time.Duration
	RejectedRetention time.Duration // 0 disables pruning
	Batch             int

	Now func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// RunOnce performs a single pass. Individual failures are logged and the
// pass continues; the error reports the first store failure.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	tr := otel.Tracer("services/Reconciler")
	ctx, span := tr.Start(ctx, "RunOnce")
	defer span.End()

	var rep ReconcileReport
	var firstErr error
	now := r.now()

	batch := r.Batch
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	orphans, err := r.Store.ListOrphans(ctx, now.Add(-r.OrphanAfter), batch)
	if err != nil {
		firstErr = err
		r.Log.Error().Err(err).Msg("list orphans failed")
	}
	for i := range orphans {
		c := &orphans[i]
		timeout := r.GatewayTimeout
		if timeout <= 0 {
			timeout = defaultGatewayTimeout
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		_, err := postRequest(pctx, r.Gateway, r.Texts, r.Store, c)
		cancel()
		if errors.Is(err, notify.ErrDisabled) {
			break
		}
		if err != nil {
			r.Log.Warn().Err(err).Str("comment_id", c.ID).Str("op", "post").Msg("re-notify failed")
			continue
		}
		rep.Renotified++
	}

	if r.RejectedRetention > 0 {
		n, err := r.Store.PruneRejected(ctx, now.Add(-r.RejectedRetention))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r.Log.Error().Err(err).Msg("prune rejected failed")
		}
		rep.Pruned = n
	}

	reconcileActions.WithLabelValues("renotified").Add(float64(rep.Renotified))
	reconcileActions.WithLabelValues("pruned").Add(float64(rep.Pruned))
	span.SetAttributes(
		attribute.Int("renotified", rep.Renotified),
		attribute.Int64("pruned", rep.Pruned),
	)
	if rep.Renotified > 0 || rep.Pruned > 0 {
		r.Log.Info().Int("renotified", rep.Renotified).Int64("pruned", rep.Pruned).Msg("reconcile pass")
	}
	return rep, firstErr
}

// Run calls RunOnce every Interval until ctx is done. It returns
// immediately when Interval is 0.
func (r *Reconciler) Run(ctx context.Context) {
	if r.Interval <= 0 {
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}
