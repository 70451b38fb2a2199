package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// commentsSubmitted counts submissions by result
	// (accepted, replayed, missing_text, text_too_long, identity_denied, error).
	commentsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comments_submitted_total",
			Help: "Comment submissions by result.",
		},
		[]string{"result"},
	)

	// moderationDecisions counts processed moderator events by outcome.
	moderationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_decisions_total",
			Help: "Moderator decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// gatewayFailures counts failed gateway calls by operation (post, edit, ack).
	gatewayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_failures_total",
			Help: "Failed notification gateway calls by operation.",
		},
		[]string{"op"},
	)

	// reconcileActions counts reconciler work by action (renotified, pruned).
	reconcileActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_actions_total",
			Help: "Reconciler actions by kind.",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(commentsSubmitted, moderationDecisions, gatewayFailures, reconcileActions)
}
