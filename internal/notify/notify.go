// Package notify implements the moderator-facing notification gateway.
//
// The core only depends on Gateway. Telegram is the production adapter;
// Noop is used when no bot credentials are configured.
package notify

import (
	"context"
	"errors"
)

// ErrDisabled is returned by gateways that cannot deliver anything.
var ErrDisabled = errors.New("notify: gateway disabled")

// Action is one actionable option attached to a moderation request.
type Action struct {
	Label   string
	Payload string
}

// Request is an outbound moderation prompt.
type Request struct {
	Text    string
	Actions []Action
}

// Gateway is the moderator chat boundary.
type Gateway interface {
	// PostModerationRequest sends req and returns an opaque handle that
	// EditMessage accepts later.
	PostModerationRequest(ctx context.Context, req Request) (ref string, err error)
	// EditMessage replaces the text of a posted request and drops its actions.
	EditMessage(ctx context.Context, ref, text string) error
	// Acknowledge answers an inbound event so the moderator UI stops waiting.
	Acknowledge(ctx context.Context, eventID, text string) error
}

// Noop discards everything. PostModerationRequest reports ErrDisabled so
// callers can tell that nothing was delivered.
type Noop struct{}

func (Noop) PostModerationRequest(context.Context, Request) (string, error) { return "", ErrDisabled }
func (Noop) EditMessage(context.Context, string, string) error              { return nil }
func (Noop) Acknowledge(context.Context, string, string) error              { return nil }
