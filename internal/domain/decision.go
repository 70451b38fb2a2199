package domain

import "strings"

// Action is the kind of a moderator decision.
type Action int

const (
	// ActionUnrecognized covers any token that is not approve or reject.
	ActionUnrecognized Action = iota
	ActionApprove
	ActionReject
)

// String returns the wire token for a.
func (a Action) String() string {
	switch a {
	case ActionApprove:
		return "approve"
	case ActionReject:
		return "reject"
	}
	return "unrecognized"
}

// Target returns the lifecycle state the action moves a pending comment to.
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	}
	return "", false
}

// Decision is a parsed moderator action bound to a comment identifier.
type Decision struct {
	Action    Action
	CommentID string
}

// maxDecisionPayload bounds the raw payload accepted by ParseDecision.
// Telegram caps callback data at 64 bytes.
const maxDecisionPayload = 64

// EncodeDecision renders the payload carried by a moderation button.
func EncodeDecision(a Action, commentID string) string {
	return a.String() + ":" + commentID
}

// ParseDecision parses an untrusted "action:commentId" payload. The legacy
// "action_commentId" form is accepted too. Malformed input never fails; it
// yields ActionUnrecognized with whatever identifier could be recovered.
func ParseDecision(raw string) Decision {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxDecisionPayload {
		return Decision{Action: ActionUnrecognized}
	}
	i := strings.IndexAny(raw, ":_")
	if i <= 0 || i == len(raw)-1 {
		return Decision{Action: ActionUnrecognized}
	}
	tok, id := strings.ToLower(raw[:i]), strings.TrimSpace(raw[i+1:])
	if id == "" || strings.ContainsAny(id, " \t\r\n") {
		return Decision{Action: ActionUnrecognized}
	}
	switch tok {
	case "approve":
		return Decision{Action: ActionApprove, CommentID: id}
	case "reject":
		return Decision{Action: ActionReject, CommentID: id}
	}
	return Decision{Action: ActionUnrecognized, CommentID: id}
}

// Outcome is the result of processing one moderator decision.
type Outcome int

const (
	OutcomeApplied Outcome = iota + 1
	OutcomeAlreadyHandled
	OutcomeUnknownComment
	OutcomeIgnored // unrecognized action token
)

// String returns a stable label, used for metrics and logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyHandled:
		return "already_handled"
	case OutcomeUnknownComment:
		return "unknown_comment"
	case OutcomeIgnored:
		return "ignored"
	}
	return "unknown"
}

// DecisionEvent is an inbound moderator event as delivered by the gateway.
type DecisionEvent struct {
	// EventID is the gateway's identifier, used for acknowledgment and replay
	// detection. It may be empty.
	EventID string
	// Payload is the raw action token.
	Payload string
	// MessageRef is the handle of the message the action was taken on, if
	// the gateway reported one.
	MessageRef string
}
