// Package services defines the business logic of the comment moderation
// workflow: submission, moderation decisions, publication, and background
// reconciliation. This file centralizes service-level error values so that
// callers can check them with errors.Is and translate them into HTTP codes.
package services

import (
	"errors"

	"github.com/tbourn/go-comment-moderation/internal/identity"
)

// Submission errors.
var (
	// ErrMissingText is returned when the sanitized comment body is empty.
	ErrMissingText = errors.New("comment text is required")

	// ErrTextTooLong is returned when the body exceeds the configured limit.
	ErrTextTooLong = errors.New("comment text too long")

	// ErrBadIdentity is returned when no fingerprint could be derived for the
	// caller.
	ErrBadIdentity = errors.New("caller identity unavailable")
)

// Identity errors. A denial satisfies errors.Is for ErrIdentityDenied and for
// exactly one of the reason errors.
var (
	ErrIdentityDenied  = identity.ErrDenied
	ErrAlreadyPending  = identity.ErrAlreadyPending
	ErrAlreadyApproved = identity.ErrAlreadyApproved
)

// ErrNoComment indicates that the caller holds no pending or approved comment.
var ErrNoComment = errors.New("no comment for this identity")
