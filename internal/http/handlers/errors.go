// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (bad_request, unauthorized, not_found) mirror HTTP status
//     semantics.
//   - Domain codes (missing_text, identity_denied, ...) carry business outcomes
//     that status alone cannot convey. identity_denied also sets `reason`.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "identity_denied",
//	  "reason": "already_approved",
//	  "message": "an approved comment already exists for this identity"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeMissingText    = "missing_text"
	ErrCodeTextTooLong    = "text_too_long"
	ErrCodeIdentityDenied = "identity_denied"
	ErrCodeBadIdentity    = "bad_identity"
	ErrCodeNoComment      = "no_comment"
)

// Denial reasons reported alongside ErrCodeIdentityDenied.
const (
	ReasonAlreadyPending  = "already_pending"
	ReasonAlreadyApproved = "already_approved"
)
