// Package domain defines the persistence models and value types of the
// comment moderation workflow. The GORM-mapped types (Comment, Identity,
// Idempotency) form the core data layer; the remaining types describe
// lifecycle states and moderator decisions shared by every layer.
package domain

import (
	"time"
)

// Status is the lifecycle state of a comment.
//
// Transitions are monotone: pending → approved or pending → rejected.
// Nothing leaves approved or rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether a comment in state s may move to next.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// Locks reports whether a comment in state s holds its fingerprint lock.
func (s Status) Locks() bool {
	return s == StatusPending || s == StatusApproved
}

// Comment is a single visitor submission and its moderation state.
//
// Fields:
//   - ID: UUID assigned at submission time; immutable.
//   - DisplayName: sanitized user-supplied name or a generated one.
//   - Verified: true when DisplayName was generated by the system.
//   - Body: sanitized, length-bounded text.
//   - Fingerprint: one-way identity token; never the raw address.
//   - Status: lifecycle state (pending, approved, rejected).
//   - ModerationRef: opaque gateway handle of the moderation message, empty
//     until the gateway accepted the request.
//   - DecidedAt: time of the approve/reject transition.
type Comment struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	DisplayName   string     `json:"display_name"   gorm:"type:varchar(255);not null"`
	Verified      bool       `json:"verified"       gorm:"not null;default:false"`
	Body          string     `json:"body"           gorm:"type:text;not null"`
	Fingerprint   string     `json:"-"              gorm:"type:varchar(64);not null;index:idx_comments_fingerprint"`
	Status        Status     `json:"status"         gorm:"type:varchar(16);not null;index:idx_comments_status_created,priority:1;check:status IN ('pending','approved','rejected')"`
	ModerationRef string     `json:"-"              gorm:"type:varchar(128);not null;default:''"`
	CreatedAt     time.Time  `json:"created_at"     gorm:"index:idx_comments_status_created,priority:2"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// Identity is the admission record for a fingerprint. A row exists while
// the fingerprint holds a pending or approved comment; rejection and
// revocation delete it.
type Identity struct {
	Fingerprint string    `gorm:"type:varchar(64);primaryKey"`
	CommentID   string    `gorm:"type:char(36);not null;index"`
	Status      Status    `gorm:"type:varchar(16);not null;check:status IN ('pending','approved')"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the database table name for Identity.
func (Identity) TableName() string { return "identities" }
