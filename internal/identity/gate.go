package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-comment-moderation/internal/domain"
	"github.com/tbourn/go-comment-moderation/internal/keylock"
)

// Reason explains why a fingerprint was refused.
type Reason string

const (
	ReasonAlreadyPending  Reason = "already_pending"
	ReasonAlreadyApproved Reason = "already_approved"
)

var (
	// ErrDenied matches every admission refusal.
	ErrDenied = errors.New("identity denied")
	// ErrAlreadyPending and ErrAlreadyApproved match the specific reason.
	ErrAlreadyPending  = errors.New("a comment from this identity is awaiting moderation")
	ErrAlreadyApproved = errors.New("a comment from this identity is already published")
)

// DeniedError is returned by Admit when the fingerprint is locked.
// errors.Is matches both ErrDenied and the reason sentinel.
type DeniedError struct {
	Reason    Reason
	CommentID string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDenied, e.Reason)
}

func (e *DeniedError) Unwrap() []error {
	return []error{ErrDenied, reasonErr(e.Reason)}
}

func reasonErr(r Reason) error {
	if r == ReasonAlreadyApproved {
		return ErrAlreadyApproved
	}
	return ErrAlreadyPending
}

// ReasonFor maps a locking status to its denial reason.
func ReasonFor(s domain.Status) Reason {
	if s == domain.StatusApproved {
		return ReasonAlreadyApproved
	}
	return ReasonAlreadyPending
}

// Ledger is the slice of the comment store the gate consults.
type Ledger interface {
	// Identity returns the admission record for fp; ok is false when none.
	Identity(ctx context.Context, fp string) (rec domain.Identity, ok bool, err error)
}

// Gate admits at most one pending or approved comment per fingerprint.
// Calls for the same fingerprint are serialized; the store enforces the
// same rule transactionally for anything that bypasses the gate.
//
// The gate never deletes identity records itself. The store drops the record
// in the same transaction that frees it: Store.Transition on reject, and
// Store.Revoke, which callers run through Release.
type Gate struct {
	Ledger Ledger
	locks  keylock.Table
}

// NewGate returns a Gate backed by l.
func NewGate(l Ledger) *Gate {
	return &Gate{Ledger: l}
}

// Check reports whether fp may submit right now without reserving anything.
func (g *Gate) Check(ctx context.Context, fp string) error {
	rec, ok, err := g.Ledger.Identity(ctx, fp)
	if err != nil {
		return err
	}
	if ok && rec.Status.Locks() {
		return &DeniedError{Reason: ReasonFor(rec.Status), CommentID: rec.CommentID}
	}
	return nil
}

// Admit checks fp and, when allowed, runs insert while still holding the
// fingerprint lock. insert is expected to persist the comment together with
// its identity record. Two concurrent Admit calls for one fingerprint never
// both reach insert with an unlocked ledger.
func (g *Gate) Admit(ctx context.Context, fp string, insert func(context.Context) error) error {
	unlock := g.locks.Lock(fp)
	defer unlock()

	if err := g.Check(ctx, fp); err != nil {
		return err
	}
	return insert(ctx)
}

// Release runs revoke under the fingerprint lock so a withdrawal cannot
// interleave with Admit for the same fingerprint. revoke is expected to
// delete the holder's comment together with its identity record; when fp
// holds nothing it reports that to the caller and nothing changes.
func (g *Gate) Release(ctx context.Context, fp string, revoke func(context.Context) error) error {
	unlock := g.locks.Lock(fp)
	defer unlock()
	return revoke(ctx)
}
