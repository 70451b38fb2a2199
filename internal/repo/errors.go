package repo

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-comment-moderation/internal/domain"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotPending is returned by Transition when the comment already left
	// the pending state.
	ErrNotPending = errors.New("comment is not pending")
	// ErrFingerprintLocked matches every *LockedError.
	ErrFingerprintLocked = errors.New("fingerprint locked")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate")
)

// LockedError is returned by Admit when the fingerprint already holds a
// pending or approved comment.
type LockedError struct {
	Status    domain.Status
	CommentID string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: %s comment %s", ErrFingerprintLocked, e.Status, e.CommentID)
}

func (e *LockedError) Is(target error) bool { return target == ErrFingerprintLocked }

// isUniqueViolation recognizes duplicate-key errors across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
