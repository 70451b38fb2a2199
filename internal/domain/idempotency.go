package domain

import "time"

// Idempotency records the result of a completed submission keyed by
// (fingerprint, key). It lets clients retry a POST with the same
// Idempotency-Key and receive the original comment instead of an
// identity denial.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Fingerprint string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_fingerprint_key,priority:1"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_fingerprint_key,priority:2"`
	CommentID   string    `gorm:"type:TEXT NOT NULL"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time `gorm:"type:TIMESTAMP NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:TIMESTAMP NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
