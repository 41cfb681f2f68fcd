package domain

import (
	"errors"
	"time"
)

// AuditEntry is one append-only audit log line.
type AuditEntry struct {
	Timestamp   time.Time  `json:"timestamp"`
	ActionIndex int        `json:"action_index"`
	ActionKind  ActionKind `json:"action_kind"`
	TargetID    string     `json:"target_id"`
}

func (e AuditEntry) Validate() error {
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.ActionIndex < 0 {
		return errors.New("action_index must be >= 0")
	}
	if !e.ActionKind.Valid() {
		return errors.New("action_kind is invalid")
	}
	return nil
}
