// Package auditlog appends one entry per executed plan action. Sinks are
// append-only and safe for concurrent use.
package auditlog

import (
	"context"
	"errors"
)

type Log interface {
	Append(ctx context.Context, entry Entry) error
}

// Multi appends to every sink in order and stops at the first error.
type Multi []Log

func (m Multi) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Append(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every entry after validating it.
type Discard struct{}

func (Discard) Append(_ context.Context, entry Entry) error {
	return entry.Validate()
}

var errNilWriter = errors.New("audit writer is required")
