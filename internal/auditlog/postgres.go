package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Schema creates the audit table. It is safe to run repeatedly.
const Schema = `CREATE TABLE IF NOT EXISTS migration_audit (
	entry_id BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	action_index INTEGER NOT NULL,
	action_kind TEXT NOT NULL,
	target_id TEXT,
	integrity_sha256 TEXT NOT NULL
)`

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres mirrors entries into the migration_audit table.
type Postgres struct {
	db Execer
}

func NewPostgres(db Execer) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	integrity, err := ComputeIntegritySHA256(entry)
	if err != nil {
		return err
	}

	var targetID sql.NullString
	if id := strings.TrimSpace(entry.TargetID); id != "" {
		targetID = sql.NullString{String: id, Valid: true}
	}
	_, err = p.db.ExecContext(
		ctx,
		`INSERT INTO migration_audit (
			occurred_at,
			action_index,
			action_kind,
			target_id,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5)`,
		entry.Timestamp.UTC(),
		entry.ActionIndex,
		string(entry.ActionKind),
		targetID,
		integrity,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ComputeIntegritySHA256 hashes the canonical JSON form of entry.
func ComputeIntegritySHA256(entry Entry) (string, error) {
	type integrityInput struct {
		OccurredAt  time.Time `json:"occurred_at"`
		ActionIndex int       `json:"action_index"`
		ActionKind  string    `json:"action_kind"`
		TargetID    string    `json:"target_id,omitempty"`
	}
	blob, err := json.Marshal(integrityInput{
		OccurredAt:  entry.Timestamp.UTC(),
		ActionIndex: entry.ActionIndex,
		ActionKind:  string(entry.ActionKind),
		TargetID:    strings.TrimSpace(entry.TargetID),
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
