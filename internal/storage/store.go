// Package storage defines the key-value store every component persists
// through, and the key layout of a migration workspace.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("not found")

// Store abstracts the persistence backend. Delete of a missing key is not an
// error. ListByPrefix returns keys in ascending byte order.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

const (
	KeyDestination = "documents/destination.json"
	KeyPlan        = "plans/current.json"
	KeyLegacy      = "inputs/legacy.json"
	KeyProposed    = "inputs/proposed.json"
	KeyReference   = "inputs/reference.json"
	KeyChanges     = "inputs/changes.json"
	PrefixPatches  = "patches/"
)

// PatchKey returns the key of the PatchUnit for actionIndex. Indexes are
// zero padded so listing order follows action order.
func PatchKey(actionIndex int) string {
	return fmt.Sprintf("%s%06d.json", PrefixPatches, actionIndex)
}

// ParsePatchKey extracts the action index from a PatchKey.
func ParsePatchKey(key string) (int, error) {
	raw, ok := strings.CutPrefix(key, PrefixPatches)
	if !ok {
		return 0, fmt.Errorf("not a patch key: %q", key)
	}
	raw = strings.TrimSuffix(raw, ".json")
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("not a patch key: %q", key)
	}
	return idx, nil
}

// GetJSON decodes the value at key into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}
