package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/storage"
)

// DocumentValidator checks a whole destination document.
type DocumentValidator interface {
	Document(doc *domain.Document) error
}

// Workspace serializes writers of the destination document. Readers get
// deep copies; writers mutate a copy that is validated and persisted
// before it becomes visible.
type Workspace struct {
	mu        sync.Mutex
	store     storage.Store
	key       string
	validator DocumentValidator
}

func NewWorkspace(store storage.Store, validator DocumentValidator) (*Workspace, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	return &Workspace{store: store, key: storage.KeyDestination, validator: validator}, nil
}

// Snapshot returns a copy of the persisted document.
func (w *Workspace) Snapshot(ctx context.Context) (*domain.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load(ctx)
}

// Replace validates doc and persists it as the destination document.
func (w *Workspace) Replace(ctx context.Context, doc *domain.Document) error {
	if err := w.validator.Document(doc); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return storage.PutJSON(ctx, w.store, w.key, doc)
}

// Update applies fn to a copy of the document. Nothing is written when fn
// or validation fails.
func (w *Workspace) Update(ctx context.Context, fn func(doc *domain.Document) error) error {
	return w.Commit(ctx, fn, nil)
}

// Commit is Update followed by commit, still under the workspace lock.
// commit persists whatever has to land together with the document. When it
// fails, the previous document bytes are written back.
func (w *Workspace) Commit(ctx context.Context, fn func(doc *domain.Document) error, commit func(ctx context.Context) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, doc, err := w.read(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	if err := w.validator.Document(doc); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.PutJSON(ctx, w.store, w.key, doc); err != nil {
		return err
	}
	if commit == nil {
		return nil
	}
	if err := commit(ctx); err != nil {
		if rerr := w.store.Put(context.WithoutCancel(ctx), w.key, prev); rerr != nil {
			return errors.Join(err, fmt.Errorf("restore destination document: %w", rerr))
		}
		return err
	}
	return nil
}

func (w *Workspace) load(ctx context.Context) (*domain.Document, error) {
	_, doc, err := w.read(ctx)
	return doc, err
}

func (w *Workspace) read(ctx context.Context) ([]byte, *domain.Document, error) {
	raw, err := w.store.Get(ctx, w.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, domain.Errorf(domain.ErrContextInvalid, w.key, "", "destination document is missing")
		}
		return nil, nil, fmt.Errorf("load destination document: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", w.key, err)
	}
	return raw, &doc, nil
}
