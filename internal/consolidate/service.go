package consolidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/executor"
	"github.com/animus-labs/animus-migrate/internal/storage"
)

// Metrics receives the stats of every successful pass. A nil Metrics is
// allowed.
type Metrics interface {
	ObserveConsolidation(stats Stats)
}

// Service consolidates the persisted PatchUnits into the destination
// document and retires them.
type Service struct {
	workspace *executor.Workspace
	store     storage.Store
	metrics   Metrics
	logger    *slog.Logger
}

func NewService(workspace *executor.Workspace, store storage.Store, metrics Metrics, logger *slog.Logger) (*Service, error) {
	if workspace == nil {
		return nil, errors.New("workspace is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{workspace: workspace, store: store, metrics: metrics, logger: logger}, nil
}

// Run folds every pending unit. The merged document is validated once and
// persisted before any unit is deleted, so a failed pass can be retried.
func (s *Service) Run(ctx context.Context) (Stats, error) {
	keys, err := s.store.ListByPrefix(ctx, storage.PrefixPatches)
	if err != nil {
		return Stats{}, fmt.Errorf("list patch units: %w", err)
	}
	units := make([]domain.PatchUnit, 0, len(keys))
	for _, key := range keys {
		if _, err := storage.ParsePatchKey(key); err != nil {
			s.logger.Warn("ignoring foreign key under patch prefix", "key", key)
			continue
		}
		var unit domain.PatchUnit
		if err := storage.GetJSON(ctx, s.store, key, &unit); err != nil {
			return Stats{}, domain.Wrap(domain.ErrContextInvalid, key, err)
		}
		units = append(units, unit)
	}

	var stats Stats
	err = s.workspace.Update(ctx, func(doc *domain.Document) error {
		var foldErr error
		stats, foldErr = Fold(doc, units)
		return foldErr
	})
	if err != nil {
		s.logger.Error("consolidation failed", "units", len(units), "error", err)
		return Stats{}, err
	}

	for _, u := range units {
		if err := s.store.Delete(ctx, storage.PatchKey(u.ActionIndex)); err != nil {
			return stats, fmt.Errorf("retire patch unit %d: %w", u.ActionIndex, err)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveConsolidation(stats)
	}
	s.logger.Info("consolidation complete",
		"units", stats.Units,
		"edited", stats.Edited,
		"added", stats.Added,
		"replaced", stats.Replaced,
		"deleted", stats.Deleted,
		"skipped", stats.Skipped,
		"not_found", stats.NotFound,
	)
	return stats, nil
}
