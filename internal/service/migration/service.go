// Package migration drives one migration workspace: planning, executing
// actions and consolidating their patch units.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/animus-labs/animus-migrate/internal/consolidate"
	"github.com/animus-labs/animus-migrate/internal/dispatch"
	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/executor"
	"github.com/animus-labs/animus-migrate/internal/normalize"
	"github.com/animus-labs/animus-migrate/internal/plan"
	"github.com/animus-labs/animus-migrate/internal/storage"
)

var (
	// ErrNoPlan is returned when no plan has been built yet.
	ErrNoPlan = errors.New("no plan")
	// ErrPendingPatches is returned when a new plan would orphan patch
	// units that were never consolidated.
	ErrPendingPatches = errors.New("patch units pending consolidation")
)

type Config struct {
	Store        storage.Store
	Normalizer   *normalize.Normalizer
	Planner      *plan.Planner
	Workspace    *executor.Workspace
	Executor     *executor.Executor
	Consolidator *consolidate.Service
	// Concurrency bounds actions in flight during ApplyAll.
	Concurrency int
	Logger      *slog.Logger
}

type Service struct {
	store        storage.Store
	normalizer   *normalize.Normalizer
	planner      *plan.Planner
	workspace    *executor.Workspace
	executor     *executor.Executor
	consolidator *consolidate.Service
	concurrency  int
	logger       *slog.Logger
}

func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("store is required")
	case cfg.Normalizer == nil:
		return nil, errors.New("normalizer is required")
	case cfg.Planner == nil:
		return nil, errors.New("planner is required")
	case cfg.Workspace == nil:
		return nil, errors.New("workspace is required")
	case cfg.Executor == nil:
		return nil, errors.New("executor is required")
	case cfg.Consolidator == nil:
		return nil, errors.New("consolidator is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = dispatch.DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:        cfg.Store,
		normalizer:   cfg.Normalizer,
		planner:      cfg.Planner,
		workspace:    cfg.Workspace,
		executor:     cfg.Executor,
		consolidator: cfg.Consolidator,
		concurrency:  cfg.Concurrency,
		logger:       cfg.Logger,
	}, nil
}

// PlanInput carries the raw planning inputs. Legacy and Changes are
// mandatory. Destination, when set, replaces the stored destination
// document.
type PlanInput struct {
	Legacy      json.RawMessage
	Changes     json.RawMessage
	Proposed    json.RawMessage
	Reference   json.RawMessage
	Destination *domain.Document
}

type PlanResult struct {
	Plan  domain.InterventionPlan
	Valid bool
}

// Plan builds and persists a new plan together with its inputs. Every
// input is parsed before anything is written.
func (s *Service) Plan(ctx context.Context, in PlanInput) (PlanResult, error) {
	pending, err := s.pendingUnits(ctx)
	if err != nil {
		return PlanResult{}, err
	}
	if len(pending) > 0 {
		return PlanResult{}, fmt.Errorf("%w: %d unit(s)", ErrPendingPatches, len(pending))
	}

	built, err := s.planner.BuildFromPayloads(plan.Payloads{
		Legacy:   in.Legacy,
		Changes:  in.Changes,
		Proposed: in.Proposed,
	})
	if err != nil {
		return PlanResult{}, err
	}
	if len(in.Reference) > 0 {
		if _, err := s.normalizer.Normalize("reference", in.Reference); err != nil {
			return PlanResult{}, err
		}
	}
	if in.Destination != nil {
		if err := s.workspace.Replace(ctx, in.Destination); err != nil {
			return PlanResult{}, err
		}
	}

	inputs := []struct {
		key string
		raw json.RawMessage
	}{
		{storage.KeyLegacy, in.Legacy},
		{storage.KeyChanges, in.Changes},
		{storage.KeyProposed, in.Proposed},
		{storage.KeyReference, in.Reference},
	}
	for _, input := range inputs {
		if len(input.raw) == 0 {
			if err := s.store.Delete(ctx, input.key); err != nil {
				return PlanResult{}, fmt.Errorf("clear %s: %w", input.key, err)
			}
			continue
		}
		if err := s.store.Put(ctx, input.key, input.raw); err != nil {
			return PlanResult{}, fmt.Errorf("store %s: %w", input.key, err)
		}
	}

	raw, err := plan.MarshalPlan(built.Plan)
	if err != nil {
		return PlanResult{}, err
	}
	if err := s.store.Put(ctx, storage.KeyPlan, raw); err != nil {
		return PlanResult{}, fmt.Errorf("store plan: %w", err)
	}
	s.logger.Info("plan stored",
		"plan_id", built.Plan.ID,
		"actions", len(built.Plan.Actions),
		"valid", built.Valid,
		"warnings", len(built.Plan.Summary.Warnings),
	)
	return PlanResult{Plan: built.Plan, Valid: built.Valid}, nil
}

// CurrentPlan loads the stored plan.
func (s *Service) CurrentPlan(ctx context.Context) (domain.InterventionPlan, error) {
	raw, err := s.store.Get(ctx, storage.KeyPlan)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.InterventionPlan{}, ErrNoPlan
		}
		return domain.InterventionPlan{}, fmt.Errorf("load plan: %w", err)
	}
	return plan.UnmarshalPlan(raw)
}

// Apply executes a single action of the current plan.
func (s *Service) Apply(ctx context.Context, actionIndex int) (executor.Result, error) {
	p, err := s.CurrentPlan(ctx)
	if err != nil {
		return executor.Result{}, err
	}
	evidence, err := s.evidence(ctx)
	if err != nil {
		return executor.Result{}, err
	}
	return s.executor.ApplyAction(ctx, p, actionIndex, evidence)
}

// ApplyAll executes every action of the current plan with bounded
// concurrency and reports one outcome per action.
func (s *Service) ApplyAll(ctx context.Context) ([]dispatch.Outcome, error) {
	p, err := s.CurrentPlan(ctx)
	if err != nil {
		return nil, err
	}
	evidence, err := s.evidence(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := dispatch.Run(ctx, p, func(ctx context.Context, i int) (executor.Result, error) {
		return s.executor.ApplyAction(ctx, p, i, evidence)
	}, s.concurrency)
	failed := dispatch.Failed(outcomes)
	s.logger.Info("plan applied", "plan_id", p.ID, "actions", len(outcomes), "failed", len(failed))
	return outcomes, nil
}

// Consolidate folds pending patch units into the destination document.
func (s *Service) Consolidate(ctx context.Context) (consolidate.Stats, error) {
	return s.consolidator.Run(ctx)
}

type Status struct {
	PlanID       string
	Actions      int
	Counts       map[domain.ActionKind]int
	Warnings     []string
	PendingUnits []int
	Tests        int
}

// Status summarizes the workspace. A missing plan or destination document
// is reported as zero values.
func (s *Service) Status(ctx context.Context) (Status, error) {
	out := Status{Counts: map[domain.ActionKind]int{}, Warnings: []string{}}
	p, err := s.CurrentPlan(ctx)
	switch {
	case err == nil:
		out.PlanID = p.ID
		out.Actions = len(p.Actions)
		out.Counts = p.Summary.Counts
		out.Warnings = p.Summary.Warnings
	case !errors.Is(err, ErrNoPlan):
		return Status{}, err
	}

	pending, err := s.pendingUnits(ctx)
	if err != nil {
		return Status{}, err
	}
	out.PendingUnits = pending

	doc, err := s.workspace.Snapshot(ctx)
	switch {
	case err == nil:
		out.Tests = len(doc.Tests)
	case !errors.Is(err, domain.ErrContextInvalid):
		return Status{}, err
	}
	return out, nil
}

func (s *Service) pendingUnits(ctx context.Context) ([]int, error) {
	keys, err := s.store.ListByPrefix(ctx, storage.PrefixPatches)
	if err != nil {
		return nil, fmt.Errorf("list patch units: %w", err)
	}
	out := make([]int, 0, len(keys))
	for _, key := range keys {
		idx, err := storage.ParsePatchKey(key)
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

func (s *Service) evidence(ctx context.Context) (executor.Evidence, error) {
	var out executor.Evidence
	sets := []struct {
		key      string
		name     string
		dst      *[]domain.Record
		required bool
	}{
		{storage.KeyLegacy, "legacy", &out.Legacy, true},
		{storage.KeyProposed, "proposed", &out.Proposed, false},
		{storage.KeyReference, "reference", &out.Reference, false},
	}
	for _, set := range sets {
		raw, err := s.store.Get(ctx, set.key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) && !set.required {
				continue
			}
			if errors.Is(err, storage.ErrNotFound) {
				return executor.Evidence{}, domain.Errorf(domain.ErrContextInvalid, set.key, "", "%s input is missing", set.name)
			}
			return executor.Evidence{}, fmt.Errorf("load %s: %w", set.key, err)
		}
		records, err := s.normalizer.Normalize(set.name, raw)
		if err != nil {
			return executor.Evidence{}, err
		}
		*set.dst = records
	}
	return out, nil
}
