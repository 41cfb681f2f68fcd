package plan

import (
	"errors"
	"log/slog"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/normalize"
)

// Planner turns raw planning payloads into a validated plan.
type Planner struct {
	normalizer *normalize.Normalizer
	builder    *Builder
}

func NewPlanner(normalizer *normalize.Normalizer, logger *slog.Logger) (*Planner, error) {
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	return &Planner{normalizer: normalizer, builder: NewBuilder(logger)}, nil
}

// Payloads are the raw planning inputs. Legacy and Changes are mandatory;
// Proposed may be empty.
type Payloads struct {
	Legacy   []byte
	Changes  []byte
	Proposed []byte
}

// Result is a built plan together with the records it was built from.
type Result struct {
	Plan     domain.InterventionPlan
	Legacy   []domain.Record
	Proposed []domain.Record
	Valid    bool
}

// BuildFromPayloads parses every input before any matching happens, so a
// malformed mandatory input yields ContextInvalid and no plan.
func (p *Planner) BuildFromPayloads(in Payloads) (Result, error) {
	legacy, err := p.normalizer.Normalize("legacy", in.Legacy)
	if err != nil {
		return Result{}, err
	}
	changes, err := ParseChangeControl(in.Changes)
	if err != nil {
		return Result{}, err
	}
	proposed := make([]domain.Record, 0)
	if len(in.Proposed) > 0 {
		proposed, err = p.normalizer.Normalize("proposed", in.Proposed)
		if err != nil {
			return Result{}, err
		}
	}

	built, err := p.builder.Build(Input{Legacy: legacy, Proposed: proposed, Changes: changes})
	if err != nil {
		return Result{}, err
	}
	valid := Attach(&built, len(legacy), len(changes.New))
	return Result{Plan: built, Legacy: legacy, Proposed: proposed, Valid: valid}, nil
}
