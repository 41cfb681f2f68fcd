// Package dispatch fans plan actions out to a bounded number of workers.
package dispatch

import (
	"context"
	"sync"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/executor"
	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds in-flight actions to respect generator throughput.
const DefaultLimit = 5

// Applier executes the action at actionIndex.
type Applier func(ctx context.Context, actionIndex int) (executor.Result, error)

type Outcome struct {
	ActionIndex int
	Result      executor.Result
	Err         error
}

// Run applies every action of plan with at most limit in flight and
// returns one outcome per action, indexed by action. A failed action does
// not cancel the others; only ctx does.
func Run(ctx context.Context, plan domain.InterventionPlan, apply Applier, limit int) []Outcome {
	if limit < 1 {
		limit = DefaultLimit
	}
	outcomes := make([]Outcome, len(plan.Actions))
	var g errgroup.Group
	g.SetLimit(limit)

	var mu sync.Mutex
	for i := range plan.Actions {
		g.Go(func() error {
			outcome := Outcome{ActionIndex: i}
			if err := ctx.Err(); err != nil {
				outcome.Err = err
			} else {
				outcome.Result, outcome.Err = apply(ctx, i)
			}
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) []Outcome {
	out := make([]Outcome, 0)
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}
