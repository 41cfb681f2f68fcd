package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/executor"
)

func planWith(n int) domain.InterventionPlan {
	actions := make([]domain.PlanAction, n)
	for i := range actions {
		actions[i] = domain.PlanAction{Order: i + 1, Kind: domain.ActionKeep}
	}
	return domain.InterventionPlan{Actions: actions}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	apply := func(_ context.Context, i int) (executor.Result, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return executor.Result{ActionIndex: i}, nil
	}
	outcomes := Run(context.Background(), planWith(20), apply, 3)
	if len(outcomes) != 20 {
		t.Fatalf("outcomes=%d, want 20", len(outcomes))
	}
	if peak > 3 {
		t.Fatalf("peak in flight=%d, want <= 3", peak)
	}
	for i, o := range outcomes {
		if o.ActionIndex != i || o.Result.ActionIndex != i || o.Err != nil {
			t.Fatalf("outcomes[%d]=%+v", i, o)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	apply := func(_ context.Context, i int) (executor.Result, error) {
		if i == 1 {
			return executor.Result{}, boom
		}
		return executor.Result{ActionIndex: i}, nil
	}
	outcomes := Run(context.Background(), planWith(4), apply, 0)
	failed := Failed(outcomes)
	if len(failed) != 1 || failed[0].ActionIndex != 1 || !errors.Is(failed[0].Err, boom) {
		t.Fatalf("failed=%+v", failed)
	}
}

func TestRunStopsStartingActionsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	outcomes := Run(ctx, planWith(3), func(context.Context, int) (executor.Result, error) {
		atomic.AddInt32(&calls, 1)
		return executor.Result{}, nil
	}, 1)
	if calls != 0 || len(Failed(outcomes)) != 3 {
		t.Fatalf("calls=%d outcomes=%+v", calls, outcomes)
	}
}
