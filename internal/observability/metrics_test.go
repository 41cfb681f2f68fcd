package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/animus-labs/animus-migrate/internal/consolidate"
	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAction(domain.ActionEdit, "applied")
	m.ObserveAction(domain.ActionEdit, "applied")
	m.ObserveAction(domain.ActionDelete, "target_not_found")
	if got := testutil.ToFloat64(m.ActionsTotal.WithLabelValues("edit", "applied")); got != 2 {
		t.Fatalf("edit applied=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ActionsTotal.WithLabelValues("delete", "target_not_found")); got != 1 {
		t.Fatalf("delete not found=%v, want 1", got)
	}

	m.ObserveGeneration(1500*time.Millisecond, nil)
	m.ObserveGeneration(time.Second, errors.New("boom"))
	if got := testutil.CollectAndCount(m.GenerationSeconds); got != 2 {
		t.Fatalf("generation series=%d, want 2", got)
	}

	m.ObserveConsolidation(consolidate.Stats{Units: 3, Edited: 2, NotFound: 1})
	if got := testutil.ToFloat64(m.ConsolidationsTotal); got != 1 {
		t.Fatalf("consolidations=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConsolidatedUnitsTotal.WithLabelValues("edited")); got != 2 {
		t.Fatalf("edited units=%v, want 2", got)
	}
}

func TestMetricsObserveRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRequest("POST", "POST /v1/plans", 201, 20*time.Millisecond)
	m.ObserveRequest("POST", "POST /v1/plans", 409, 5*time.Millisecond)
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "POST /v1/plans", "409")); got != 1 {
		t.Fatalf("409 requests=%v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HTTPRequestsTotal); got != 2 {
		t.Fatalf("request series=%d, want 2", got)
	}
}
