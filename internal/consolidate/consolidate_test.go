package consolidate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/executor"
	"github.com/animus-labs/animus-migrate/internal/schema"
	"github.com/animus-labs/animus-migrate/internal/storage"
)

func fullTest(id, name string) domain.Test {
	return domain.Test{ID: id, Name: name, Method: "M", Specification: "S", Procedure: "P"}
}

func newValidator(t *testing.T) *schema.Validator {
	t.Helper()
	v, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New() err=%v", err)
	}
	return v
}

func TestConsolidateReplacesEditedRecordOnly(t *testing.T) {
	base := &domain.Document{
		Metadata: domain.Metadata{"product": "X"},
		Tests:    []domain.Test{fullTest("W", "Apariencia"), fullTest("X", "pH"), fullTest("Y", "Dureza")},
	}
	content := domain.Test{ID: "X", Name: "pH", Method: "USP <791>", Specification: "5.0 - 7.0", Procedure: "25 C", Extra: domain.Metadata{"unit": "pH"}}
	units := []domain.PatchUnit{{ActionIndex: 0, ActionKind: domain.ActionEdit, TargetID: "X", Content: &content}}

	merged, stats, err := Consolidate(base, units, newValidator(t))
	if err != nil {
		t.Fatalf("Consolidate() err=%v", err)
	}
	want := []domain.Test{fullTest("W", "Apariencia"), content, fullTest("Y", "Dureza")}
	if !reflect.DeepEqual(merged.Tests, want) {
		t.Fatalf("tests=%+v, want %+v", merged.Tests, want)
	}
	if stats.Edited != 1 || stats.Units != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if base.Tests[1].Method != "M" {
		t.Fatalf("base was modified")
	}
}

func TestConsolidateOrdersByActionIndex(t *testing.T) {
	base := &domain.Document{Tests: []domain.Test{fullTest("A", "Alpha")}}
	first := fullTest("B", "Beta")
	second := fullTest("B", "Beta")
	second.Notes = "second"
	units := []domain.PatchUnit{
		{ActionIndex: 5, ActionKind: domain.ActionAdd, Content: &second},
		{ActionIndex: 2, ActionKind: domain.ActionAdd, Content: &first},
		{ActionIndex: 0, ActionKind: domain.ActionKeep, TargetID: "A"},
		{ActionIndex: 1, ActionKind: domain.ActionDelete, TargetID: "Z", TargetName: "Zeta"},
	}
	merged, stats, err := Consolidate(base, units, newValidator(t))
	if err != nil {
		t.Fatalf("Consolidate() err=%v", err)
	}
	if len(merged.Tests) != 2 || merged.Tests[1].Notes != "second" {
		t.Fatalf("tests=%+v", merged.Tests)
	}
	want := Stats{Units: 4, Added: 1, Replaced: 1, Skipped: 1, NotFound: 1}
	if stats != want {
		t.Fatalf("stats=%+v, want %+v", stats, want)
	}
}

func TestConsolidateIsIdempotent(t *testing.T) {
	base := &domain.Document{Tests: []domain.Test{fullTest("A", "Alpha"), fullTest("B", "Beta")}}
	edited := fullTest("A", "Alpha")
	edited.Notes = "x"
	added := fullTest("C", "Gamma")
	units := []domain.PatchUnit{
		{ActionIndex: 0, ActionKind: domain.ActionEdit, TargetID: "A", TargetName: "Alpha", Content: &edited},
		{ActionIndex: 1, ActionKind: domain.ActionDelete, TargetID: "B", TargetName: "Beta"},
		{ActionIndex: 2, ActionKind: domain.ActionAdd, Content: &added},
	}
	v := newValidator(t)
	once, _, err := Consolidate(base, units, v)
	if err != nil {
		t.Fatalf("Consolidate() err=%v", err)
	}
	again, _, err := Consolidate(base, units, v)
	if err != nil {
		t.Fatalf("Consolidate() err=%v", err)
	}
	if !reflect.DeepEqual(once, again) {
		t.Fatalf("runs differ:\n%+v\n%+v", once, again)
	}
	onOwnOutput, stats, err := Consolidate(once, units, v)
	if err != nil {
		t.Fatalf("Consolidate() err=%v", err)
	}
	if !reflect.DeepEqual(once, onOwnOutput) {
		t.Fatalf("re-applying to own output changed it:\n%+v\n%+v", once, onOwnOutput)
	}
	if stats.NotFound != 1 || stats.Replaced != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestConsolidateRequiresBase(t *testing.T) {
	if _, _, err := Consolidate(nil, nil, nil); !errors.Is(err, domain.ErrContextInvalid) {
		t.Fatalf("Consolidate(nil) err=%v, want ErrContextInvalid", err)
	}
}

func TestConsolidateValidatesMergedDocument(t *testing.T) {
	base := &domain.Document{Tests: []domain.Test{fullTest("A", "Alpha")}}
	broken := domain.Test{ID: "A", Name: "Alpha"}
	_, _, err := Consolidate(base, []domain.PatchUnit{{ActionIndex: 0, ActionKind: domain.ActionEdit, TargetID: "A", Content: &broken}}, newValidator(t))
	if !errors.Is(err, domain.ErrSchemaInvalid) {
		t.Fatalf("Consolidate() err=%v, want ErrSchemaInvalid", err)
	}
}

type stubMetrics struct{ got []Stats }

func (s *stubMetrics) ObserveConsolidation(stats Stats) { s.got = append(s.got, stats) }

func TestServiceRunPersistsAndRetiresUnits(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	v := newValidator(t)
	if err := storage.PutJSON(ctx, store, storage.KeyDestination, domain.Document{Tests: []domain.Test{fullTest("A", "Alpha")}}); err != nil {
		t.Fatalf("PutJSON() err=%v", err)
	}
	added := fullTest("B", "Beta")
	if err := storage.PutJSON(ctx, store, storage.PatchKey(3), domain.PatchUnit{ActionIndex: 3, ActionKind: domain.ActionAdd, Content: &added}); err != nil {
		t.Fatalf("PutJSON() err=%v", err)
	}
	ws, err := executor.NewWorkspace(store, v)
	if err != nil {
		t.Fatalf("NewWorkspace() err=%v", err)
	}
	metrics := &stubMetrics{}
	svc, err := NewService(ws, store, metrics, nil)
	if err != nil {
		t.Fatalf("NewService() err=%v", err)
	}

	stats, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if stats.Added != 1 || len(metrics.got) != 1 {
		t.Fatalf("stats=%+v metrics=%+v", stats, metrics.got)
	}
	if keys, _ := store.ListByPrefix(ctx, storage.PrefixPatches); len(keys) != 0 {
		t.Fatalf("units not retired: %v", keys)
	}
	before, _ := store.Get(ctx, storage.KeyDestination)

	stats, err = svc.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() err=%v", err)
	}
	after, _ := store.Get(ctx, storage.KeyDestination)
	if stats.Units != 0 || string(before) != string(after) {
		t.Fatalf("second run was not a no-op: stats=%+v", stats)
	}
}

func TestServiceRunKeepsUnitsOnFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	if err := storage.PutJSON(ctx, store, storage.KeyDestination, domain.Document{Tests: []domain.Test{fullTest("A", "Alpha")}}); err != nil {
		t.Fatalf("PutJSON() err=%v", err)
	}
	broken := domain.Test{ID: "A", Name: "Alpha"}
	if err := storage.PutJSON(ctx, store, storage.PatchKey(0), domain.PatchUnit{ActionIndex: 0, ActionKind: domain.ActionEdit, TargetID: "A", Content: &broken}); err != nil {
		t.Fatalf("PutJSON() err=%v", err)
	}
	ws, err := executor.NewWorkspace(store, newValidator(t))
	if err != nil {
		t.Fatalf("NewWorkspace() err=%v", err)
	}
	svc, err := NewService(ws, store, nil, nil)
	if err != nil {
		t.Fatalf("NewService() err=%v", err)
	}
	if _, err := svc.Run(ctx); !errors.Is(err, domain.ErrSchemaInvalid) {
		t.Fatalf("Run() err=%v, want ErrSchemaInvalid", err)
	}
	if keys, _ := store.ListByPrefix(ctx, storage.PrefixPatches); len(keys) != 1 {
		t.Fatalf("units=%v, want the failed unit kept", keys)
	}
}

func TestServiceRunWithoutDestinationFails(t *testing.T) {
	store := storage.NewMemory()
	ws, err := executor.NewWorkspace(store, newValidator(t))
	if err != nil {
		t.Fatalf("NewWorkspace() err=%v", err)
	}
	svc, err := NewService(ws, store, nil, nil)
	if err != nil {
		t.Fatalf("NewService() err=%v", err)
	}
	if _, err := svc.Run(context.Background()); !errors.Is(err, domain.ErrContextInvalid) {
		t.Fatalf("Run() err=%v, want ErrContextInvalid", err)
	}
}

func TestConsolidateSharedIdentifierDeleteIsIdempotent(t *testing.T) {
	base := &domain.Document{Tests: []domain.Test{fullTest("S1", "Apariencia"), fullTest("S1", "pH")}}
	units := []domain.PatchUnit{{ActionIndex: 0, ActionKind: domain.ActionDelete, TargetID: "S1", TargetName: "pH", Content: &base.Tests[1]}}
	v := newValidator(t)

	once, stats, err := Consolidate(base, units, v)
	if err != nil {
		t.Fatalf("Consolidate() err=%v", err)
	}
	want := []domain.Test{fullTest("S1", "Apariencia")}
	if !reflect.DeepEqual(once.Tests, want) || stats.Deleted != 1 {
		t.Fatalf("tests=%+v stats=%+v, want %+v", once.Tests, stats, want)
	}
	twice, stats, err := Consolidate(once, units, v)
	if err != nil {
		t.Fatalf("second Consolidate() err=%v", err)
	}
	if !reflect.DeepEqual(twice.Tests, want) {
		t.Fatalf("second fold tests=%+v, want %+v", twice.Tests, want)
	}
	if stats.NotFound != 1 || stats.Deleted != 0 {
		t.Fatalf("second fold stats=%+v", stats)
	}
}

func TestConsolidateSharedIdentifierEditTargetsNamedRecord(t *testing.T) {
	base := &domain.Document{Tests: []domain.Test{fullTest("S1", "Apariencia"), fullTest("S1", "pH")}}
	edited := fullTest("S1", "pH")
	edited.Method = "USP <791>"
	units := []domain.PatchUnit{{ActionIndex: 0, ActionKind: domain.ActionEdit, TargetID: "S1", TargetName: "pH", Content: &edited}}
	v := newValidator(t)

	once, _, err := Consolidate(base, units, v)
	if err != nil {
		t.Fatalf("Consolidate() err=%v", err)
	}
	twice, _, err := Consolidate(once, units, v)
	if err != nil {
		t.Fatalf("second Consolidate() err=%v", err)
	}
	want := []domain.Test{fullTest("S1", "Apariencia"), edited}
	if !reflect.DeepEqual(once.Tests, want) || !reflect.DeepEqual(twice.Tests, want) {
		t.Fatalf("once=%+v twice=%+v, want %+v", once.Tests, twice.Tests, want)
	}
}
