package plan

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

func TestMarshalPlanShape(t *testing.T) {
	p, err := NewBuilder(nil).Build(Input{
		Legacy: []domain.Record{{Name: "pH", SourceID: "S1", Position: 0}},
		Changes: domain.ChangeSet{ModifyOrDelete: []domain.ChangeItem{
			{AffectedName: "pH", Kind: domain.ChangeModify, Index: intPtr(0), Text: "tighten"},
		}},
	})
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	raw, err := MarshalPlan(p)
	if err != nil {
		t.Fatalf("MarshalPlan() err=%v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["plan_id"] != p.ID {
		t.Fatalf("plan_id=%v, want %s", generic["plan_id"], p.ID)
	}
	action := generic["actions"].([]any)[0].(map[string]any)
	for _, key := range []string{"order", "description", "target_name", "target_id", "action_kind", "change_item_ref", "proposed_record_ref"} {
		if _, ok := action[key]; !ok {
			t.Fatalf("action missing %q: %v", key, action)
		}
	}
	if action["target_id"] != "S1" || action["action_kind"] != "edit" {
		t.Fatalf("action=%v", action)
	}

	back, err := UnmarshalPlan(raw)
	if err != nil {
		t.Fatalf("UnmarshalPlan() err=%v", err)
	}
	if !reflect.DeepEqual(back, p) {
		t.Fatalf("decoded=%+v, want %+v", back, p)
	}
}

func TestUnmarshalPlanRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalPlan([]byte(`{"plan_id":"x","summary":{},"actions":[{"order":1,"action_kind":"rename"}]}`))
	if !errors.Is(err, domain.ErrContextInvalid) {
		t.Fatalf("UnmarshalPlan() err=%v, want ErrContextInvalid", err)
	}
}

func TestPlanCodecKeepsInheritedIdentifiers(t *testing.T) {
	p, err := NewBuilder(nil).Build(Input{
		Legacy: []domain.Record{
			{Name: "Apariencia", SourceID: "S1", Position: 0},
			{Name: "pH", SourceID: "T-2", OwnID: true, Position: 1},
		},
	})
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	raw, err := MarshalPlan(p)
	if err != nil {
		t.Fatalf("MarshalPlan() err=%v", err)
	}
	back, err := UnmarshalPlan(raw)
	if err != nil {
		t.Fatalf("UnmarshalPlan() err=%v", err)
	}
	if got := back.Actions[0].TargetKey(); got != "" {
		t.Fatalf("inherited TargetKey()=%q, want empty", got)
	}
	if got := back.Actions[1].TargetKey(); got != "T-2" {
		t.Fatalf("own TargetKey()=%q, want T-2", got)
	}
	if back.Actions[0].TargetID() != "S1" {
		t.Fatalf("TargetID()=%q, want S1", back.Actions[0].TargetID())
	}
}
