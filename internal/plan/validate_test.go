package plan

import (
	"strings"
	"testing"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

func TestValidateAcceptsBuiltPlan(t *testing.T) {
	p, err := NewBuilder(nil).Build(Input{
		Legacy: records("Valoración", "pH"),
		Changes: domain.ChangeSet{
			ModifyOrDelete: []domain.ChangeItem{{AffectedName: "Valoración", Kind: domain.ChangeDelete}},
			New:            []domain.ChangeItem{{AffectedName: "HPLC", Kind: domain.ChangeNew}},
		},
	})
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if ok, issues := Validate(p, 2, 1); !ok {
		t.Fatalf("Validate() issues=%v", issues)
	}
}

func TestValidateReportsViolations(t *testing.T) {
	p := domain.InterventionPlan{Actions: []domain.PlanAction{
		{Order: 1, Kind: domain.ActionKeep, Target: &domain.RecordRef{Name: "A", Position: 0}},
		{Order: 3, Kind: domain.ActionKeep, Target: &domain.RecordRef{Name: "A", Position: 0}},
	}}
	ok, issues := Validate(p, 3, 1)
	if ok {
		t.Fatalf("Validate() ok=true, want false")
	}
	joined := strings.Join(issues, "\n")
	for _, want := range []string{"order is 3, want 2", "already used", "got 2, want 3", "want at least 1"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("issues=%v, missing %q", issues, want)
		}
	}
}

func TestAttachAppendsWarnings(t *testing.T) {
	p := domain.InterventionPlan{Summary: domain.PlanSummary{Warnings: []string{"existing"}}}
	if Attach(&p, 1, 0) {
		t.Fatalf("Attach() ok=true, want false")
	}
	if len(p.Summary.Warnings) != 2 || p.Summary.Warnings[0] != "existing" {
		t.Fatalf("warnings=%v", p.Summary.Warnings)
	}
}
