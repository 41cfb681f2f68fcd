package plan

import (
	"fmt"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

// Validate checks coverage and ordering of a built plan. Issues are
// warnings: a failed validation never blocks persisting or executing the
// plan.
func Validate(p domain.InterventionPlan, expectedLegacyCount, expectedNewCount int) (bool, []string) {
	issues := make([]string, 0)

	targeted, adds := 0, 0
	seenTargets := make(map[int]int)
	addSeen := false
	for i, a := range p.Actions {
		pos := i + 1
		if a.Order != pos {
			issues = append(issues, fmt.Sprintf("actions[%d]: order is %d, want %d", i, a.Order, pos))
		}
		if !a.Kind.Valid() {
			issues = append(issues, fmt.Sprintf("actions[%d]: unknown action_kind %q", i, a.Kind))
		}
		if a.Kind == domain.ActionAdd {
			adds++
		}
		if a.Target == nil {
			if a.Kind != domain.ActionAdd {
				issues = append(issues, fmt.Sprintf("actions[%d]: %s action has no target_record_ref", i, a.Kind))
			}
			addSeen = true
			continue
		}
		targeted++
		if addSeen {
			issues = append(issues, fmt.Sprintf("actions[%d]: targeted action follows an add action", i))
		}
		if prev, ok := seenTargets[a.Target.Position]; ok {
			issues = append(issues, fmt.Sprintf("actions[%d]: target_record_ref %q already used by actions[%d]", i, a.Target.Name, prev))
		} else {
			seenTargets[a.Target.Position] = i
		}
		if (a.Kind == domain.ActionEdit || a.Kind == domain.ActionDelete) && a.ChangeItem == nil {
			issues = append(issues, fmt.Sprintf("actions[%d]: %s action has no change_item_ref", i, a.Kind))
		}
	}

	if targeted != expectedLegacyCount {
		issues = append(issues, fmt.Sprintf("targeted actions: got %d, want %d legacy records", targeted, expectedLegacyCount))
	}
	if adds < expectedNewCount {
		issues = append(issues, fmt.Sprintf("add actions: got %d, want at least %d new items", adds, expectedNewCount))
	}
	return len(issues) == 0, issues
}

// Attach validates p and appends any issues to its summary warnings.
func Attach(p *domain.InterventionPlan, expectedLegacyCount, expectedNewCount int) bool {
	ok, issues := Validate(*p, expectedLegacyCount, expectedNewCount)
	if !ok {
		p.Summary.Warnings = append(p.Summary.Warnings, issues...)
	}
	return ok
}
