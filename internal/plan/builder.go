// Package plan reconciles legacy records against change items and proposed
// records into an ordered InterventionPlan, and validates built plans.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/names"
	"github.com/google/uuid"
)

// planNamespace scopes plan ids derived from plan content.
var planNamespace = uuid.MustParse("8f0c7f3e-7a0b-4c43-9a57-2f4f2b1b6d10")

// Input is the parsed planning context.
type Input struct {
	Legacy   []domain.Record
	Proposed []domain.Record
	Changes  domain.ChangeSet
}

type Builder struct {
	logger *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{logger: logger}
}

// Build produces the plan for in. It is deterministic: identical input
// yields an identical plan, id included. Matching problems that do not
// prevent a plan (unmatched change items, new items colliding with legacy
// records) are reported as summary warnings.
func (b *Builder) Build(in Input) (domain.InterventionPlan, error) {
	if err := validateInput(in); err != nil {
		return domain.InterventionPlan{}, err
	}

	legacyKeys := normalizedKeys(in.Legacy)
	proposedKeys := normalizedKeys(in.Proposed)
	warnings := make([]string, 0)

	claims := make([]*domain.ChangeItem, len(in.Legacy))
	for ci := range in.Changes.ModifyOrDelete {
		change := &in.Changes.ModifyOrDelete[ci]
		key := names.Normalize(change.AffectedName)
		candidates := make([]int, 0, 1)
		for li, legacyKey := range legacyKeys {
			if legacyKey == key && claims[li] == nil {
				candidates = append(candidates, li)
			}
		}
		if len(candidates) == 0 {
			warnings = append(warnings, fmt.Sprintf("modify_or_delete_items[%d]: %q matches no unclaimed legacy record", ci, change.AffectedName))
			continue
		}
		claims[closestRecord(in.Legacy, candidates, change.Index)] = change
	}

	actions := make([]domain.PlanAction, 0, len(in.Legacy)+len(in.Changes.New))
	for li, legacy := range in.Legacy {
		target := &domain.RecordRef{Name: legacy.Name, SourceID: legacy.SourceID, OwnID: legacy.OwnID, Position: legacy.Position}
		anchor := legacy.Position
		action := domain.PlanAction{
			Kind:     domain.ActionKeep,
			Target:   target,
			Proposed: resolveProposed(in.Proposed, proposedKeys, legacyKeys[li], &anchor),
		}
		if change := claims[li]; change != nil {
			action.ChangeItem = changeRef(*change)
			if change.Kind == domain.ChangeDelete {
				action.Kind = domain.ActionDelete
			} else {
				action.Kind = domain.ActionEdit
			}
		}
		action.Description = describe(action)
		actions = append(actions, action)
	}

	legacyNames := make(map[string]int, len(legacyKeys))
	for li := len(legacyKeys) - 1; li >= 0; li-- {
		legacyNames[legacyKeys[li]] = li
	}
	added := make(map[string]int)
	for ni, item := range in.Changes.New {
		key := names.Normalize(item.AffectedName)
		if li, ok := legacyNames[key]; ok {
			warnings = append(warnings, fmt.Sprintf("new_items[%d]: %q matches legacy record at position %d; no add emitted", ni, item.AffectedName, in.Legacy[li].Position))
			continue
		}
		if prev, ok := added[key]; ok {
			warnings = append(warnings, fmt.Sprintf("new_items[%d]: %q duplicates new_items[%d]; no add emitted", ni, item.AffectedName, prev))
			continue
		}
		added[key] = ni
		action := domain.PlanAction{
			Kind:       domain.ActionAdd,
			ChangeItem: changeRef(item),
			Proposed:   resolveProposed(in.Proposed, proposedKeys, key, item.Index),
		}
		action.Description = describe(action)
		actions = append(actions, action)
	}

	for i := range actions {
		actions[i].Order = i + 1
	}

	plan := domain.InterventionPlan{
		Summary: summarize(actions, warnings),
		Actions: actions,
	}
	plan.ID = planID(plan)
	for _, w := range warnings {
		b.logger.Warn("plan warning", "warning", w)
	}
	b.logger.Info("plan built",
		"plan_id", plan.ID,
		"actions", len(actions),
		"edit", plan.Summary.Counts[domain.ActionEdit],
		"add", plan.Summary.Counts[domain.ActionAdd],
		"delete", plan.Summary.Counts[domain.ActionDelete],
		"keep", plan.Summary.Counts[domain.ActionKeep],
	)
	return plan, nil
}

func validateInput(in Input) error {
	if in.Legacy == nil {
		return domain.Errorf(domain.ErrContextInvalid, "legacy", "", "legacy record set is required")
	}
	for i, r := range in.Legacy {
		if names.Normalize(r.Name) == "" {
			return domain.Errorf(domain.ErrContextInvalid, fmt.Sprintf("legacy[%d]", i), "name", "is required")
		}
	}
	for i, c := range in.Changes.ModifyOrDelete {
		path := fmt.Sprintf("changes.modify_or_delete_items[%d]", i)
		if names.Normalize(c.AffectedName) == "" {
			return domain.Errorf(domain.ErrContextInvalid, path, "affected_name", "is required")
		}
		if c.Kind != domain.ChangeModify && c.Kind != domain.ChangeDelete {
			return domain.Errorf(domain.ErrContextInvalid, path, "kind", "expected modify or delete, got %q", c.Kind)
		}
	}
	for i, c := range in.Changes.New {
		path := fmt.Sprintf("changes.new_items[%d]", i)
		if names.Normalize(c.AffectedName) == "" {
			return domain.Errorf(domain.ErrContextInvalid, path, "name", "is required")
		}
		if c.Kind != domain.ChangeNew {
			return domain.Errorf(domain.ErrContextInvalid, path, "kind", "expected new, got %q", c.Kind)
		}
	}
	return nil
}

func normalizedKeys(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = names.Normalize(r.Name)
	}
	return out
}

// closestRecord picks among candidate indexes the record whose position is
// closest to anchor; ties go to the smaller position. Without an anchor
// the first candidate wins.
func closestRecord(records []domain.Record, candidates []int, anchor *int) int {
	best := candidates[0]
	if anchor == nil {
		return best
	}
	for _, c := range candidates[1:] {
		d, bd := distance(records[c].Position, *anchor), distance(records[best].Position, *anchor)
		if d < bd || (d == bd && records[c].Position < records[best].Position) {
			best = c
		}
	}
	return best
}

func resolveProposed(proposed []domain.Record, keys []string, key string, anchor *int) *domain.RecordRef {
	if key == "" {
		return nil
	}
	candidates := make([]int, 0, 1)
	for i, k := range keys {
		if k == key {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	if anchor != nil {
		best = closestRecord(proposed, candidates, anchor)
	} else {
		for _, c := range candidates[1:] {
			if proposed[c].Position < proposed[best].Position {
				best = c
			}
		}
	}
	r := proposed[best]
	return &domain.RecordRef{Name: r.Name, SourceID: r.SourceID, OwnID: r.OwnID, Position: r.Position}
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func changeRef(c domain.ChangeItem) *domain.ChangeRef {
	ref := &domain.ChangeRef{Kind: c.Kind, Name: c.AffectedName, Text: c.Text}
	if c.Index != nil {
		idx := *c.Index
		ref.Index = &idx
	}
	return ref
}

func describe(a domain.PlanAction) string {
	name := a.TargetName()
	text := ""
	if a.ChangeItem != nil {
		text = strings.TrimSpace(a.ChangeItem.Text)
	}
	var verb string
	switch a.Kind {
	case domain.ActionKeep:
		return fmt.Sprintf("Keep %q unchanged", name)
	case domain.ActionEdit:
		verb = "Edit"
	case domain.ActionDelete:
		verb = "Delete"
	case domain.ActionAdd:
		verb = "Add"
	}
	if text == "" {
		return fmt.Sprintf("%s %q", verb, name)
	}
	return fmt.Sprintf("%s %q: %s", verb, name, text)
}

func summarize(actions []domain.PlanAction, warnings []string) domain.PlanSummary {
	counts := make(map[domain.ActionKind]int, len(domain.ActionKinds))
	for _, k := range domain.ActionKinds {
		counts[k] = 0
	}
	for _, a := range actions {
		counts[a.Kind]++
	}
	return domain.PlanSummary{Total: len(actions), Counts: counts, Warnings: warnings}
}

// planID derives a name-based UUID from the plan's actions so rebuilding
// from identical input reproduces the id.
func planID(p domain.InterventionPlan) string {
	h := sha256.New()
	for _, a := range p.Actions {
		fmt.Fprintf(h, "%d|%s|%s|%s|", a.Order, a.Kind, a.TargetID(), a.Description)
		if a.Proposed != nil {
			fmt.Fprintf(h, "%d", a.Proposed.Position)
		}
		h.Write([]byte{'\n'})
	}
	return uuid.NewSHA1(planNamespace, []byte(hex.EncodeToString(h.Sum(nil)))).String()
}
