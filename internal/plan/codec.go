package plan

import (
	"encoding/json"
	"fmt"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

// MarshalPlan serializes a plan with stable field names.
func MarshalPlan(p domain.InterventionPlan) ([]byte, error) {
	payload := planPayload{
		PlanID: p.ID,
		Summary: summaryPayload{
			Total:    p.Summary.Total,
			Counts:   make(map[string]int, len(p.Summary.Counts)),
			Warnings: append([]string{}, p.Summary.Warnings...),
		},
		Actions: make([]actionPayload, 0, len(p.Actions)),
	}
	for kind, n := range p.Summary.Counts {
		payload.Summary.Counts[string(kind)] = n
	}
	for _, a := range p.Actions {
		payload.Actions = append(payload.Actions, actionPayload{
			Order:             a.Order,
			Description:       a.Description,
			TargetName:        a.TargetName(),
			TargetID:          a.TargetID(),
			ActionKind:        string(a.Kind),
			TargetRecordRef:   recordRefPayloadFromDomain(a.Target),
			ChangeItemRef:     changeRefPayloadFromDomain(a.ChangeItem),
			ProposedRecordRef: recordRefPayloadFromDomain(a.Proposed),
		})
	}
	return json.MarshalIndent(payload, "", "  ")
}

// UnmarshalPlan parses a persisted plan.
func UnmarshalPlan(raw []byte) (domain.InterventionPlan, error) {
	var payload planPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.InterventionPlan{}, domain.Wrap(domain.ErrContextInvalid, "plan", err)
	}
	out := domain.InterventionPlan{
		ID: payload.PlanID,
		Summary: domain.PlanSummary{
			Total:    payload.Summary.Total,
			Counts:   make(map[domain.ActionKind]int, len(payload.Summary.Counts)),
			Warnings: payload.Summary.Warnings,
		},
		Actions: make([]domain.PlanAction, 0, len(payload.Actions)),
	}
	for kind, n := range payload.Summary.Counts {
		out.Summary.Counts[domain.ActionKind(kind)] = n
	}
	for i, a := range payload.Actions {
		kind := domain.ActionKind(a.ActionKind)
		if !kind.Valid() {
			return domain.InterventionPlan{}, domain.Errorf(domain.ErrContextInvalid, fmt.Sprintf("plan.actions[%d]", i), "action_kind", "unsupported %q", a.ActionKind)
		}
		out.Actions = append(out.Actions, domain.PlanAction{
			Order:       a.Order,
			Kind:        kind,
			Target:      a.TargetRecordRef.toDomain(),
			ChangeItem:  a.ChangeItemRef.toDomain(),
			Proposed:    a.ProposedRecordRef.toDomain(),
			Description: a.Description,
		})
	}
	return out, nil
}

type planPayload struct {
	PlanID  string          `json:"plan_id"`
	Summary summaryPayload  `json:"summary"`
	Actions []actionPayload `json:"actions"`
}

type summaryPayload struct {
	Total    int            `json:"total"`
	Counts   map[string]int `json:"counts"`
	Warnings []string       `json:"warnings"`
}

type actionPayload struct {
	Order             int               `json:"order"`
	Description       string            `json:"description"`
	TargetName        string            `json:"target_name"`
	TargetID          string            `json:"target_id"`
	ActionKind        string            `json:"action_kind"`
	TargetRecordRef   *recordRefPayload `json:"target_record_ref"`
	ChangeItemRef     *changeRefPayload `json:"change_item_ref"`
	ProposedRecordRef *recordRefPayload `json:"proposed_record_ref"`
}

type recordRefPayload struct {
	Name     string `json:"name"`
	SourceID string `json:"source_id,omitempty"`
	// Inherited is set when source_id came from an enclosing wrapper.
	Inherited bool `json:"inherited_id,omitempty"`
	Position  int  `json:"position"`
}

type changeRefPayload struct {
	Index *int   `json:"index"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Text  string `json:"text,omitempty"`
}

func recordRefPayloadFromDomain(ref *domain.RecordRef) *recordRefPayload {
	if ref == nil {
		return nil
	}
	return &recordRefPayload{
		Name:      ref.Name,
		SourceID:  ref.SourceID,
		Inherited: ref.SourceID != "" && !ref.OwnID,
		Position:  ref.Position,
	}
}

func (p *recordRefPayload) toDomain() *domain.RecordRef {
	if p == nil {
		return nil
	}
	return &domain.RecordRef{
		Name:     p.Name,
		SourceID: p.SourceID,
		OwnID:    p.SourceID != "" && !p.Inherited,
		Position: p.Position,
	}
}

func changeRefPayloadFromDomain(ref *domain.ChangeRef) *changeRefPayload {
	if ref == nil {
		return nil
	}
	return &changeRefPayload{Index: ref.Index, Kind: string(ref.Kind), Name: ref.Name, Text: ref.Text}
}

func (p *changeRefPayload) toDomain() *domain.ChangeRef {
	if p == nil {
		return nil
	}
	return &domain.ChangeRef{Index: p.Index, Kind: domain.ChangeKind(p.Kind), Name: p.Name, Text: p.Text}
}
