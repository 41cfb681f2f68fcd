package domain

// PatchUnit is the persisted result of executing one plan action. Units are
// keyed by ActionIndex (0-based position in the plan), overwritten on re-run
// and retired by consolidation.
type PatchUnit struct {
	ActionIndex int        `json:"action_index"`
	ActionKind  ActionKind `json:"action_kind"`
	TargetID    string     `json:"target_id"`
	TargetName  string     `json:"target_name"`
	// Content holds the full resulting record for edit/add and the original
	// record for delete tombstones.
	Content *Test `json:"content"`
}
