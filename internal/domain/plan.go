package domain

// ActionKind is the resolved kind of a plan action.
type ActionKind string

const (
	ActionEdit   ActionKind = "edit"
	ActionAdd    ActionKind = "add"
	ActionDelete ActionKind = "delete"
	ActionKeep   ActionKind = "keep"
)

// ActionKinds lists the kinds in the order summaries report them.
var ActionKinds = []ActionKind{ActionEdit, ActionAdd, ActionDelete, ActionKeep}

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionEdit, ActionAdd, ActionDelete, ActionKeep:
		return true
	default:
		return false
	}
}

// RecordRef points at a Record of one of the input record sets.
type RecordRef struct {
	Name     string
	SourceID string
	OwnID    bool
	Position int
}

// Key returns the identifier the referenced record can be resolved by:
// its own id, or "" when the id was inherited.
func (r *RecordRef) Key() string {
	if r == nil || !r.OwnID {
		return ""
	}
	return r.SourceID
}

// ChangeRef points at a ChangeItem of the change-control document.
type ChangeRef struct {
	Index *int
	Kind  ChangeKind
	Name  string
	Text  string
}

// PlanAction is one ordered unit of work. Actions are created once by the
// plan builder and never mutated afterwards.
type PlanAction struct {
	Order       int
	Kind        ActionKind
	Target      *RecordRef
	ChangeItem  *ChangeRef
	Proposed    *RecordRef
	Description string
}

// TargetName returns the name the action operates on: the legacy target for
// targeted actions, the change item name for pure adds.
func (a PlanAction) TargetName() string {
	if a.Target != nil {
		return a.Target.Name
	}
	if a.ChangeItem != nil {
		return a.ChangeItem.Name
	}
	return ""
}

// TargetID returns the identifier of the legacy target, if any.
func (a PlanAction) TargetID() string {
	if a.Target != nil {
		return a.Target.SourceID
	}
	return ""
}

// TargetKey returns the target's own identifier, "" when it has none.
func (a PlanAction) TargetKey() string {
	return a.Target.Key()
}

// PlanSummary carries per-kind counts and non-fatal validation warnings.
type PlanSummary struct {
	Total    int
	Counts   map[ActionKind]int
	Warnings []string
}

// InterventionPlan is the ordered list of actions that migrates the legacy
// record set.
type InterventionPlan struct {
	ID      string
	Summary PlanSummary
	Actions []PlanAction
}
