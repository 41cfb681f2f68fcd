package domain

// Record is the normalized view of one entry of a source document.
// Records are derived fresh on every run and never persisted on their own.
type Record struct {
	Name     string
	SourceID string
	// OwnID is false when SourceID was inherited from an enclosing wrapper.
	// Inherited ids are shared by siblings and never identify a record.
	OwnID    bool
	Position int
	// Fields is the raw object the record was read from. It is only passed
	// along as evidence to content generation.
	Fields Metadata
}

// ChangeKind is the pre-resolved classification of a change item.
type ChangeKind string

const (
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
	ChangeNew    ChangeKind = "new"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeModify, ChangeDelete, ChangeNew:
		return true
	default:
		return false
	}
}

// ChangeItem is one atomic modification instruction from a change-control
// document. Index is the item's declared index, nil when the source did not
// provide one.
type ChangeItem struct {
	Index        *int
	Text         string
	AffectedName string
	Kind         ChangeKind
}

// ChangeSet is a parsed change-control document.
type ChangeSet struct {
	ModifyOrDelete []ChangeItem
	New            []ChangeItem
}
