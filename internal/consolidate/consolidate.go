// Package consolidate folds PatchUnits into the destination document.
package consolidate

import (
	"fmt"
	"sort"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

type Stats struct {
	Units    int `json:"units"`
	Edited   int `json:"edited"`
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
	NotFound int `json:"not_found"`
}

type DocumentValidator interface {
	Document(doc *domain.Document) error
}

// Consolidate folds units into a copy of base in ascending action index
// order and validates the result once. base is not modified.
func Consolidate(base *domain.Document, units []domain.PatchUnit, v DocumentValidator) (*domain.Document, Stats, error) {
	if base == nil {
		return nil, Stats{}, domain.Errorf(domain.ErrContextInvalid, "consolidation", "base", "base document is required")
	}
	merged := base.Clone()
	stats, err := Fold(merged, units)
	if err != nil {
		return nil, Stats{}, err
	}
	if v != nil {
		if err := v.Document(merged); err != nil {
			return nil, Stats{}, err
		}
	}
	return merged, stats, nil
}

// Fold applies units to doc in place. Intermediate states are not
// validated.
func Fold(doc *domain.Document, units []domain.PatchUnit) (Stats, error) {
	ordered := append([]domain.PatchUnit(nil), units...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ActionIndex < ordered[j].ActionIndex })

	stats := Stats{Units: len(ordered)}
	for _, u := range ordered {
		path := fmt.Sprintf("patches[%d]", u.ActionIndex)
		switch u.ActionKind {
		case domain.ActionKeep:
			stats.Skipped++
		case domain.ActionDelete:
			// A delete already applied must not claim a sibling that
			// shares the identifier.
			idx := doc.IndexOfNamed(u.TargetID, u.TargetName)
			if idx < 0 {
				stats.NotFound++
				continue
			}
			doc.Remove(idx)
			stats.Deleted++
		case domain.ActionEdit:
			if u.Content == nil {
				return Stats{}, domain.Errorf(domain.ErrContextInvalid, path, "content", "is required for edit")
			}
			idx := doc.IndexOf(u.TargetID, u.TargetName)
			if idx < 0 {
				idx = doc.IndexOfIdentity(*u.Content)
			}
			if idx < 0 {
				stats.Skipped++
				continue
			}
			doc.Tests[idx] = u.Content.Clone()
			stats.Edited++
		case domain.ActionAdd:
			if u.Content == nil {
				return Stats{}, domain.Errorf(domain.ErrContextInvalid, path, "content", "is required for add")
			}
			if idx := doc.IndexOfIdentity(*u.Content); idx >= 0 {
				doc.Tests[idx] = u.Content.Clone()
				stats.Replaced++
				continue
			}
			doc.Tests = append(doc.Tests, u.Content.Clone())
			stats.Added++
		default:
			return Stats{}, domain.Errorf(domain.ErrContextInvalid, path, "action_kind", "unsupported %q", u.ActionKind)
		}
	}
	return stats, nil
}
