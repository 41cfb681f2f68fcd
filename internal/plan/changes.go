package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

type changeControlPayload struct {
	ModifyOrDelete *[]changeItemPayload `json:"modify_or_delete_items"`
	New            *[]changeItemPayload `json:"new_items"`
}

type changeItemPayload struct {
	Index        json.RawMessage `json:"index"`
	AffectedName string          `json:"affected_name"`
	Name         string          `json:"name"`
	Text         string          `json:"text"`
	Kind         string          `json:"kind"`
}

// ParseChangeControl decodes a change-control instruction set. Kinds arrive
// pre-resolved; items of kind new found in modify_or_delete_items are
// moved to the new list.
func ParseChangeControl(raw []byte) (domain.ChangeSet, error) {
	const path = "changes"
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.ChangeSet{}, domain.Errorf(domain.ErrContextInvalid, path, "", "payload is empty")
	}
	var payload changeControlPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ChangeSet{}, domain.Wrap(domain.ErrContextInvalid, path, err)
	}
	if payload.ModifyOrDelete == nil && payload.New == nil {
		return domain.ChangeSet{}, domain.Errorf(domain.ErrContextInvalid, path, "", "expected modify_or_delete_items or new_items")
	}

	out := domain.ChangeSet{
		ModifyOrDelete: make([]domain.ChangeItem, 0),
		New:            make([]domain.ChangeItem, 0),
	}
	if payload.ModifyOrDelete != nil {
		for i, item := range *payload.ModifyOrDelete {
			itemPath := fmt.Sprintf("%s.modify_or_delete_items[%d]", path, i)
			change, err := parseItem(itemPath, item, "")
			if err != nil {
				return domain.ChangeSet{}, err
			}
			if change.Kind == domain.ChangeNew {
				out.New = append(out.New, change)
				continue
			}
			out.ModifyOrDelete = append(out.ModifyOrDelete, change)
		}
	}
	if payload.New != nil {
		for i, item := range *payload.New {
			itemPath := fmt.Sprintf("%s.new_items[%d]", path, i)
			change, err := parseItem(itemPath, item, domain.ChangeNew)
			if err != nil {
				return domain.ChangeSet{}, err
			}
			out.New = append(out.New, change)
		}
	}
	return out, nil
}

func parseItem(path string, item changeItemPayload, forced domain.ChangeKind) (domain.ChangeItem, error) {
	name := strings.TrimSpace(item.AffectedName)
	if name == "" {
		name = strings.TrimSpace(item.Name)
	}
	if name == "" {
		field := "affected_name"
		if forced == domain.ChangeNew {
			field = "name"
		}
		return domain.ChangeItem{}, domain.Errorf(domain.ErrContextInvalid, path, field, "is required")
	}

	kind := forced
	if kind == "" {
		kind = domain.ChangeKind(strings.ToLower(strings.TrimSpace(item.Kind)))
		if !kind.Valid() {
			return domain.ChangeItem{}, domain.Errorf(domain.ErrContextInvalid, path, "kind", "unsupported kind %q", item.Kind)
		}
	}

	index, err := parseIndex(item.Index)
	if err != nil {
		return domain.ChangeItem{}, domain.Errorf(domain.ErrContextInvalid, path, "index", "%v", err)
	}
	return domain.ChangeItem{
		Index:        index,
		Text:         strings.TrimSpace(item.Text),
		AffectedName: name,
		Kind:         kind,
	}, nil
}

// parseIndex accepts integers, integer strings and null.
func parseIndex(raw json.RawMessage) (*int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return &n, nil
		}
	}
	return nil, fmt.Errorf("expected an integer, got %s", trimmed)
}
