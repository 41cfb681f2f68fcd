package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

// Payload is the shape a source payload was sniffed into. It is one of
// Wrapped, Flat or Keyed; downstream code switches on the concrete type and
// never inspects the raw JSON again.
type Payload interface {
	payload()
}

// Wrapper groups children that share a source identifier.
type Wrapper struct {
	SourceID string
	Children []map[string]any
}

// Wrapped is a list of wrappers. List elements without children are kept in
// place as single-child wrappers with no source id.
type Wrapped struct {
	Wrappers []Wrapper
}

// Flat is a list of record-like objects.
type Flat struct {
	Items []map[string]any
}

// Keyed is an object exposing its records under Key.
type Keyed struct {
	Key   string
	Inner Payload
}

func (Wrapped) payload() {}
func (Flat) payload()    {}
func (Keyed) payload()   {}

// Sniff decodes raw and resolves its shape. path names the input in errors.
func (n *Normalizer) Sniff(path string, raw []byte) (Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, domain.Errorf(domain.ErrContextInvalid, path, "", "payload is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, domain.Wrap(domain.ErrContextInvalid, path, err)
	}
	return n.sniffValue(path, v)
}

func (n *Normalizer) sniffValue(path string, v any) (Payload, error) {
	switch typed := v.(type) {
	case []any:
		return n.sniffList(path, typed)
	case map[string]any:
		for _, key := range n.profile.CollectionKeys {
			inner, ok := typed[key]
			if !ok {
				continue
			}
			list, ok := inner.([]any)
			if !ok {
				return nil, domain.Errorf(domain.ErrContextInvalid, path, key, "expected a list, got %s", jsonKind(inner))
			}
			p, err := n.sniffList(path+"."+key, list)
			if err != nil {
				return nil, err
			}
			return Keyed{Key: key, Inner: p}, nil
		}
		return nil, domain.Errorf(domain.ErrContextInvalid, path, "", "object exposes none of %v", n.profile.CollectionKeys)
	default:
		return nil, domain.Errorf(domain.ErrContextInvalid, path, "", "expected a list or object, got %s", jsonKind(v))
	}
}

func (n *Normalizer) sniffList(path string, list []any) (Payload, error) {
	items := make([]map[string]any, 0, len(list))
	wrapped := false
	for i, elem := range list {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, domain.Errorf(domain.ErrContextInvalid, fmt.Sprintf("%s[%d]", path, i), "", "expected an object, got %s", jsonKind(elem))
		}
		if _, ok := obj[n.profile.ChildrenKey]; ok {
			wrapped = true
		}
		items = append(items, obj)
	}
	if !wrapped {
		return Flat{Items: items}, nil
	}

	out := Wrapped{Wrappers: make([]Wrapper, 0, len(items))}
	for i, obj := range items {
		rawChildren, ok := obj[n.profile.ChildrenKey]
		if !ok {
			out.Wrappers = append(out.Wrappers, Wrapper{Children: []map[string]any{obj}})
			continue
		}
		list, ok := rawChildren.([]any)
		if !ok {
			return nil, domain.Errorf(domain.ErrContextInvalid, fmt.Sprintf("%s[%d]", path, i), n.profile.ChildrenKey, "expected a list, got %s", jsonKind(rawChildren))
		}
		w := Wrapper{
			SourceID: scalarString(obj[n.profile.WrapperIDKey]),
			Children: make([]map[string]any, 0, len(list)),
		}
		for j, child := range list {
			childObj, ok := child.(map[string]any)
			if !ok {
				return nil, domain.Errorf(domain.ErrContextInvalid, fmt.Sprintf("%s[%d].%s[%d]", path, i, n.profile.ChildrenKey, j), "", "expected an object, got %s", jsonKind(child))
			}
			w.Children = append(w.Children, childObj)
		}
		out.Wrappers = append(out.Wrappers, w)
	}
	return out, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
