package domain

import (
	"encoding/json"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/names"
)

// Test is one record of the destination document. Fields outside the known
// schema are preserved in Extra and round-trip through JSON unchanged.
type Test struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name" validate:"required"`
	Category      string   `json:"category,omitempty"`
	Method        string   `json:"method" validate:"required"`
	Specification string   `json:"specification" validate:"required"`
	Procedure     string   `json:"procedure" validate:"required"`
	Notes         string   `json:"notes,omitempty"`
	Extra         Metadata `json:"-"`
}

var testKnownFields = map[string]struct{}{
	"id": {}, "name": {}, "category": {}, "method": {},
	"specification": {}, "procedure": {}, "notes": {},
}

// Identity is the key tests are matched on: the id when present, otherwise
// the normalized name.
func (t Test) Identity() string {
	if id := strings.TrimSpace(t.ID); id != "" {
		return "id:" + id
	}
	return "name:" + names.Normalize(t.Name)
}

func (t Test) Clone() Test {
	out := t
	if t.Extra != nil {
		out.Extra = t.Extra.Clone()
	}
	return out
}

func (t Test) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Extra)+7)
	for k, v := range t.Extra {
		out[k] = v
	}
	if t.ID != "" {
		out["id"] = t.ID
	}
	out["name"] = t.Name
	if t.Category != "" {
		out["category"] = t.Category
	}
	out["method"] = t.Method
	out["specification"] = t.Specification
	out["procedure"] = t.Procedure
	if t.Notes != "" {
		out["notes"] = t.Notes
	}
	return json.Marshal(out)
}

func (t *Test) UnmarshalJSON(data []byte) error {
	type known struct {
		ID            json.RawMessage `json:"id"`
		Name          string          `json:"name"`
		Category      string          `json:"category"`
		Method        string          `json:"method"`
		Specification string          `json:"specification"`
		Procedure     string          `json:"procedure"`
		Notes         string          `json:"notes"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Test{
		ID:            rawID(k.ID),
		Name:          k.Name,
		Category:      k.Category,
		Method:        k.Method,
		Specification: k.Specification,
		Procedure:     k.Procedure,
		Notes:         k.Notes,
	}
	for key, v := range raw {
		if _, ok := testKnownFields[key]; ok {
			continue
		}
		if t.Extra == nil {
			t.Extra = Metadata{}
		}
		t.Extra[key] = v
	}
	return nil
}

// rawID accepts string and numeric identifiers.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// Document is the destination document being produced.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Tests    []Test   `json:"tests"`
}

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Metadata: d.Metadata.Clone(),
		Tests:    make([]Test, len(d.Tests)),
	}
	for i, t := range d.Tests {
		out.Tests[i] = t.Clone()
	}
	return out
}

// IndexOf resolves a test by identifier first, then by normalized name.
// Among tests sharing the identifier, one whose name also matches wins; a
// test is accepted on the identifier alone only when no other test carries
// it. It returns -1 when nothing matches.
func (d *Document) IndexOf(id, name string) int {
	return d.indexOf(id, name, true)
}

// IndexOfNamed is IndexOf without the identifier-only match: the test found
// always carries name.
func (d *Document) IndexOfNamed(id, name string) int {
	return d.indexOf(id, name, false)
}

func (d *Document) indexOf(id, name string, byIDAlone bool) int {
	if d == nil {
		return -1
	}
	if id = strings.TrimSpace(id); id != "" {
		only, shared := -1, 0
		for i, t := range d.Tests {
			if strings.TrimSpace(t.ID) != id {
				continue
			}
			if names.Equal(t.Name, name) {
				return i
			}
			only = i
			shared++
		}
		if byIDAlone && shared == 1 {
			return only
		}
	}
	if names.Normalize(name) == "" {
		return -1
	}
	for i, t := range d.Tests {
		if names.Equal(t.Name, name) {
			return i
		}
	}
	return -1
}

// IndexOfIdentity returns the position of the test t stands for, or -1.
// Tests with an id match on it, disambiguated by name when several tests
// share the id; tests without one match on normalized name.
func (d *Document) IndexOfIdentity(t Test) int {
	if d == nil {
		return -1
	}
	id := strings.TrimSpace(t.ID)
	if id == "" {
		want := t.Identity()
		for i, existing := range d.Tests {
			if existing.Identity() == want {
				return i
			}
		}
		return -1
	}
	only, shared := -1, 0
	for i, existing := range d.Tests {
		if strings.TrimSpace(existing.ID) != id {
			continue
		}
		if names.Equal(existing.Name, t.Name) {
			return i
		}
		only = i
		shared++
	}
	if shared == 1 {
		return only
	}
	return -1
}

// Remove deletes the test at i.
func (d *Document) Remove(i int) {
	d.Tests = append(d.Tests[:i:i], d.Tests[i+1:]...)
}
