// Package normalize flattens the heterogeneous source payloads (legacy,
// proposed and reference record sets) into ordered domain.Records.
package normalize

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

type Normalizer struct {
	profile Profile
	logger  *slog.Logger
}

func New(profile Profile, logger *slog.Logger) (*Normalizer, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Normalizer{profile: profile, logger: logger}, nil
}

// Normalize sniffs raw and flattens it. path names the input in errors and
// logs.
func (n *Normalizer) Normalize(path string, raw []byte) ([]domain.Record, error) {
	p, err := n.Sniff(path, raw)
	if err != nil {
		return nil, err
	}
	return n.Flatten(path, p), nil
}

// Flatten returns the records of p in payload order. Records without a
// resolvable name are dropped and logged. Position is the index in the
// returned slice.
func (n *Normalizer) Flatten(path string, p Payload) []domain.Record {
	out := make([]domain.Record, 0)
	n.flatten(path, p, &out)
	return out
}

func (n *Normalizer) flatten(path string, p Payload, out *[]domain.Record) {
	switch typed := p.(type) {
	case Keyed:
		n.flatten(path+"."+typed.Key, typed.Inner, out)
	case Flat:
		for i, item := range typed.Items {
			n.appendRecord(fmt.Sprintf("%s[%d]", path, i), item, "", out)
		}
	case Wrapped:
		for i, w := range typed.Wrappers {
			for j, child := range w.Children {
				n.appendRecord(fmt.Sprintf("%s[%d].%s[%d]", path, i, n.profile.ChildrenKey, j), child, w.SourceID, out)
			}
		}
	}
}

func (n *Normalizer) appendRecord(path string, item map[string]any, inheritedID string, out *[]domain.Record) {
	name := n.resolveName(item)
	if name == "" {
		n.logger.Warn("record dropped: no resolvable name", "path", path)
		return
	}
	sourceID, own := n.resolveID(item, inheritedID)
	*out = append(*out, domain.Record{
		Name:     name,
		SourceID: sourceID,
		OwnID:    own,
		Position: len(*out),
		Fields:   domain.Metadata(item).Clone(),
	})
}

func (n *Normalizer) resolveName(item map[string]any) string {
	for _, field := range n.profile.PrimaryNameFields {
		if v := scalarString(item[field]); v != "" {
			return v
		}
	}
	for _, field := range n.profile.SecondaryNameFields {
		if v := scalarString(item[field]); v != "" {
			return v
		}
	}
	if n.profile.GenericNameField != "" {
		return scalarString(item[n.profile.GenericNameField])
	}
	return ""
}

// resolveID returns the record's identifier and whether the record owns
// it. A child repeating its wrapper's provenance id does not own it.
func (n *Normalizer) resolveID(item map[string]any, inheritedID string) (string, bool) {
	for _, field := range n.profile.IDFields {
		if v := scalarString(item[field]); v != "" {
			return v, true
		}
	}
	if v := scalarString(item[n.profile.WrapperIDKey]); v != "" && v != inheritedID {
		return v, true
	}
	return inheritedID, false
}

func scalarString(v any) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", typed))
	default:
		return ""
	}
}
