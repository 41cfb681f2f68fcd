package normalize

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile names the fields the normalizer reads from source payloads.
type Profile struct {
	PrimaryNameFields   []string `yaml:"primary_name_fields"`
	SecondaryNameFields []string `yaml:"secondary_name_fields"`
	GenericNameField    string   `yaml:"generic_name_field"`
	// IDFields are a record's own identifier fields. WrapperIDKey names the
	// provenance id a wrapper hands down to its children; a record carrying
	// that key itself still owns the value.
	IDFields       []string `yaml:"id_fields"`
	ChildrenKey    string   `yaml:"children_key"`
	WrapperIDKey   string   `yaml:"wrapper_id_key"`
	CollectionKeys []string `yaml:"collection_keys"`
}

func DefaultProfile() Profile {
	return Profile{
		PrimaryNameFields:   []string{"test_name", "nombre_prueba"},
		SecondaryNameFields: []string{"title", "titulo"},
		GenericNameField:    "name",
		IDFields:            []string{"id", "test_id"},
		ChildrenKey:         "children",
		WrapperIDKey:        "source_id",
		CollectionKeys:      []string{"records", "tests"},
	}
}

// ParseProfile decodes a YAML profile; omitted fields keep their defaults.
func ParseProfile(input []byte) (Profile, error) {
	p := DefaultProfile()
	if err := yaml.Unmarshal(input, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// LoadProfile reads a YAML profile from path, or returns the default
// profile when path is empty.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(raw)
}

func (p Profile) Validate() error {
	if len(p.PrimaryNameFields) == 0 && len(p.SecondaryNameFields) == 0 && strings.TrimSpace(p.GenericNameField) == "" {
		return errors.New("profile must name at least one name field")
	}
	if strings.TrimSpace(p.ChildrenKey) == "" {
		return errors.New("profile.children_key is required")
	}
	if strings.TrimSpace(p.WrapperIDKey) == "" {
		return errors.New("profile.wrapper_id_key is required")
	}
	for _, field := range p.IDFields {
		if field == p.WrapperIDKey {
			return fmt.Errorf("profile.id_fields must not repeat wrapper_id_key %q", field)
		}
	}
	if len(p.CollectionKeys) == 0 {
		return errors.New("profile.collection_keys must be non-empty")
	}
	for i, key := range p.CollectionKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("profile.collection_keys[%d] is empty", i)
		}
	}
	return nil
}
