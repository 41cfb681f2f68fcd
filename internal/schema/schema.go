// Package schema validates Test records and destination documents.
package schema

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-playground/validator/v10"
)

//go:embed document.yaml
var documentSpec []byte

// Placeholder is written into mandatory fields the generator left empty.
const Placeholder = "TBD"

type Validator struct {
	validate *validator.Validate
	document *openapi3.Schema
}

// New loads the embedded document schema.
func New() (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(documentSpec)
	if err != nil {
		return nil, fmt.Errorf("load document schema: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("document schema: %w", err)
	}
	ref, ok := doc.Components.Schemas["Document"]
	if !ok || ref.Value == nil {
		return nil, errors.New("document schema: Document is not defined")
	}
	return &Validator{validate: validator.New(), document: ref.Value}, nil
}

// Test checks the mandatory fields of t. path names the record in issues.
func (v *Validator) Test(path string, t domain.Test) error {
	issues := &domain.Issues{Kind: domain.ErrSchemaInvalid, Path: path}
	v.testIssues(t, "", issues)
	return issues.OrNil()
}

func (v *Validator) testIssues(t domain.Test, prefix string, issues *domain.Issues) {
	err := v.validate.Struct(t)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		issues.Add(prefix + err.Error())
		return
	}
	for _, fe := range fieldErrs {
		issues.Add(fmt.Sprintf("%s%s: %s", prefix, jsonName(fe.StructField()), fe.Tag()))
	}
	for _, field := range []struct{ name, value string }{
		{"name", t.Name}, {"method", t.Method}, {"specification", t.Specification}, {"procedure", t.Procedure},
	} {
		if field.value != "" && strings.TrimSpace(field.value) == "" {
			issues.Add(fmt.Sprintf("%s%s: blank", prefix, field.name))
		}
	}
}

// Document validates every test of doc and the document shape as a whole.
func (v *Validator) Document(doc *domain.Document) error {
	issues := &domain.Issues{Kind: domain.ErrSchemaInvalid, Path: "document"}
	if doc == nil {
		issues.Add("document is missing")
		return issues
	}
	for i, t := range doc.Tests {
		v.testIssues(t, fmt.Sprintf("tests[%d].", i), issues)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		issues.Add(err.Error())
		return issues
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		issues.Add(err.Error())
		return issues
	}
	if err := v.document.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		addSchemaErrors(err, issues)
	}
	return issues.OrNil()
}

func addSchemaErrors(err error, issues *domain.Issues) {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			addSchemaErrors(e, issues)
		}
		return
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		pointer := strings.Join(schemaErr.JSONPointer(), ".")
		if pointer == "" {
			issues.Add(schemaErr.Reason)
			return
		}
		issues.Add(pointer + ": " + schemaErr.Reason)
		return
	}
	issues.Add(err.Error())
}

// FillPlaceholders sets Placeholder on every empty mandatory field of t
// and returns the names of the fields it filled.
func FillPlaceholders(t *domain.Test) []string {
	filled := make([]string, 0)
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"name", &t.Name},
		{"method", &t.Method},
		{"specification", &t.Specification},
		{"procedure", &t.Procedure},
	} {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = Placeholder
			filled = append(filled, field.name)
		}
	}
	return filled
}

func jsonName(structField string) string {
	switch structField {
	case "ID":
		return "id"
	case "Name":
		return "name"
	case "Method":
		return "method"
	case "Specification":
		return "specification"
	case "Procedure":
		return "procedure"
	default:
		return strings.ToLower(structField)
	}
}
