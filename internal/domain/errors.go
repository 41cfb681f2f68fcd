package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrContextInvalid marks malformed or missing mandatory planning input.
	ErrContextInvalid = errors.New("context invalid")
	// ErrTargetNotFound marks an edit/delete whose target is absent.
	ErrTargetNotFound = errors.New("target not found")
	// ErrGenerationFailure marks a content generation error.
	ErrGenerationFailure = errors.New("generation failure")
	// ErrSchemaInvalid marks a record or document failing schema validation.
	ErrSchemaInvalid = errors.New("schema invalid")
	// ErrPlanIndexOutOfRange marks an action index outside the plan.
	ErrPlanIndexOutOfRange = errors.New("plan index out of range")
)

// Error identifies the offending path and field of a failure.
type Error struct {
	Kind    error
	Path    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if loc := e.location(); loc != "" {
		b.WriteString(": ")
		b.WriteString(loc)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) location() string {
	switch {
	case e.Path != "" && e.Field != "":
		return e.Path + "." + e.Field
	case e.Path != "":
		return e.Path
	default:
		return e.Field
	}
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, path, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and location to err.
func Wrap(kind error, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// KindOf returns the error kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrContextInvalid, ErrTargetNotFound, ErrGenerationFailure, ErrSchemaInvalid, ErrPlanIndexOutOfRange} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Issues aggregates validation issues into a single error.
type Issues struct {
	Kind  error
	Path  string
	Items []string
}

func (e *Issues) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Items = append(e.Items, issue)
}

func (e *Issues) Error() string {
	prefix := "validation failed"
	if e.Kind != nil {
		prefix = e.Kind.Error()
	}
	if e.Path != "" {
		prefix += ": " + e.Path
	}
	if len(e.Items) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(e.Items, "; ")
}

func (e *Issues) Unwrap() error { return e.Kind }

func (e *Issues) OrNil() error {
	if e == nil || len(e.Items) == 0 {
		return nil
	}
	return e
}
