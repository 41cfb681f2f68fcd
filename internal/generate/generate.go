// Package generate defines the content-generation collaborator used to
// produce edited and added test records, plus caller-side wrappers for
// retry and throughput.
package generate

import (
	"context"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

// Evidence source names.
const (
	SourceLegacy    = "legacy"
	SourceProposed  = "proposed"
	SourceReference = "reference"
)

// Evidence is one record the generator may draw on.
type Evidence struct {
	Source string
	Record domain.Record
}

type Request struct {
	Description string
	ActionKind  domain.ActionKind
	IDHint      string
	// Target is the destination record being edited; nil for adds.
	Target   *domain.Test
	Evidence []Evidence
}

type Response struct {
	Record domain.Test
	Notes  string
}

// Generator must return a complete record or an error. Implementations do
// not retry; wrap them with WithPolicy for that.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
