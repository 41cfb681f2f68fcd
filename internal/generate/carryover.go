package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

// Carryover builds the resulting record from the evidence itself, without
// calling out. The proposed record wins over the current target, which
// wins over the legacy source. It is used when no model is configured.
type Carryover struct{}

func (Carryover) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	var out domain.Test
	switch {
	case hasSource(req.Evidence, SourceProposed):
		rec, err := testFromRecord(pick(req.Evidence, SourceProposed))
		if err != nil {
			return Response{}, err
		}
		out = rec
	case req.Target != nil:
		out = req.Target.Clone()
	case hasSource(req.Evidence, SourceLegacy):
		rec, err := testFromRecord(pick(req.Evidence, SourceLegacy))
		if err != nil {
			return Response{}, err
		}
		out = rec
	default:
		return Response{}, fmt.Errorf("%w: no evidence for %q", domain.ErrGenerationFailure, req.Description)
	}
	if req.Target != nil {
		out.ID = req.Target.ID
	}
	if strings.TrimSpace(out.ID) == "" {
		out.ID = req.IDHint
	}
	return Response{Record: out, Notes: req.Description}, nil
}

func hasSource(evidence []Evidence, source string) bool {
	for _, e := range evidence {
		if e.Source == source {
			return true
		}
	}
	return false
}

func pick(evidence []Evidence, source string) domain.Record {
	for _, e := range evidence {
		if e.Source == source {
			return e.Record
		}
	}
	return domain.Record{}
}

func testFromRecord(r domain.Record) (domain.Test, error) {
	var out domain.Test
	if len(r.Fields) > 0 {
		raw, err := json.Marshal(r.Fields)
		if err != nil {
			return domain.Test{}, fmt.Errorf("%w: encode evidence: %v", domain.ErrGenerationFailure, err)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return domain.Test{}, fmt.Errorf("%w: evidence is not a test record: %v", domain.ErrGenerationFailure, err)
		}
	}
	out.Name = r.Name
	return out, nil
}
