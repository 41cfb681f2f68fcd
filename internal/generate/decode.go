package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

// DecodeError is the single error type Decode returns.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode generated content: %s: %v", e.Reason, e.Err)
	}
	return "decode generated content: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{domain.ErrGenerationFailure, e.Err}
	}
	return []error{domain.ErrGenerationFailure}
}

type responsePayload struct {
	ResultingRecord *domain.Test `json:"resulting_record"`
	Notes           string       `json:"notes"`
}

// Decode parses a generator reply of the form {resulting_record, notes?}.
// Replies wrapped in a markdown code fence are accepted.
func Decode(raw []byte) (Response, error) {
	body := bytes.TrimSpace(stripFence(raw))
	if len(body) == 0 {
		return Response{}, &DecodeError{Reason: "empty reply"}
	}
	var payload responsePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Response{}, &DecodeError{Reason: "invalid json", Err: err}
	}
	if payload.ResultingRecord == nil {
		return Response{}, &DecodeError{Reason: "resulting_record is missing"}
	}
	return Response{Record: *payload.ResultingRecord, Notes: strings.TrimSpace(payload.Notes)}, nil
}

func stripFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(s)
}
