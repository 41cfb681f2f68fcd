package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

// NDJSON writes entries as newline-delimited JSON. Appends are serialized,
// so entries appear in completion order.
type NDJSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewNDJSON(w io.Writer) (*NDJSON, error) {
	if w == nil {
		return nil, errNilWriter
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &NDJSON{enc: enc}, nil
}

func (n *NDJSON) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	line := lineFromEntry(entry)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enc.Encode(line); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Read decodes every entry of an NDJSON audit log.
func Read(r io.Reader) ([]Entry, error) {
	out := make([]Entry, 0)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line entryLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("audit line %d: %w", lineNo, err)
		}
		entry, err := line.toEntry()
		if err != nil {
			return nil, fmt.Errorf("audit line %d: %w", lineNo, err)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return out, nil
}

type entryLine struct {
	Timestamp   string `json:"timestamp"`
	ActionIndex int    `json:"action_index"`
	ActionKind  string `json:"action_kind"`
	TargetID    string `json:"target_id"`
}

func lineFromEntry(e Entry) entryLine {
	return entryLine{
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActionIndex: e.ActionIndex,
		ActionKind:  string(e.ActionKind),
		TargetID:    e.TargetID,
	}
}

func (l entryLine) toEntry() (Entry, error) {
	ts, err := time.Parse(time.RFC3339Nano, l.Timestamp)
	if err != nil {
		return Entry{}, fmt.Errorf("timestamp: %w", err)
	}
	entry := Entry{
		Timestamp:   ts.UTC(),
		ActionIndex: l.ActionIndex,
		ActionKind:  domain.ActionKind(l.ActionKind),
		TargetID:    l.TargetID,
	}
	return entry, entry.Validate()
}
