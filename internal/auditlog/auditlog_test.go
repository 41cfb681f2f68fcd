package auditlog

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/animus-labs/animus-migrate/internal/domain"
)

func entry(i int) Entry {
	return Entry{
		Timestamp:   time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC),
		ActionIndex: i,
		ActionKind:  domain.ActionEdit,
		TargetID:    fmt.Sprintf("T-%d", i),
	}
}

func TestNDJSONAppendAndRead(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewNDJSON(&buf)
	if err != nil {
		t.Fatalf("NewNDJSON() err=%v", err)
	}
	for i := 0; i < 3; i++ {
		if err := log.Append(context.Background(), entry(i)); err != nil {
			t.Fatalf("Append() err=%v", err)
		}
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("lines=%d, want 3", lines)
	}
	if !strings.Contains(buf.String(), `"action_kind":"edit"`) {
		t.Fatalf("log=%s", buf.String())
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	want := entry(2)
	if len(got) != 3 || !got[2].Timestamp.Equal(want.Timestamp) || got[2].TargetID != want.TargetID || got[2].ActionIndex != 2 {
		t.Fatalf("entries=%+v", got)
	}
}

func TestNDJSONConcurrentAppendsStayWhole(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewNDJSON(&buf)
	if err != nil {
		t.Fatalf("NewNDJSON() err=%v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := log.Append(context.Background(), entry(i)); err != nil {
				t.Errorf("Append() err=%v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if len(got) != 50 {
		t.Fatalf("entries=%d, want 50", len(got))
	}
}

func TestAppendRejectsInvalidEntry(t *testing.T) {
	log, err := NewNDJSON(&bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewNDJSON() err=%v", err)
	}
	if err := log.Append(context.Background(), Entry{ActionKind: domain.ActionKeep}); err == nil {
		t.Fatalf("Append() err=nil, want missing timestamp")
	}
}

type stubExec struct {
	queries []string
	args    [][]any
	err     error
}

func (s *stubExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return nil, s.err
}

func TestPostgresAppend(t *testing.T) {
	db := &stubExec{}
	p, err := NewPostgres(db)
	if err != nil {
		t.Fatalf("NewPostgres() err=%v", err)
	}
	e := entry(4)
	if err := p.Append(context.Background(), e); err != nil {
		t.Fatalf("Append() err=%v", err)
	}
	if len(db.args) != 1 || len(db.args[0]) != 5 {
		t.Fatalf("args=%v", db.args)
	}
	want, err := ComputeIntegritySHA256(e)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if got := db.args[0][4]; got != want {
		t.Fatalf("integrity=%v, want %s", got, want)
	}
	if target := db.args[0][3].(sql.NullString); !target.Valid || target.String != "T-4" {
		t.Fatalf("target_id=%+v", target)
	}
}

func TestPostgresAppendWrapsError(t *testing.T) {
	boom := errors.New("boom")
	p, err := NewPostgres(&stubExec{err: boom})
	if err != nil {
		t.Fatalf("NewPostgres() err=%v", err)
	}
	if err := p.Append(context.Background(), entry(1)); !errors.Is(err, boom) {
		t.Fatalf("Append() err=%v, want boom", err)
	}
}

func TestIntegrityChangesWithContent(t *testing.T) {
	a, _ := ComputeIntegritySHA256(entry(1))
	b, _ := ComputeIntegritySHA256(entry(2))
	if a == "" || a == b {
		t.Fatalf("integrity a=%q b=%q", a, b)
	}
}

type recordingLog struct{ got []Entry }

func (r *recordingLog) Append(_ context.Context, e Entry) error {
	r.got = append(r.got, e)
	return nil
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingLog{}, &recordingLog{}
	if err := (Multi{a, nil, b}).Append(context.Background(), entry(0)); err != nil {
		t.Fatalf("Append() err=%v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("a=%d b=%d", len(a.got), len(b.got))
	}
}
