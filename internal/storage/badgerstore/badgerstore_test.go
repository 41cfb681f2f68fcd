package badgerstore

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/animus-labs/animus-migrate/internal/platform/badgerdb"
	"github.com/animus-labs/animus-migrate/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := badgerdb.Open(badgerdb.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s, err := New(db)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, err := s.Get(ctx, storage.KeyDestination); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() err=%v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, storage.KeyDestination, []byte(`{"tests":[]}`)); err != nil {
		t.Fatalf("Put() err=%v", err)
	}
	got, err := s.Get(ctx, storage.KeyDestination)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if string(got) != `{"tests":[]}` {
		t.Fatalf("Get()=%s", got)
	}
}

func TestStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, idx := range []int{3, 1, 2} {
		if err := s.Put(ctx, storage.PatchKey(idx), []byte("{}")); err != nil {
			t.Fatalf("Put() err=%v", err)
		}
	}
	if err := s.Put(ctx, storage.KeyPlan, []byte("{}")); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	keys, err := s.ListByPrefix(ctx, storage.PrefixPatches)
	if err != nil {
		t.Fatalf("ListByPrefix() err=%v", err)
	}
	want := []string{storage.PatchKey(1), storage.PatchKey(2), storage.PatchKey(3)}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys=%v, want %v", keys, want)
	}

	if err := s.Delete(ctx, storage.PatchKey(2)); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	keys, _ = s.ListByPrefix(ctx, storage.PrefixPatches)
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys after delete, got %v", keys)
	}
}
