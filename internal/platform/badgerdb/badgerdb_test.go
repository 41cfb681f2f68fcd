package badgerdb

import "testing"

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("Validate() expected error without path")
	}
	if err := (Config{InMemory: true}).Validate(); err != nil {
		t.Fatalf("Validate() in-memory err=%v", err)
	}
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
}

func TestOpenOnDisk(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
}
