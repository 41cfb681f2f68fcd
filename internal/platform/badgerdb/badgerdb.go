// Package badgerdb opens the embedded Badger database used as the local
// store backend.
package badgerdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/platform/env"
	"github.com/dgraph-io/badger/v4"
)

type Config struct {
	// Path is ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

func ConfigFromEnv() (Config, error) {
	inMemory, err := env.Bool("MIGRATOR_BADGER_IN_MEMORY", false)
	if err != nil {
		return Config{}, err
	}
	syncWrites, err := env.Bool("MIGRATOR_BADGER_SYNC_WRITES", true)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Path:       strings.TrimSpace(env.String("MIGRATOR_BADGER_PATH", "./data/migrator")),
		InMemory:   inMemory,
		SyncWrites: syncWrites,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.InMemory && strings.TrimSpace(c.Path) == "" {
		return errors.New("MIGRATOR_BADGER_PATH is required unless in-memory")
	}
	return nil
}

// Open opens the database; the caller must Close it.
func Open(cfg Config) (*badger.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&logger{l: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// logger adapts slog to badger.Logger.
type logger struct {
	l *slog.Logger
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *logger) Warningf(format string, args ...interface{}) {
	l.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
