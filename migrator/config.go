package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-migrate/internal/dispatch"
	"github.com/animus-labs/animus-migrate/internal/platform/env"
)

const (
	storeMemory = "memory"
	storeBadger = "badger"
	storeMinIO  = "minio"
)

type config struct {
	Addr            string
	ShutdownTimeout time.Duration
	StoreBackend    string
	ProfileFile     string
	AuditLogPath    string
	Concurrency     int
	RequestMaxBytes int64

	GenerationRate       float64
	GenerationBurst      int
	GenerationAttempts   int
	GenerationBackoff    time.Duration
	GenerationMaxBackoff time.Duration
}

func configFromEnv() (config, error) {
	shutdownTimeout, err := env.Duration("MIGRATOR_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return config{}, err
	}
	concurrency, err := env.Int("MIGRATOR_APPLY_CONCURRENCY", dispatch.DefaultLimit)
	if err != nil {
		return config{}, err
	}
	requestMaxBytes, err := env.Int("MIGRATOR_REQUEST_MAX_BYTES", 32<<20)
	if err != nil {
		return config{}, err
	}
	rate, err := env.Float("MIGRATOR_GENERATION_RATE", 2)
	if err != nil {
		return config{}, err
	}
	burst, err := env.Int("MIGRATOR_GENERATION_BURST", dispatch.DefaultLimit)
	if err != nil {
		return config{}, err
	}
	attempts, err := env.Int("MIGRATOR_GENERATION_RETRY_ATTEMPTS", 3)
	if err != nil {
		return config{}, err
	}
	backoff, err := env.Duration("MIGRATOR_GENERATION_RETRY_BACKOFF", time.Second)
	if err != nil {
		return config{}, err
	}
	maxBackoff, err := env.Duration("MIGRATOR_GENERATION_RETRY_MAX_BACKOFF", 30*time.Second)
	if err != nil {
		return config{}, err
	}

	cfg := config{
		Addr:                 env.String("MIGRATOR_HTTP_ADDR", ":8090"),
		ShutdownTimeout:      shutdownTimeout,
		StoreBackend:         strings.ToLower(strings.TrimSpace(env.String("MIGRATOR_STORE_BACKEND", storeBadger))),
		ProfileFile:          strings.TrimSpace(env.String("MIGRATOR_PROFILE_FILE", "")),
		AuditLogPath:         strings.TrimSpace(env.String("MIGRATOR_AUDIT_LOG_PATH", "audit.ndjson")),
		Concurrency:          concurrency,
		RequestMaxBytes:      int64(requestMaxBytes),
		GenerationRate:       rate,
		GenerationBurst:      burst,
		GenerationAttempts:   attempts,
		GenerationBackoff:    backoff,
		GenerationMaxBackoff: maxBackoff,
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	switch c.StoreBackend {
	case storeMemory, storeBadger, storeMinIO:
	default:
		return fmt.Errorf("MIGRATOR_STORE_BACKEND must be one of memory, badger, minio; got %q", c.StoreBackend)
	}
	if c.AuditLogPath == "" {
		return fmt.Errorf("MIGRATOR_AUDIT_LOG_PATH is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("MIGRATOR_APPLY_CONCURRENCY must be >= 1")
	}
	if c.GenerationAttempts < 1 {
		return fmt.Errorf("MIGRATOR_GENERATION_RETRY_ATTEMPTS must be >= 1")
	}
	if c.GenerationBackoff <= 0 || c.GenerationMaxBackoff < c.GenerationBackoff {
		return fmt.Errorf("MIGRATOR_GENERATION_RETRY_BACKOFF must be positive and <= MIGRATOR_GENERATION_RETRY_MAX_BACKOFF")
	}
	return nil
}
