// Package openaigen generates test records with an OpenAI-compatible chat
// completions endpoint.
package openaigen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/generate"
	"github.com/animus-labs/animus-migrate/internal/platform/env"
	"github.com/sashabaranov/go-openai"
)

const defaultSystemPrompt = `You rewrite quality-control test records. Reply with a single JSON object
{"resulting_record": {"id", "name", "category", "method", "specification", "procedure", "notes"}, "notes": "..."}.
Fill every one of name, method, specification and procedure.`

type Config struct {
	// APIKey is empty when generation through a model is disabled.
	APIKey       string
	Model        string
	BaseURL      string
	Temperature  float64
	Timeout      time.Duration
	SystemPrompt string
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("MIGRATOR_OPENAI_TIMEOUT", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	temperature, err := env.Float("MIGRATOR_OPENAI_TEMPERATURE", 0)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		APIKey:       strings.TrimSpace(env.String("MIGRATOR_OPENAI_API_KEY", "")),
		Model:        strings.TrimSpace(env.String("MIGRATOR_OPENAI_MODEL", openai.GPT4oMini)),
		BaseURL:      strings.TrimSpace(env.String("MIGRATOR_OPENAI_BASE_URL", "")),
		Temperature:  temperature,
		Timeout:      timeout,
		SystemPrompt: env.String("MIGRATOR_OPENAI_SYSTEM_PROMPT", defaultSystemPrompt),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return c.APIKey != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Model == "" {
		return errors.New("MIGRATOR_OPENAI_MODEL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("MIGRATOR_OPENAI_TIMEOUT must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("MIGRATOR_OPENAI_TEMPERATURE must be within [0, 2]")
	}
	return nil
}

type Generator struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("MIGRATOR_OPENAI_API_KEY is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Generator{client: openai.NewClientWithConfig(clientCfg), cfg: cfg, logger: logger}, nil
}

func (g *Generator) Generate(ctx context.Context, req generate.Request) (generate.Response, error) {
	prompt, err := encodePrompt(req)
	if err != nil {
		return generate.Response{}, fmt.Errorf("%w: %v", domain.ErrGenerationFailure, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	g.logger.Debug("generating record", "model", g.cfg.Model, "action_kind", req.ActionKind)
	resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    float32(g.cfg.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		g.logger.Error("chat completion failed", "error", err)
		return generate.Response{}, fmt.Errorf("%w: chat completion: %w", domain.ErrGenerationFailure, err)
	}
	if len(resp.Choices) == 0 {
		return generate.Response{}, fmt.Errorf("%w: no choices returned", domain.ErrGenerationFailure)
	}
	g.logger.Debug("chat completion received", "finish_reason", resp.Choices[0].FinishReason)
	return generate.Decode([]byte(resp.Choices[0].Message.Content))
}

type promptPayload struct {
	Description     string          `json:"description"`
	ActionKind      string          `json:"action_kind"`
	IDHint          string          `json:"id_hint,omitempty"`
	TargetRecord    *domain.Test    `json:"target_record"`
	EvidenceRecords []evidenceEntry `json:"evidence_records"`
}

type evidenceEntry struct {
	Source   string          `json:"source"`
	Name     string          `json:"name"`
	SourceID string          `json:"source_id,omitempty"`
	Fields   domain.Metadata `json:"fields,omitempty"`
}

func encodePrompt(req generate.Request) (string, error) {
	payload := promptPayload{
		Description:     req.Description,
		ActionKind:      string(req.ActionKind),
		IDHint:          req.IDHint,
		TargetRecord:    req.Target,
		EvidenceRecords: make([]evidenceEntry, 0, len(req.Evidence)),
	}
	for _, e := range req.Evidence {
		entry := evidenceEntry{Source: e.Source, Name: e.Record.Name, Fields: e.Record.Fields}
		// Wrapper ids are shared by siblings; the model must not copy them.
		if e.Record.OwnID {
			entry.SourceID = e.Record.SourceID
		}
		payload.EvidenceRecords = append(payload.EvidenceRecords, entry)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	return string(raw), nil
}
