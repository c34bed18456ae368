package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tiktoken-go/tokenizer"

	"github.com/sentiq/healthiq/internal/config"
)

// DefaultTokenBudget caps rendered prompt size when the configuration
// leaves the budget unset.
const DefaultTokenBudget = 6000

// Gateway is the single entry point for LLM tasks. It renders the task
// template, enforces the token budget, serves repeats from cache, rate
// limits outbound calls, and validates strict-JSON responses with one
// retry before giving up.
type Gateway struct {
	client      Client
	cache       *responseCache
	bucket      *TokenBucket
	codec       tokenizer.Codec
	model       string
	tokenBudget int
	logger      zerolog.Logger
}

// New builds a gateway from configuration. Provider "simulation" never
// touches the network; provider "gemini" reads keys from the
// environment and falls back to simulation when none are set.
func New(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (*Gateway, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load cl100k tokenizer: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultLLMModel
	}

	log := logger.With().Str("component", "llm").Logger()

	var client Client
	switch strings.ToLower(cfg.Provider) {
	case "simulation":
		client = NewSimulationClient(model)
	case "", "gemini":
		keys := APIKeysFromEnv()
		if len(keys) == 0 {
			log.Warn().Msg("No Gemini API keys configured, running in simulation mode")
			client = NewSimulationClient(model)
			break
		}
		client, err = NewGeminiClient(ctx, keys, model, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}

	budget := cfg.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	return &Gateway{
		client:      client,
		cache:       newResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second),
		bucket:      NewTokenBucket(cfg.RequestsPerMinute),
		codec:       codec,
		model:       model,
		tokenBudget: budget,
		logger:      log,
	}, nil
}

// NewWithClient builds a gateway around an explicit client, bypassing
// provider selection. Budget, cache, and rate settings still come from
// the configuration.
func NewWithClient(client Client, cfg config.LLMConfig, logger zerolog.Logger) (*Gateway, error) {
	gw, err := New(context.Background(), config.LLMConfig{
		Provider:          "simulation",
		Model:             cfg.Model,
		RequestsPerMinute: cfg.RequestsPerMinute,
		CacheTTLSeconds:   cfg.CacheTTLSeconds,
		TokenBudget:       cfg.TokenBudget,
	}, logger)
	if err != nil {
		return nil, err
	}
	gw.client = client
	return gw, nil
}

// Invoke runs a registered task over the caller's input text and
// returns the validated response. Cached responses skip the rate
// limiter and the provider entirely.
func (g *Gateway) Invoke(ctx context.Context, task, identity, input string) (*Response, error) {
	prompt, err := BuildPrompt(task, input)
	if err != nil {
		return nil, err
	}

	ids, _, err := g.codec.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("count prompt tokens: %w", err)
	}
	if len(ids) > g.tokenBudget {
		return nil, fmt.Errorf("%w: %d tokens over budget %d", ErrPromptTooLarge, len(ids), g.tokenBudget)
	}

	key := cacheKey(task, g.model, identity, prompt)
	if text, ok := g.cache.get(key); ok {
		g.logger.Debug().Str("task", task).Msg("LLM cache hit")
		return &Response{Text: text, Provider: "cache", Model: g.model, Cached: true}, nil
	}

	if err := g.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.generateValidated(ctx, task, identity, prompt)
	if err != nil {
		return nil, err
	}

	resp.Text = sanitizeFraming(resp.Text)
	g.cache.put(key, resp.Text)
	return resp, nil
}

// generateValidated calls the provider and checks strict-JSON tasks
// against their schema, retrying once with a JSON-only reminder.
func (g *Gateway) generateValidated(ctx context.Context, task, identity, prompt string) (*Response, error) {
	spec := taskRegistry[task]

	resp, err := g.client.Generate(ctx, &Request{Task: task, Identity: identity, Prompt: prompt, Model: g.model})
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task, err)
	}
	if !spec.strictJSON {
		return resp, nil
	}
	if err := spec.validate(resp.Text); err == nil {
		resp.Text = stripFences(resp.Text)
		return resp, nil
	}

	g.logger.Warn().Str("task", task).Msg("Model output failed validation, retrying with JSON reminder")
	if err := g.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err = g.client.Generate(ctx, &Request{Task: task, Identity: identity, Prompt: prompt + jsonRetryReminder, Model: g.model})
	if err != nil {
		return nil, fmt.Errorf("task %s retry: %w", task, err)
	}
	if err := spec.validate(resp.Text); err != nil {
		return nil, err
	}
	resp.Text = stripFences(resp.Text)
	return resp, nil
}

// Close releases the underlying provider client.
func (g *Gateway) Close() error {
	return g.client.Close()
}
