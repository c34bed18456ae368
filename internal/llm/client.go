// Package llm provides the language-model gateway for drafting tasks:
// symptom interpretation and weekly summaries. The gateway composes a
// provider client (Gemini or deterministic simulation) with a prompt
// token budget, an in-memory response cache, a token-bucket rate
// limiter, and strict-JSON output validation for registered tasks.
//
// All output is observational. Templates forbid diagnostic language and
// the gateway post-checks responses for banned framing.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKeys is returned when the Gemini provider is requested but
	// no GEMINI_API_KEY values are present in the environment.
	ErrNoAPIKeys = errors.New("llm: no API keys configured")

	// ErrPromptTooLarge is returned before any network call when the
	// rendered prompt exceeds the configured token budget.
	ErrPromptTooLarge = errors.New("llm: prompt exceeds token budget")

	// ErrBadModelOutput is returned when a strict-JSON task response fails
	// schema validation after the retry.
	ErrBadModelOutput = errors.New("llm: model output failed validation")

	// ErrUnknownTask is returned for task names outside the registry.
	ErrUnknownTask = errors.New("llm: unknown task")
)

// Request carries a single generation call to a provider client. Prompt
// is the fully rendered template; Task and Identity exist for canned
// simulation responses and logging.
type Request struct {
	Task     string
	Identity string
	Prompt   string
	Model    string
}

// Response is the provider answer plus gateway provenance flags.
type Response struct {
	Text      string `json:"text"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Cached    bool   `json:"cached"`
	Simulated bool   `json:"simulated"`
}

// Client generates text for a rendered prompt. Implementations must be
// safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// SimulationClient returns canned deterministic responses without any
// network access. It backs dev mode and the package tests, and is the
// fallback when no API keys are configured.
type SimulationClient struct {
	model string
}

// NewSimulationClient creates a simulation client labelled with the
// given model name.
func NewSimulationClient(model string) *SimulationClient {
	return &SimulationClient{model: model}
}

// Generate returns the canned response for the request's task.
func (c *SimulationClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, ok := taskRegistry[req.Task]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, req.Task)
	}
	return &Response{
		Text:      spec.simulated,
		Provider:  "simulation",
		Model:     c.model,
		Simulated: true,
	}, nil
}

// Close is a no-op for the simulation client.
func (c *SimulationClient) Close() error { return nil }
