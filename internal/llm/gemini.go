package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// APIKeysFromEnv returns the configured Gemini keys in rotation order.
// Empty slots are dropped.
func APIKeysFromEnv() []string {
	var keys []string
	for _, name := range []string{"GEMINI_API_KEY", "GEMINI_API_KEY_2", "GEMINI_API_KEY_3"} {
		if v := os.Getenv(name); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

// GeminiClient calls the Gemini API with up to three keys, rotating to
// the next key on quota or auth failures. The starting key advances
// round-robin across calls so load spreads when every key is healthy.
type GeminiClient struct {
	clients []*genai.Client
	model   string
	next    atomic.Uint32
	logger  zerolog.Logger
}

// NewGeminiClient builds one genai client per key. At least one key is
// required.
func NewGeminiClient(ctx context.Context, keys []string, model string, logger zerolog.Logger) (*GeminiClient, error) {
	if len(keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	clients := make([]*genai.Client, 0, len(keys))
	for i, key := range keys {
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("gemini client for key #%d: %w", i+1, err)
		}
		clients = append(clients, client)
	}
	return &GeminiClient{
		clients: clients,
		model:   model,
		logger:  logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// Generate tries each key once, starting at the round-robin cursor.
// Errors that are not quota or auth failures abort the rotation.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	start := c.next.Add(1) - 1

	var lastErr error
	for i := 0; i < len(c.clients); i++ {
		idx := int(start+uint32(i)) % len(c.clients)
		text, err := c.generateWith(ctx, c.clients[idx], model, req.Prompt)
		if err == nil {
			c.logger.Debug().Int("key", idx+1).Str("task", req.Task).Msg("Gemini call succeeded")
			return &Response{Text: text, Provider: "gemini", Model: model}, nil
		}
		lastErr = err
		if !rotatableError(err) {
			return nil, err
		}
		c.logger.Warn().Int("key", idx+1).Err(err).Msg("Gemini key failed, rotating")
	}
	return nil, fmt.Errorf("all %d Gemini keys failed: %w", len(c.clients), lastErr)
}

func (c *GeminiClient) generateWith(ctx context.Context, client *genai.Client, model, prompt string) (string, error) {
	resp, err := client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty Gemini response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("Gemini response carried no text parts")
	}
	return sb.String(), nil
}

// Close releases every underlying client.
func (c *GeminiClient) Close() error {
	var errs []error
	for _, client := range c.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rotatableError reports whether the next key is worth trying: quota
// exhaustion and key auth failures are per-key conditions.
func rotatableError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403, 429:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"quota", "rate limit", "resource exhausted", "api key"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
