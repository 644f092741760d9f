// Package llm handles reasoner provider communication, role prompt
// construction, and parsing of reasoner output into a validated plan.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Provider is the interface for reasoner backends. Each call is single-turn:
// the provider keeps no memory between calls.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// Config selects and configures a reasoner provider.
type Config struct {
	Provider string // "anthropic", "openai" or "google"
	Model    string
	APIKey   string // falls back to the provider's conventional env var
	BaseURL  string // optional; any OpenAI-compatible endpoint for "openai"
	Timeout  time.Duration
}

// NewProvider is the factory for creating reasoner providers. It is a
// package-level variable so tests can replace it with a mock without
// modifying the call site. Tests must restore the original value; use
// t.Cleanup to do so safely.
var NewProvider func(cfg Config) (Provider, error) = defaultNewProvider

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic", "":
		return newAnthropicProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg)
	case "google":
		return newGoogleProvider(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// apiKey returns the configured key or the value of envVar.
func apiKey(cfg Config, envVar string) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	if k := os.Getenv(envVar); k != "" {
		return k, nil
	}
	return "", fmt.Errorf("llm: %s environment variable not set", envVar)
}

// ── Anthropic provider ───────────────────────────────────────────────────────

// anthropicProvider implements Provider using the Anthropic SDK.
// anthropic.Client is a value type; the SDK's NewClient returns it by value.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(cfg Config) (Provider, error) {
	key, err := apiKey(cfg, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...), model: cfg.Model}, nil
}

func (p *anthropicProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		// "text" is the only content type that carries assistant text output.
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: response contained no text content blocks")
	}
	return strings.Join(parts, ""), nil
}
