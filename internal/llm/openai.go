package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openaiProvider talks to the OpenAI chat completions API, or to any
// compatible endpoint when a BaseURL is configured. Compatible servers vary in
// their support for response_format, so JSON mode is only requested from the
// official endpoint; the prompts ask for bare JSON either way.
type openaiProvider struct {
	client   openai.Client
	model    string
	jsonMode bool
}

func newOpenAIProvider(cfg Config) (Provider, error) {
	key, err := apiKey(cfg, "OPENAI_API_KEY")
	if err != nil && cfg.BaseURL == "" {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &openaiProvider{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		jsonMode: cfg.BaseURL == "",
	}, nil
}

func (p *openaiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	if p.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: %s: %w", p.model, err)
	}
	for _, choice := range resp.Choices {
		if choice.Message.Refusal != "" {
			return "", fmt.Errorf("openai: %s refused: %s", p.model, choice.Message.Refusal)
		}
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}
	return "", errors.New("openai: response carried no message content")
}
