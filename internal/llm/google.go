package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	googleoption "google.golang.org/api/option"
)

// googleProvider calls Gemini. A client is opened per call so the caller's
// context bounds the connection.
type googleProvider struct {
	apiKey  string
	model   string
	timeout time.Duration
}

func newGoogleProvider(cfg Config) (Provider, error) {
	key, err := apiKey(cfg, "GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}
	return &googleProvider{apiKey: key, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (p *googleProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("google: client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(p.model)
	m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	m.SetMaxOutputTokens(int32(maxTokens))
	m.SetTemperature(float32(temperature))
	m.SetCandidateCount(1)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("google: %s: %w", p.model, err)
	}
	return candidateText(resp)
}

// candidateText returns the text of the first candidate that has any. Parts of
// different candidates are never joined: each is a separate JSON document.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("google: prompt blocked: %s", fb.BlockReason)
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
	return "", errors.New("google: response carried no text")
}
