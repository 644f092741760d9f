// Package embed maps text to fixed-dimension vectors via a remote embedding
// service.
package embed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("embed: empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("embed: invalid configuration")
)

// Role tells the embedding service how a text will be used. Asymmetric
// models embed queries and passages differently.
type Role string

const (
	RoleQuery   Role = "query"
	RolePassage Role = "passage"
)

// Embedder maps texts to vectors. Output order matches input order and every
// vector has exactly Dimension() components.
type Embedder interface {
	Embed(ctx context.Context, texts []string, role Role) ([][]float32, error)
	Dimension() int
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string // "openai" or "google"
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	return nil
}

// New creates an Embedder for cfg.Provider.
func New(cfg Config) (Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return newOpenAIEmbedder(cfg)
	case "google":
		return newGoogleEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Fit truncates or zero-pads v to exactly dims components.
func Fit(v []float32, dims int) []float32 {
	if len(v) == dims {
		return v
	}
	out := make([]float32, dims)
	copy(out, v)
	return out
}

func fitAll(vecs [][]float32, want, dims int) ([][]float32, error) {
	if len(vecs) != want {
		return nil, fmt.Errorf("embed: expected %d embeddings, got %d", want, len(vecs))
	}
	for i := range vecs {
		vecs[i] = Fit(vecs[i], dims)
	}
	return vecs, nil
}

func keyOrEnv(key, envVar string) string {
	if key != "" {
		return key
	}
	return os.Getenv(envVar)
}
