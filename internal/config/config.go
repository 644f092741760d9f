// Package config loads service configuration from an optional YAML file and
// INCIDENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/incidentreasoner/internal/embed"
	"github.com/dshills/incidentreasoner/internal/kb"
	"github.com/dshills/incidentreasoner/internal/llm"
	"github.com/dshills/incidentreasoner/internal/logging"
	"github.com/dshills/incidentreasoner/internal/pipeline"
	"github.com/dshills/incidentreasoner/internal/profile"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INCIDENT_"

// Config is the complete service configuration.
type Config struct {
	Profile  string         `koanf:"profile"`
	Log      LogConfig      `koanf:"log"`
	Server   ServerConfig   `koanf:"server"`
	Reasoner ReasonerConfig `koanf:"reasoner"`
	Embedder EmbedderConfig `koanf:"embedder"`
	KB       KBConfig       `koanf:"kb"`
	Web      WebConfig      `koanf:"web"`
	Pipeline PipelineConfig `koanf:"pipeline"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       float64       `koanf:"rate_limit"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type ReasonerConfig struct {
	Provider string        `koanf:"provider"`
	Model    string        `koanf:"model"`
	APIKey   string        `koanf:"api_key"`
	BaseURL  string        `koanf:"base_url"`
	Timeout  time.Duration `koanf:"timeout"`
}

type EmbedderConfig struct {
	Provider   string        `koanf:"provider"`
	Model      string        `koanf:"model"`
	APIKey     string        `koanf:"api_key"`
	BaseURL    string        `koanf:"base_url"`
	Dimensions int           `koanf:"dimensions"`
	Timeout    time.Duration `koanf:"timeout"`
}

type KBConfig struct {
	Dir          string `koanf:"dir"`
	IndexPath    string `koanf:"index_path"` // empty keeps the index in memory
	Compress     bool   `koanf:"compress"`
	Collection   string `koanf:"collection"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
}

type WebConfig struct {
	Enabled    *bool  `koanf:"enabled"`
	Dir        string `koanf:"dir"`
	TopK       int    `koanf:"top_k"`
	QueryChars int    `koanf:"query_chars"`
}

type PipelineConfig struct {
	MaxLogChars     int     `koanf:"max_log_chars"`
	MaxContextChars int     `koanf:"max_context_chars"`
	TopK            int     `koanf:"top_k"`
	Temperature     float64 `koanf:"temperature"`
	MaxTokens       int     `koanf:"max_tokens"`
	Escalation      *bool   `koanf:"escalation"`
}

var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"openai":    "gpt-4o-mini",
	"google":    "gemini-1.5-flash",
}

var defaultEmbedModels = map[string]struct {
	model string
	dims  int
}{
	"openai": {"text-embedding-3-small", 1536},
	"google": {"text-embedding-004", 768},
}

// Load reads path (if non-empty) and then applies INCIDENT_* environment
// overrides. A named file that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Split on the first underscore only (section.field_name):
	// INCIDENT_REASONER_API_KEY -> reasoner.api_key
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func applyDefaults(cfg *Config) {
	if cfg.Profile == "" {
		cfg.Profile = profile.DefaultName
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 5 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	cfg.Reasoner.Provider = strings.ToLower(cfg.Reasoner.Provider)
	if cfg.Reasoner.Provider == "" {
		cfg.Reasoner.Provider = "anthropic"
	}
	if cfg.Reasoner.Model == "" {
		cfg.Reasoner.Model = defaultModels[cfg.Reasoner.Provider]
	}
	if cfg.Reasoner.Timeout == 0 {
		cfg.Reasoner.Timeout = 120 * time.Second
	}

	cfg.Embedder.Provider = strings.ToLower(cfg.Embedder.Provider)
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "openai"
	}
	if d, ok := defaultEmbedModels[cfg.Embedder.Provider]; ok {
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = d.model
		}
		if cfg.Embedder.Dimensions == 0 {
			cfg.Embedder.Dimensions = d.dims
		}
	}
	if cfg.Embedder.Timeout == 0 {
		cfg.Embedder.Timeout = 60 * time.Second
	}

	if cfg.KB.Dir == "" {
		cfg.KB.Dir = "data/kb"
	}
	if cfg.KB.Collection == "" {
		cfg.KB.Collection = kb.DefaultCollection
	}
	if cfg.KB.ChunkSize == 0 {
		cfg.KB.ChunkSize = kb.DefaultChunkSize
	}
	if cfg.KB.ChunkOverlap == 0 {
		cfg.KB.ChunkOverlap = kb.DefaultChunkOverlap
	}

	d := pipeline.DefaultOptions()
	if cfg.Web.Enabled == nil {
		cfg.Web.Enabled = boolPtr(true)
	}
	if cfg.Web.Dir == "" {
		cfg.Web.Dir = "data/web_mock"
	}
	if cfg.Web.TopK == 0 {
		cfg.Web.TopK = d.FallbackTopK
	}
	if cfg.Web.QueryChars == 0 {
		cfg.Web.QueryChars = d.FallbackQueryChars
	}

	if cfg.Pipeline.MaxLogChars == 0 {
		cfg.Pipeline.MaxLogChars = d.MaxLogChars
	}
	if cfg.Pipeline.MaxContextChars == 0 {
		cfg.Pipeline.MaxContextChars = d.MaxContextChars
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = d.TopK
	}
	if cfg.Pipeline.Temperature == 0 {
		cfg.Pipeline.Temperature = d.Temperature
	}
	if cfg.Pipeline.MaxTokens == 0 {
		cfg.Pipeline.MaxTokens = d.MaxTokens
	}
	if cfg.Pipeline.Escalation == nil {
		cfg.Pipeline.Escalation = boolPtr(d.Escalation)
	}
}

func boolPtr(b bool) *bool { return &b }

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := profile.Load(c.Profile); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit must not be negative")
	}
	if c.Server.MaxUploadBytes <= 0 {
		add("server.max_upload_bytes must be positive")
	}

	if _, ok := defaultModels[c.Reasoner.Provider]; !ok {
		add("reasoner.provider must be anthropic, openai or google, got %q", c.Reasoner.Provider)
	}
	if c.Reasoner.Model == "" {
		add("reasoner.model is required")
	}
	if _, ok := defaultEmbedModels[c.Embedder.Provider]; !ok {
		add("embedder.provider must be openai or google, got %q", c.Embedder.Provider)
	}
	if c.Embedder.Model == "" {
		add("embedder.model is required")
	}
	if c.Embedder.Dimensions <= 0 {
		add("embedder.dimensions must be positive")
	}

	if c.KB.ChunkSize <= 0 {
		add("kb.chunk_size must be positive")
	}
	if c.KB.ChunkOverlap < 0 || c.KB.ChunkOverlap >= c.KB.ChunkSize {
		add("kb.chunk_overlap must be in [0, chunk_size), got %d", c.KB.ChunkOverlap)
	}
	if c.Web.TopK <= 0 {
		add("web.top_k must be positive")
	}
	if c.Web.QueryChars <= 0 {
		add("web.query_chars must be positive")
	}

	p := c.Pipeline
	if p.MaxLogChars <= 0 || p.MaxContextChars <= 0 || p.TopK <= 0 || p.MaxTokens <= 0 {
		add("pipeline budgets must be positive")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		add("pipeline.temperature must be in [0, 2], got %g", p.Temperature)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// LLM returns the reasoner provider configuration.
func (c *Config) LLM() llm.Config {
	r := c.Reasoner
	return llm.Config{Provider: r.Provider, Model: r.Model, APIKey: r.APIKey, BaseURL: r.BaseURL, Timeout: r.Timeout}
}

// Embed returns the embedder configuration.
func (c *Config) Embed() embed.Config {
	e := c.Embedder
	return embed.Config{
		Provider:   e.Provider,
		Model:      e.Model,
		APIKey:     e.APIKey,
		BaseURL:    e.BaseURL,
		Dimensions: e.Dimensions,
		Timeout:    e.Timeout,
	}
}

// Store returns the knowledge base index configuration.
func (c *Config) Store() kb.Config {
	return kb.Config{Path: c.KB.IndexPath, Compress: c.KB.Compress, Collection: c.KB.Collection}
}

// WebEnabled reports whether the fallback evidence source is used.
func (c *Config) WebEnabled() bool { return c.Web.Enabled == nil || *c.Web.Enabled }

// PipelineOptions returns the orchestrator options.
func (c *Config) PipelineOptions() pipeline.Options {
	p := c.Pipeline
	return pipeline.Options{
		MaxLogChars:        p.MaxLogChars,
		MaxContextChars:    p.MaxContextChars,
		TopK:               p.TopK,
		Temperature:        p.Temperature,
		MaxTokens:          p.MaxTokens,
		Escalation:         p.Escalation == nil || *p.Escalation,
		FallbackTopK:       c.Web.TopK,
		FallbackQueryChars: c.Web.QueryChars,
	}
}
