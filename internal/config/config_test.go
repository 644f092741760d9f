package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/incidentreasoner/internal/pipeline"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "kubernetes", cfg.Profile)
	assert.Equal(t, "anthropic", cfg.Reasoner.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Reasoner.Model)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, 1536, cfg.Embedder.Dimensions)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 900, cfg.KB.ChunkSize)
	assert.Equal(t, 150, cfg.KB.ChunkOverlap)
	assert.True(t, cfg.WebEnabled())

	assert.Equal(t, pipeline.DefaultOptions(), cfg.PipelineOptions())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
profile: linux-host
log:
  level: debug
  format: console
reasoner:
  provider: openai
  base_url: http://localhost:8000/v1
  timeout: 30s
embedder:
  provider: google
kb:
  dir: /srv/kb
  index_path: /var/lib/incident/index
pipeline:
  top_k: 4
  max_context_chars: 5000
web:
  enabled: false
`)
	t.Setenv("INCIDENT_REASONER_MODEL", "llama-3.1-70b")
	t.Setenv("INCIDENT_PIPELINE_TOP_K", "9")
	t.Setenv("INCIDENT_PIPELINE_ESCALATION", "false")
	t.Setenv("INCIDENT_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "linux-host", cfg.Profile)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "openai", cfg.Reasoner.Provider)
	assert.Equal(t, "llama-3.1-70b", cfg.Reasoner.Model, "env overrides defaults")
	assert.Equal(t, 30*time.Second, cfg.Reasoner.Timeout)
	assert.Equal(t, "text-embedding-004", cfg.Embedder.Model)
	assert.Equal(t, 768, cfg.Embedder.Dimensions)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.WebEnabled())

	opts := cfg.PipelineOptions()
	assert.Equal(t, 9, opts.TopK, "env overrides file")
	assert.Equal(t, 5000, opts.MaxContextChars)
	assert.False(t, opts.Escalation)

	llmCfg := cfg.LLM()
	assert.Equal(t, "http://localhost:8000/v1", llmCfg.BaseURL)
	assert.Equal(t, "/var/lib/incident/index", cfg.Store().Path)
	assert.Equal(t, "google", cfg.Embed().Provider)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
profile: mainframe
reasoner:
  provider: watson
kb:
  chunk_size: 100
  chunk_overlap: 100
log:
  format: xml
`)
	_, err := Load(path)
	require.Error(t, err)
	for _, want := range []string{"mainframe", "reasoner.provider", "kb.chunk_overlap", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "reasoner.api_key", envKey("INCIDENT_REASONER_API_KEY"))
	assert.Equal(t, "kb.index_path", envKey("INCIDENT_KB_INDEX_PATH"))
	assert.Equal(t, "profile", envKey("INCIDENT_PROFILE"))
}
