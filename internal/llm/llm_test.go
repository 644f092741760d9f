package llm

import (
	"strings"
	"testing"

	"github.com/dshills/incidentreasoner/internal/profile"
	"github.com/dshills/incidentreasoner/internal/schema"
)

func loadKubernetesProfile(t *testing.T) profile.Profile {
	t.Helper()
	prof, err := profile.Load("kubernetes")
	if err != nil {
		t.Fatalf("profile.Load(\"kubernetes\"): %v", err)
	}
	return prof
}

func TestNewProvider_UnknownProvider(t *testing.T) {
	_, err := NewProvider(Config{Provider: "watson"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "watson") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestNewProvider_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	for _, name := range []string{"anthropic", "google", "openai"} {
		if _, err := NewProvider(Config{Provider: name, Model: "m"}); err == nil {
			t.Errorf("%s: expected error when no API key is available", name)
		}
	}
}

func TestNewProvider_KeyFromConfigOrEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewProvider(Config{Provider: "anthropic", Model: "m", APIKey: "k"}); err != nil {
		t.Errorf("explicit key: %v", err)
	}
	t.Setenv("GOOGLE_API_KEY", "env-key")
	if _, err := NewProvider(Config{Provider: "google", Model: "m"}); err != nil {
		t.Errorf("env key: %v", err)
	}
}

func TestNewProvider_OpenAICompatibleWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	// Self-hosted OpenAI-compatible endpoints often need no key.
	if _, err := NewProvider(Config{Provider: "openai", Model: "m", BaseURL: "http://localhost:8000/v1"}); err != nil {
		t.Errorf("expected base URL to be enough: %v", err)
	}
}

func TestSystemPrompts(t *testing.T) {
	prof := loadKubernetesProfile(t)

	planner := PlannerSystemPrompt(prof)
	if !strings.HasPrefix(planner, prof.Persona) {
		t.Errorf("planner prompt should open with the persona: %q", planner)
	}
	critic := CriticSystemPrompt(prof)
	if !strings.Contains(critic, "strict reviewer") || !strings.Contains(critic, prof.CriticAddendum) {
		t.Errorf("critic prompt missing role or addendum: %q", critic)
	}
	for _, p := range []string{planner, critic} {
		if !strings.Contains(p, "ONLY valid JSON") {
			t.Errorf("system prompt must demand JSON only: %q", p)
		}
	}
}

func TestPlannerPrompt_EmbedsLogAndContext(t *testing.T) {
	ctx := []schema.ContextItem{
		{Text: "Raise limits.memory when pods are OOMKilled", Source: "kb/memory.md", Distance: 0.12, Origin: schema.OriginKB},
		{Text: "Web: tune JVM heap", Source: "web/jvm.md", Distance: 4, Origin: schema.OriginWeb},
	}
	p := PlannerPrompt("CrashLoopBackOff: OOMKilled", ctx)

	for _, want := range []string{
		`"""CrashLoopBackOff: OOMKilled"""`,
		"SOURCE: kb/memory.md",
		"DISTANCE: 0.1200",
		"WEB SEARCH RESULTS:",
		"SCORE: 4",
		`"expected_outcome"`,
		"Return ONLY JSON.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("planner prompt missing %q", want)
		}
	}
	if strings.Index(p, "kb/memory.md") > strings.Index(p, "web/jvm.md") {
		t.Error("kb snippets should precede web results")
	}
}

func TestPlannerPrompt_NoWebBlockWithoutWebItems(t *testing.T) {
	p := PlannerPrompt("log", nil)
	if strings.Contains(p, "WEB SEARCH RESULTS") {
		t.Error("unexpected web block")
	}
	if !strings.Contains(p, "RETRIEVED KB SNIPPETS:") {
		t.Error("kb block header should always be present")
	}
}

func TestCriticPrompt_IncludesPlannerOutput(t *testing.T) {
	p := CriticPrompt("log line", nil, validPlanJSON)
	if !strings.Contains(p, "PROPOSED PLAN JSON:\n"+validPlanJSON) {
		t.Error("critic prompt must embed the raw planner output")
	}
	if !strings.Contains(p, "SAME schema") {
		t.Error("critic prompt must ask for the same schema")
	}
}
