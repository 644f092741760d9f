package schema_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dshills/incidentreasoner/internal/schema"
)

func TestStructuredPlan_JSONRoundTrip(t *testing.T) {
	original := schema.StructuredPlan{
		Status:           schema.StatusFinal,
		RootCause:        "container exceeds its memory limit",
		Confidence:       schema.ConfidenceHigh,
		ReasoningSummary: "OOMKilled in the log matches the memory-limits runbook",
		Evidence: []schema.Evidence{
			{Kind: schema.EvidenceLog, Snippet: "OOMKilled", Source: "log"},
			{Kind: schema.EvidenceKB, Snippet: "raise limits.memory", Source: "kb/memory.md"},
		},
		PlanSteps: []schema.PlanStep{
			{
				Title:           "Inspect pod",
				Command:         "kubectl describe pod api-0 -n prod",
				Purpose:         "confirm the termination reason",
				ExpectedOutcome: "Last State: OOMKilled",
				Risk:            schema.RiskLow,
			},
		},
		InfoRequests: []schema.InfoRequest{},
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded schema.StructuredPlan
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Status != original.Status || decoded.RootCause != original.RootCause {
		t.Errorf("header mismatch: got %+v", decoded)
	}
	if len(decoded.Evidence) != 2 || decoded.Evidence[1].Kind != schema.EvidenceKB {
		t.Errorf("evidence mismatch: %+v", decoded.Evidence)
	}
	if len(decoded.PlanSteps) != 1 || decoded.PlanSteps[0].ExpectedOutcome != "Last State: OOMKilled" {
		t.Errorf("plan steps mismatch: %+v", decoded.PlanSteps)
	}
}

func TestStructuredPlan_EmptySequencesAreArrays(t *testing.T) {
	b, err := json.Marshal(schema.StructuredPlan{Status: schema.StatusNeedMoreInfo, Confidence: schema.ConfidenceLow})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, key := range []string{`"evidence":[]`, `"plan_steps":[]`, `"info_requests":[]`} {
		if !strings.Contains(s, key) {
			t.Errorf("expected %s in %s", key, s)
		}
	}
	if strings.Contains(s, "null") {
		t.Errorf("unexpected null in %s", s)
	}
}

func TestStructuredPlan_WireNames(t *testing.T) {
	p := schema.StructuredPlan{
		Evidence:     []schema.Evidence{{Kind: schema.EvidenceLog}},
		PlanSteps:    []schema.PlanStep{{Risk: schema.RiskHigh}},
		InfoRequests: []schema.InfoRequest{{Rationale: "r"}},
	}
	b, _ := json.Marshal(p)
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"status", "root_cause", "confidence", "reasoning_summary", "evidence", "plan_steps", "info_requests"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing top-level key %q", k)
		}
	}
	step := m["plan_steps"].([]any)[0].(map[string]any)
	for _, k := range []string{"title", "command", "purpose", "expected_outcome", "risk"} {
		if _, ok := step[k]; !ok {
			t.Errorf("missing plan step key %q", k)
		}
	}
	ev := m["evidence"].([]any)[0].(map[string]any)
	if _, ok := ev["kind"]; !ok {
		t.Error("missing evidence key \"kind\"")
	}
	ir := m["info_requests"].([]any)[0].(map[string]any)
	if _, ok := ir["rationale"]; !ok {
		t.Error("missing info request key \"rationale\"")
	}
}

func TestStructuredPlan_CloneIsDeep(t *testing.T) {
	orig := schema.StructuredPlan{
		PlanSteps: []schema.PlanStep{{Title: "a"}},
	}
	c := orig.Clone()
	c.PlanSteps[0].Title = "b"
	c.InfoRequests = append(c.InfoRequests, schema.InfoRequest{Title: "x"})
	if orig.PlanSteps[0].Title != "a" {
		t.Error("clone shares plan step storage with the original")
	}
	if len(orig.InfoRequests) != 0 {
		t.Error("clone append leaked into the original")
	}
	if c.Evidence == nil {
		t.Error("clone should never carry nil slices")
	}
}

func TestParseRisk(t *testing.T) {
	cases := []struct {
		in      string
		want    schema.Risk
		wantErr bool
	}{
		{"low", schema.RiskLow, false},
		{"", schema.RiskLow, false},
		{"med", schema.RiskMedium, false},
		{"Medium", schema.RiskMedium, false},
		{" HIGH ", schema.RiskHigh, false},
		{"critical", "", true},
	}
	for _, tc := range cases {
		got, err := schema.ParseRisk(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseRisk(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRisk(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]schema.Status{
		"final":           schema.StatusFinal,
		"FINAL":           schema.StatusFinal,
		"need_more_info":  schema.StatusNeedMoreInfo,
		"need-more-info":  schema.StatusNeedMoreInfo,
		"needs_more_info": schema.StatusNeedMoreInfo,
	}
	for in, want := range cases {
		got, err := schema.ParseStatus(in)
		if err != nil {
			t.Errorf("ParseStatus(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := schema.ParseStatus("done"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestParseConfidenceAndKind(t *testing.T) {
	if c, err := schema.ParseConfidence("med"); err != nil || c != schema.ConfidenceMedium {
		t.Errorf("ParseConfidence(med) = %q, %v", c, err)
	}
	if _, err := schema.ParseConfidence(""); err == nil {
		t.Error("empty confidence must be rejected")
	}
	if k, err := schema.ParseEvidenceKind("web"); err != nil || k != schema.EvidenceKB {
		t.Errorf("ParseEvidenceKind(web) = %q, %v", k, err)
	}
	if _, err := schema.ParseEvidenceKind("metric"); err == nil {
		t.Error("expected error for unknown evidence kind")
	}
}
