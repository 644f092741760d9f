package render

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/dshills/incidentreasoner/internal/schema"
)

func samplePlan() schema.StructuredPlan {
	return schema.StructuredPlan{
		Status:           schema.StatusFinal,
		RootCause:        "Container exceeded its memory limit",
		Confidence:       schema.ConfidenceHigh,
		ReasoningSummary: "Log shows OOMKilled; runbook recommends raising limits.memory.",
		Evidence: []schema.Evidence{
			{Kind: schema.EvidenceLog, Snippet: "CrashLoopBackOff: OOMKilled", Source: "log"},
			{Kind: schema.EvidenceKB, Snippet: "limits | requests", Source: "kb/memory.md"},
		},
		PlanSteps: []schema.PlanStep{
			{
				Title:           "Describe the pod",
				Command:         "kubectl describe pod api-0 -n prod",
				Purpose:         "Confirm the termination reason",
				ExpectedOutcome: "Last state OOMKilled",
				Risk:            schema.RiskLow,
			},
			{
				Title:   "Raise the memory limit",
				Command: "kubectl set resources deploy/api -n prod --limits=memory=1Gi",
				Risk:    schema.RiskMedium,
			},
		},
		InfoRequests: []schema.InfoRequest{
			{Title: "Heap profile", Command: "kubectl exec api-0 -- jcmd 1 GC.heap_info", Rationale: "Distinguish a leak from undersizing"},
		},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	plan := samplePlan()
	b, err := RenderJSON(plan)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	var got schema.StructuredPlan
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(plan, got) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", plan, got)
	}
	if !strings.Contains(string(b), "\n  \"status\": \"final\"") {
		t.Errorf("expected indented output:\n%s", b)
	}
}

func TestRenderJSON_EmptySequences(t *testing.T) {
	b, err := RenderJSON(schema.StructuredPlan{Status: schema.StatusNeedMoreInfo, Confidence: schema.ConfidenceLow})
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	for _, key := range []string{`"evidence": []`, `"plan_steps": []`, `"info_requests": []`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("missing %s in:\n%s", key, b)
		}
	}
	if strings.Contains(string(b), "null") {
		t.Errorf("null in output:\n%s", b)
	}
}

func TestRenderMarkdown_Sections(t *testing.T) {
	md := RenderMarkdown(samplePlan())

	for _, want := range []string{
		"## Incident Analysis",
		"**Status:** final",
		"**Confidence:** high",
		"**Max risk:** medium | **Low:** 1 | **Medium:** 1 | **High:** 0",
		"### Root Cause",
		"Container exceeded its memory limit",
		"### Evidence",
		"| log | CrashLoopBackOff: OOMKilled | log |",
		"### Plan",
		"1. **Describe the pod** [low]",
		"2. **Raise the memory limit** [medium]",
		"   kubectl describe pod api-0 -n prod\n",
		"**Expected:** Last state OOMKilled",
		"### Information Needed",
		"- **Heap profile**: Distinguish a leak from undersizing",
		"kubectl exec api-0 -- jcmd 1 GC.heap_info",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_EscapesTableCells(t *testing.T) {
	md := RenderMarkdown(samplePlan())
	if !strings.Contains(md, `limits \| requests`) {
		t.Errorf("pipe in table cell not escaped:\n%s", md)
	}
}

func TestRenderMarkdown_NeedMoreInfo(t *testing.T) {
	md := RenderMarkdown(schema.StructuredPlan{
		Status:     schema.StatusNeedMoreInfo,
		RootCause:  "Unknown",
		Confidence: schema.ConfidenceLow,
		InfoRequests: []schema.InfoRequest{
			{Title: "Unsafe command detected", Command: "N/A", Rationale: "review"},
		},
	})
	if strings.Contains(md, "### Plan") || strings.Contains(md, "Max risk") {
		t.Errorf("no plan section expected:\n%s", md)
	}
	if !strings.Contains(md, "Unsafe command detected") {
		t.Errorf("info request missing:\n%s", md)
	}
}

func TestRenderMarkdown_ModelTextCannotBreakFences(t *testing.T) {
	plan := samplePlan()
	plan.PlanSteps[0].Command = "echo ok\n```\n# injected heading"
	plan.RootCause = "see ```bash\nrm -rf /``` now"

	md := RenderMarkdown(plan)
	if strings.Count(md, "```")%2 != 0 {
		t.Fatalf("unbalanced fences:\n%s", md)
	}
	if strings.Contains(md, "\n# injected heading") {
		t.Errorf("command escaped its code block:\n%s", md)
	}
	if !strings.Contains(md, "see '''bash rm -rf /''' now") {
		t.Errorf("root cause not flattened:\n%s", md)
	}
}
