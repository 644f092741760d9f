// Package render produces output from a finished schema.StructuredPlan.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/incidentreasoner/internal/schema"
	"github.com/dshills/incidentreasoner/internal/verdict"
)

// RenderJSON produces a pretty-printed JSON representation of the plan.
// Empty sequences are emitted as [] and the output round-trips through
// json.Unmarshal back to an equal plan.
func RenderJSON(plan schema.StructuredPlan) ([]byte, error) {
	b, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a GitHub-flavoured Markdown summary of the plan,
// suitable for incident channels or terminal output. Every plan step command
// appears in its own code block.
func RenderMarkdown(plan schema.StructuredPlan) string {
	var sb strings.Builder

	sb.WriteString("## Incident Analysis\n\n")
	fmt.Fprintf(&sb, "**Status:** %s  \n", plan.Status)
	fmt.Fprintf(&sb, "**Confidence:** %s  \n", plan.Confidence)
	if len(plan.PlanSteps) > 0 {
		low, medium, high := verdict.CountRisks(plan.PlanSteps)
		fmt.Fprintf(&sb, "**Max risk:** %s | **Low:** %d | **Medium:** %d | **High:** %d\n\n",
			verdict.MaxRisk(plan.PlanSteps), low, medium, high)
	} else {
		sb.WriteString("\n")
	}

	sb.WriteString("### Root Cause\n\n")
	fmt.Fprintf(&sb, "%s\n\n", inline(plan.RootCause))
	if plan.ReasoningSummary != "" {
		fmt.Fprintf(&sb, "_%s_\n\n", inline(plan.ReasoningSummary))
	}

	if len(plan.Evidence) > 0 {
		sb.WriteString("### Evidence\n\n")
		sb.WriteString("| Kind | Snippet | Source |\n")
		sb.WriteString("|---|---|---|\n")
		for _, ev := range plan.Evidence {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", ev.Kind, mdEscape(ev.Snippet), mdEscape(ev.Source))
		}
		sb.WriteString("\n")
	}

	if len(plan.PlanSteps) > 0 {
		sb.WriteString("### Plan\n\n")
		for i, st := range plan.PlanSteps {
			fmt.Fprintf(&sb, "%d. **%s** [%s]\n\n", i+1, inline(st.Title), st.Risk)
			writeCommand(&sb, st.Command)
			if st.Purpose != "" {
				fmt.Fprintf(&sb, "   **Purpose:** %s  \n", inline(st.Purpose))
			}
			if st.ExpectedOutcome != "" {
				fmt.Fprintf(&sb, "   **Expected:** %s  \n", inline(st.ExpectedOutcome))
			}
			sb.WriteString("\n")
		}
	}

	if len(plan.InfoRequests) > 0 {
		sb.WriteString("### Information Needed\n\n")
		for _, ir := range plan.InfoRequests {
			fmt.Fprintf(&sb, "- **%s**", inline(ir.Title))
			if ir.Rationale != "" {
				fmt.Fprintf(&sb, ": %s", inline(ir.Rationale))
			}
			sb.WriteString("\n\n")
			writeCommand(&sb, ir.Command)
		}
	}

	return sb.String()
}

// writeCommand renders cmd as an indented shell block.
func writeCommand(sb *strings.Builder, cmd string) {
	if strings.TrimSpace(cmd) == "" {
		return
	}
	sb.WriteString("   ```sh\n")
	for _, line := range strings.Split(defence(cmd), "\n") {
		fmt.Fprintf(sb, "   %s\n", line)
	}
	sb.WriteString("   ```\n\n")
}

// defence keeps model text from closing the surrounding code fence.
func defence(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "```", "'''")
	return strings.ReplaceAll(s, "~~~", "'''")
}

// inline flattens s onto one line and neutralizes fences.
func inline(s string) string {
	s = defence(s)
	return strings.Join(strings.Fields(s), " ")
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(inline(s), "|", "\\|")
	return s
}
