package llm

import (
	"fmt"
	"strings"

	"github.com/dshills/incidentreasoner/internal/profile"
	"github.com/dshills/incidentreasoner/internal/schema"
)

const jsonOnly = "Return ONLY valid JSON (no markdown, no extra text)."

// outputSchema is the JSON schema fragment shown to the reasoner.
const outputSchema = `OUTPUT JSON SCHEMA (STRICT):
{
  "status": "final" | "need_more_info",
  "root_cause": "...",
  "confidence": "high" | "medium" | "low",
  "reasoning_summary": "...",
  "evidence": [{"kind":"log|kb","snippet":"...","source":"..."}],
  "plan_steps": [{"title":"...","command":"...","purpose":"...","expected_outcome":"...","risk":"low|medium|high"}],
  "info_requests": [{"title":"...","command":"...","rationale":"..."}]
}`

// PlannerSystemPrompt assembles the planner role instructions.
func PlannerSystemPrompt(prof profile.Profile) string {
	var sb strings.Builder
	sb.WriteString(prof.Persona)
	sb.WriteString("\nYou must produce an actionable incident analysis and a safe execution plan.\n")
	sb.WriteString(jsonOnly)
	return sb.String()
}

// CriticSystemPrompt assembles the critic role instructions.
func CriticSystemPrompt(prof profile.Profile) string {
	var sb strings.Builder
	sb.WriteString("You are a strict reviewer of incident response plans.\n")
	sb.WriteString("Check the plan for: correctness, specificity, safety, and whether it is " +
		"grounded in the provided log/context.\n")
	if prof.CriticAddendum != "" {
		sb.WriteString(prof.CriticAddendum)
		sb.WriteString("\n")
	}
	sb.WriteString(jsonOnly)
	return sb.String()
}

// PlannerPrompt assembles the planner user prompt. The reasoner keeps no
// memory, so the log and every context item are embedded each time.
func PlannerPrompt(logText string, contexts []schema.ContextItem) string {
	var sb strings.Builder
	sb.WriteString("You are given:\n")
	sb.WriteString("1) A log excerpt from an incident\n")
	sb.WriteString("2) Retrieved knowledge base snippets (may include runbooks / common fixes)\n\n")
	sb.WriteString("TASK:\n")
	sb.WriteString("- Identify likely root cause (RCA)\n")
	sb.WriteString("- Provide confidence: high/medium/low\n")
	sb.WriteString("- Provide an ordered plan with concrete commands (safe + realistic)\n")
	sb.WriteString("- If you cannot provide clear commands, set status=\"need_more_info\" and list " +
		"what info is needed (commands to collect more evidence)\n\n")
	sb.WriteString(outputSchema)
	sb.WriteString("\n\n")
	writeLogAndContext(&sb, logText, contexts)
	sb.WriteString("\nReturn ONLY JSON.")
	return sb.String()
}

// CriticPrompt assembles the critic user prompt around the raw planner output.
func CriticPrompt(logText string, contexts []schema.ContextItem, planJSON string) string {
	var sb strings.Builder
	sb.WriteString("Review the proposed plan. Verify:\n")
	sb.WriteString("- Is it specific and executable?\n")
	sb.WriteString("- Are commands present and safe?\n")
	sb.WriteString("- Is RCA grounded in log + KB snippets?\n")
	sb.WriteString("- If unclear, change status to \"need_more_info\" and add 3-8 info_requests with precise commands.\n")
	sb.WriteString("- If commands are dangerous, replace with safer alternatives and set risk accordingly.\n\n")
	sb.WriteString("Return JSON with SAME schema as planner output.\n")
	sb.WriteString(outputSchema)
	sb.WriteString("\n\n")
	writeLogAndContext(&sb, logText, contexts)
	sb.WriteString("\nPROPOSED PLAN JSON:\n")
	sb.WriteString(planJSON)
	sb.WriteString("\n\nReturn ONLY JSON.")
	return sb.String()
}

func writeLogAndContext(sb *strings.Builder, logText string, contexts []schema.ContextItem) {
	sb.WriteString("LOG:\n\"\"\"")
	sb.WriteString(logText)
	sb.WriteString("\"\"\"\n\n")

	var kb, web []schema.ContextItem
	for _, c := range contexts {
		if c.Origin == schema.OriginWeb {
			web = append(web, c)
		} else {
			kb = append(kb, c)
		}
	}

	sb.WriteString("RETRIEVED KB SNIPPETS:\n")
	for _, c := range kb {
		fmt.Fprintf(sb, "- SOURCE: %s\n  DISTANCE: %.4f\n  TEXT: %s\n\n", c.Source, c.Distance, c.Text)
	}
	if len(web) > 0 {
		sb.WriteString("WEB SEARCH RESULTS:\n")
		for _, c := range web {
			fmt.Fprintf(sb, "- SOURCE: %s\n  SCORE: %g\n  TEXT: %s\n\n", c.Source, c.Distance, c.Text)
		}
	}
}
