// Package verdict provides deterministic local logic for deciding whether a
// plan is weak enough to escalate and for summarizing its risk. No reasoner
// calls are made here.
package verdict

import (
	"github.com/dshills/incidentreasoner/internal/schema"
)

// NeedsEscalation reports whether a plan is too weak to return as-is.
//
// A plan needs escalation when any of the following holds:
//  1. status is need_more_info
//  2. there are no plan steps
//  3. confidence is low
func NeedsEscalation(p schema.StructuredPlan) bool {
	return p.Status == schema.StatusNeedMoreInfo ||
		len(p.PlanSteps) == 0 ||
		p.Confidence == schema.ConfidenceLow
}

// RiskOrdinal returns the numeric ordinal for a risk, used to compare
// severity order. low=0, medium=1, high=2; unknown values return -1.
func RiskOrdinal(r schema.Risk) int {
	switch r {
	case schema.RiskLow:
		return 0
	case schema.RiskMedium:
		return 1
	case schema.RiskHigh:
		return 2
	default:
		return -1
	}
}

// MaxRisk returns the highest risk across steps, or "" for an empty plan.
func MaxRisk(steps []schema.PlanStep) schema.Risk {
	var top schema.Risk
	for _, s := range steps {
		if RiskOrdinal(s.Risk) > RiskOrdinal(top) {
			top = s.Risk
		}
	}
	return top
}

// CountRisks aggregates plan steps by risk level.
func CountRisks(steps []schema.PlanStep) (low, medium, high int) {
	for _, s := range steps {
		switch s.Risk {
		case schema.RiskLow:
			low++
		case schema.RiskMedium:
			medium++
		case schema.RiskHigh:
			high++
		}
	}
	return
}
