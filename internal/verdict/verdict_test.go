package verdict

import (
	"testing"

	"github.com/dshills/incidentreasoner/internal/schema"
)

func strongPlan() schema.StructuredPlan {
	return schema.StructuredPlan{
		Status:     schema.StatusFinal,
		Confidence: schema.ConfidenceHigh,
		PlanSteps:  []schema.PlanStep{{Title: "restart", Command: "kubectl rollout restart deploy/api", Risk: schema.RiskMedium}},
	}
}

func TestNeedsEscalation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*schema.StructuredPlan)
		want   bool
	}{
		{"strong plan", func(*schema.StructuredPlan) {}, false},
		{"medium confidence", func(p *schema.StructuredPlan) { p.Confidence = schema.ConfidenceMedium }, false},
		{"need more info", func(p *schema.StructuredPlan) { p.Status = schema.StatusNeedMoreInfo }, true},
		{"no steps", func(p *schema.StructuredPlan) { p.PlanSteps = nil }, true},
		{"low confidence", func(p *schema.StructuredPlan) { p.Confidence = schema.ConfidenceLow }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := strongPlan()
			tt.mutate(&p)
			if got := NeedsEscalation(p); got != tt.want {
				t.Errorf("NeedsEscalation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRiskOrdinal(t *testing.T) {
	if RiskOrdinal(schema.RiskLow) >= RiskOrdinal(schema.RiskMedium) {
		t.Error("low should order before medium")
	}
	if RiskOrdinal(schema.RiskMedium) >= RiskOrdinal(schema.RiskHigh) {
		t.Error("medium should order before high")
	}
	if RiskOrdinal("extreme") != -1 {
		t.Error("unknown risk should be -1")
	}
}

func TestMaxRiskAndCount(t *testing.T) {
	steps := []schema.PlanStep{
		{Risk: schema.RiskLow},
		{Risk: schema.RiskHigh},
		{Risk: schema.RiskMedium},
		{Risk: schema.RiskLow},
	}
	if got := MaxRisk(steps); got != schema.RiskHigh {
		t.Errorf("MaxRisk = %q, want high", got)
	}
	if got := MaxRisk(nil); got != "" {
		t.Errorf("MaxRisk(nil) = %q, want empty", got)
	}
	low, med, high := CountRisks(steps)
	if low != 2 || med != 1 || high != 1 {
		t.Errorf("CountRisks = %d/%d/%d, want 2/1/1", low, med, high)
	}
}
