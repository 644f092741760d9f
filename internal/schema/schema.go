// Package schema defines all canonical data types for the incident analysis
// output format.
package schema

import "encoding/json"

// Status is the terminal classification of a plan.
type Status string

const (
	StatusFinal        Status = "final"
	StatusNeedMoreInfo Status = "need_more_info"
)

// Confidence represents how strongly the root cause is supported.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Risk represents the operational risk of executing a plan step.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// EvidenceKind identifies where a piece of evidence came from.
type EvidenceKind string

const (
	EvidenceLog EvidenceKind = "log"
	EvidenceKB  EvidenceKind = "kb"
)

// Origin identifies which retrieval path produced a context item.
type Origin string

const (
	OriginKB  Origin = "kb"
	OriginWeb Origin = "web"
)

// StructuredPlan is the single result type produced by every analysis stage.
type StructuredPlan struct {
	Status           Status        `json:"status"`
	RootCause        string        `json:"root_cause"`
	Confidence       Confidence    `json:"confidence"`
	ReasoningSummary string        `json:"reasoning_summary"`
	Evidence         []Evidence    `json:"evidence"`
	PlanSteps        []PlanStep    `json:"plan_steps"`
	InfoRequests     []InfoRequest `json:"info_requests"`
}

// Evidence cites a log line or knowledge-base passage supporting the analysis.
type Evidence struct {
	Kind    EvidenceKind `json:"kind"`
	Snippet string       `json:"snippet"`
	Source  string       `json:"source"`
}

// PlanStep is one ordered remediation action.
type PlanStep struct {
	Title           string `json:"title"`
	Command         string `json:"command"`
	Purpose         string `json:"purpose"`
	ExpectedOutcome string `json:"expected_outcome"`
	Risk            Risk   `json:"risk"`
}

// InfoRequest asks the operator to collect more evidence.
type InfoRequest struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Rationale string `json:"rationale"`
}

// ContextItem is one retrieved passage offered to the reasoner.
// Distance is lower-is-closer for KB items; for web items it carries the
// keyword score instead.
type ContextItem struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Ordinal  int     `json:"ordinal"`
	Distance float64 `json:"distance"`
	Origin   Origin  `json:"origin"`
}

// FallbackHit is a single result from the offline fallback evidence source.
type FallbackHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	Score   int    `json:"score"`
}

// MarshalJSON emits empty sequences as [] rather than null.
func (p StructuredPlan) MarshalJSON() ([]byte, error) {
	type wire StructuredPlan
	w := wire(p)
	if w.Evidence == nil {
		w.Evidence = []Evidence{}
	}
	if w.PlanSteps == nil {
		w.PlanSteps = []PlanStep{}
	}
	if w.InfoRequests == nil {
		w.InfoRequests = []InfoRequest{}
	}
	return json.Marshal(w)
}

// Clone returns a deep copy of p. Slices in the copy are never nil.
func (p StructuredPlan) Clone() StructuredPlan {
	out := p
	out.Evidence = append(make([]Evidence, 0, len(p.Evidence)), p.Evidence...)
	out.PlanSteps = append(make([]PlanStep, 0, len(p.PlanSteps)), p.PlanSteps...)
	out.InfoRequests = append(make([]InfoRequest, 0, len(p.InfoRequests)), p.InfoRequests...)
	return out
}
