package schema

import (
	"fmt"
	"strings"
)

// normalize lowercases s, trims it and folds '-' and ' ' into '_'.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// ParseStatus converts a string to a Status constant.
// Returns an error for unrecognized values.
func ParseStatus(s string) (Status, error) {
	switch normalize(s) {
	case "final":
		return StatusFinal, nil
	case "need_more_info", "needs_more_info", "need_info", "more_info_needed":
		return StatusNeedMoreInfo, nil
	}
	return "", fmt.Errorf("schema: unknown status %q", s)
}

// ParseConfidence converts a string to a Confidence constant.
func ParseConfidence(s string) (Confidence, error) {
	switch normalize(s) {
	case "high":
		return ConfidenceHigh, nil
	case "medium", "med", "moderate":
		return ConfidenceMedium, nil
	case "low":
		return ConfidenceLow, nil
	}
	return "", fmt.Errorf("schema: unknown confidence %q", s)
}

// ParseRisk converts a string to a Risk constant. An empty string is the
// default risk (low).
func ParseRisk(s string) (Risk, error) {
	switch normalize(s) {
	case "low", "":
		return RiskLow, nil
	case "medium", "med", "moderate":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return "", fmt.Errorf("schema: unknown risk %q", s)
}

// ParseEvidenceKind converts a string to an EvidenceKind constant.
// Reference material of any flavour (runbooks, docs, web results) is kb.
func ParseEvidenceKind(s string) (EvidenceKind, error) {
	switch normalize(s) {
	case "log", "logs":
		return EvidenceLog, nil
	case "kb", "knowledge_base", "runbook", "doc", "docs", "web":
		return EvidenceKB, nil
	}
	return "", fmt.Errorf("schema: unknown evidence kind %q", s)
}
