package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/incidentreasoner/internal/schema"
)

// ParseError is returned when reasoner output contains no JSON object.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llm: parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError records a single schema violation on a reasoner response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ValidationErrors is every violation found in one response.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "llm: " + strings.Join(msgs, "; ")
}

// Kind classifies the outcome of ParseResponse.
type Kind int

const (
	KindNone Kind = iota
	KindParse
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	default:
		return "none"
	}
}

// KindOf reports which content failure err represents, or KindNone for nil
// and for errors that did not come from ParseResponse.
func KindOf(err error) Kind {
	var pe *ParseError
	var ve ValidationErrors
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &pe):
		return KindParse
	case errors.As(err, &ve):
		return KindValidation
	}
	return KindNone
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line (no closing fence required).
// Used to strip orphaned opening fences from truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes leading/trailing markdown code fences that
// reasoners sometimes wrap around JSON output (e.g., "```json\n...\n```").
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// fixInvalidJSONEscapes doubles every backslash that does not start a valid
// JSON string escape ("\/bfnrtu). Commands often contain regex or path
// escapes such as \d+ or \s that reasoners emit unescaped. Valid pairs,
// including an already escaped backslash, are copied unchanged.
func fixInvalidJSONEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && strings.IndexByte(`"\/bfnrtu`, s[i+1]) >= 0 {
			b.WriteString(s[i : i+2])
			i++
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

// braceSpan returns the text from the first '{' to the last '}' inclusive.
func braceSpan(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// extractObject finds the JSON object in raw. Candidates are tried in order:
// the trimmed text, the fence-stripped text, the first-'{'-to-last-'}' span,
// and that span with invalid escapes repaired.
func extractObject(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	candidates := []string{trimmed}
	if s := stripMarkdownFences(trimmed); s != trimmed {
		candidates = append(candidates, s)
	}
	if span, ok := braceSpan(trimmed); ok {
		candidates = append(candidates, span, fixInvalidJSONEscapes(span))
	}

	var firstErr error
	for _, c := range candidates {
		var obj map[string]json.RawMessage
		err := json.Unmarshal([]byte(c), &obj)
		if err == nil && obj != nil {
			return []byte(c), nil
		}
		if err == nil {
			err = errors.New("response is not a JSON object")
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, &ParseError{Err: firstErr}
}

type rawEvidence struct {
	Kind    *string `json:"kind"`
	Type    *string `json:"type"`
	Snippet *string `json:"snippet"`
	Source  *string `json:"source"`
}

type rawStep struct {
	Title           *string `json:"title"`
	Command         *string `json:"command"`
	Purpose         *string `json:"purpose"`
	ExpectedOutcome *string `json:"expected_outcome"`
	Expected        *string `json:"expected"`
	Risk            *string `json:"risk"`
}

type rawInfoRequest struct {
	Title     *string `json:"title"`
	Command   *string `json:"command"`
	Rationale *string `json:"rationale"`
	Why       *string `json:"why"`
}

type rawPlan struct {
	Status           *string          `json:"status"`
	RootCause        *string          `json:"root_cause"`
	Confidence       *string          `json:"confidence"`
	ReasoningSummary *string          `json:"reasoning_summary"`
	Evidence         []rawEvidence    `json:"evidence"`
	PlanSteps        []rawStep        `json:"plan_steps"`
	InfoRequests     []rawInfoRequest `json:"info_requests"`
}

// ParseResponse turns raw reasoner text into a validated StructuredPlan.
// It returns a *ParseError when no JSON object can be found and a
// ValidationErrors when the object does not satisfy the plan schema.
func ParseResponse(raw string) (schema.StructuredPlan, error) {
	data, err := extractObject(raw)
	if err != nil {
		return schema.StructuredPlan{}, err
	}

	var rp rawPlan
	if err := json.Unmarshal(data, &rp); err != nil {
		field := "json_type"
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			field = te.Field
		}
		return schema.StructuredPlan{}, ValidationErrors{{Field: field, Message: err.Error()}}
	}
	return validate(rp)
}

// validate checks required fields and normalizes every enum. All violations
// are collected before returning.
func validate(rp rawPlan) (schema.StructuredPlan, error) {
	var errs ValidationErrors
	required := func(field string, v *string) string {
		if v == nil {
			errs = append(errs, ValidationError{Field: field, Message: "required field is missing"})
			return ""
		}
		return *v
	}
	enum := func(field string, err error) {
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	out := schema.StructuredPlan{
		RootCause:        required("root_cause", rp.RootCause),
		ReasoningSummary: required("reasoning_summary", rp.ReasoningSummary),
		Evidence:         make([]schema.Evidence, 0, len(rp.Evidence)),
		PlanSteps:        make([]schema.PlanStep, 0, len(rp.PlanSteps)),
		InfoRequests:     make([]schema.InfoRequest, 0, len(rp.InfoRequests)),
	}

	if rp.Status == nil {
		required("status", nil)
	} else {
		var err error
		out.Status, err = schema.ParseStatus(*rp.Status)
		enum("status", err)
	}
	if rp.Confidence == nil {
		required("confidence", nil)
	} else {
		var err error
		out.Confidence, err = schema.ParseConfidence(*rp.Confidence)
		enum("confidence", err)
	}

	for i, e := range rp.Evidence {
		prefix := fmt.Sprintf("evidence[%d]", i)
		kind := firstOf(e.Kind, e.Type)
		ev := schema.Evidence{
			Snippet: required(prefix+".snippet", e.Snippet),
			Source:  deref(e.Source),
		}
		if kind == nil {
			required(prefix+".kind", nil)
		} else {
			var err error
			ev.Kind, err = schema.ParseEvidenceKind(*kind)
			enum(prefix+".kind", err)
		}
		out.Evidence = append(out.Evidence, ev)
	}

	for i, s := range rp.PlanSteps {
		prefix := fmt.Sprintf("plan_steps[%d]", i)
		step := schema.PlanStep{
			Title:           required(prefix+".title", s.Title),
			Command:         required(prefix+".command", s.Command),
			Purpose:         deref(s.Purpose),
			ExpectedOutcome: deref(firstOf(s.ExpectedOutcome, s.Expected)),
		}
		var err error
		step.Risk, err = schema.ParseRisk(deref(s.Risk))
		enum(prefix+".risk", err)
		out.PlanSteps = append(out.PlanSteps, step)
	}

	for i, r := range rp.InfoRequests {
		prefix := fmt.Sprintf("info_requests[%d]", i)
		out.InfoRequests = append(out.InfoRequests, schema.InfoRequest{
			Title:     required(prefix+".title", r.Title),
			Command:   required(prefix+".command", r.Command),
			Rationale: deref(firstOf(r.Rationale, r.Why)),
		})
	}

	if len(errs) > 0 {
		return schema.StructuredPlan{}, errs
	}
	return out, nil
}

func firstOf(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
