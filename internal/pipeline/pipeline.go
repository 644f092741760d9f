// Package pipeline orchestrates one incident analysis: retrieval, planner and
// critic passes, the safety gate, and at most one escalation round through
// fallback evidence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/incidentreasoner/internal/embed"
	"github.com/dshills/incidentreasoner/internal/llm"
	"github.com/dshills/incidentreasoner/internal/profile"
	"github.com/dshills/incidentreasoner/internal/safety"
	"github.com/dshills/incidentreasoner/internal/schema"
	"github.com/dshills/incidentreasoner/internal/textutil"
	"github.com/dshills/incidentreasoner/internal/verdict"
)

// Stage names one state of an analysis.
type Stage string

const (
	StageEmbed            Stage = "EMBED"
	StageRetrieve         Stage = "RETRIEVE"
	StagePlan1            Stage = "PLAN_1"
	StageValidate1        Stage = "VALIDATE_1"
	StageCritique1        Stage = "CRITIQUE_1"
	StageValidateCritic1  Stage = "VALIDATE_CRITIC_1"
	StageSafety1          Stage = "SAFETY_1"
	StageDecideEscalation Stage = "DECIDE_ESCALATION"
	StageFallbackSearch   Stage = "FALLBACK_SEARCH"
	StagePlan2            Stage = "PLAN_2"
	StageValidate2        Stage = "VALIDATE_2"
	StageCritique2        Stage = "CRITIQUE_2"
	StageValidateCritic2  Stage = "VALIDATE_CRITIC_2"
	StageSafety2          Stage = "SAFETY_2"
	StageSelect           Stage = "SELECT"
	StageDone             Stage = "DONE"
)

type roundStages struct {
	plan, validate, critique, validateCritic, safety Stage
}

var rounds = [...]roundStages{
	{StagePlan1, StageValidate1, StageCritique1, StageValidateCritic1, StageSafety1},
	{StagePlan2, StageValidate2, StageCritique2, StageValidateCritic2, StageSafety2},
}

// Selection names the candidate an analysis returned.
type Selection string

const (
	// SelectedCanned is the synthesized result for an unusable planner reply.
	SelectedCanned    Selection = "canned"
	SelectedPrimary   Selection = "primary"
	SelectedEscalated Selection = "escalated"
)

const (
	rolePlanner = "planner"
	roleCritic  = "critic"
)

// Canned result text used when the first planner reply cannot be used.
const (
	CannedRootCause     = "Unable to generate a valid plan from the provided log."
	CannedRequestTitle  = "Provide more context"
	cannedRationale     = "Current log excerpt is insufficient or malformed for planning."
	cannedSummaryFormat = "Planner returned non-parseable output. Error: %s"
)

// Embedder computes the query embedding for a log.
type Embedder interface {
	Embed(ctx context.Context, texts []string, role embed.Role) ([][]float32, error)
}

// Retriever returns the knowledge base passages nearest to a vector.
type Retriever interface {
	Query(ctx context.Context, vec []float32, topK int) ([]schema.ContextItem, error)
}

// EvidenceSource is the secondary corpus consulted on escalation.
type EvidenceSource interface {
	Search(query string, topK int) []schema.FallbackHit
}

// TransportError reports a failed remote call. It is never recovered locally.
type TransportError struct {
	Stage Stage
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Deps are the collaborators of an Orchestrator. Fallback is optional;
// without it escalation never runs.
type Deps struct {
	Embedder  Embedder
	Retriever Retriever
	Reasoner  llm.Provider
	Fallback  EvidenceSource
	Profile   profile.Profile
	Logger    *zap.Logger
}

// Options bound the work of a single analysis. Zero numeric fields take the
// defaults from DefaultOptions.
type Options struct {
	MaxLogChars        int
	MaxContextChars    int
	TopK               int
	Temperature        float64
	MaxTokens          int
	Escalation         bool
	FallbackTopK       int
	FallbackQueryChars int
}

// DefaultOptions returns the standard analysis bounds.
func DefaultOptions() Options {
	return Options{
		MaxLogChars:        12000,
		MaxContextChars:    8000,
		TopK:               6,
		Temperature:        0.2,
		MaxTokens:          2048,
		Escalation:         true,
		FallbackTopK:       3,
		FallbackQueryChars: 300,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.MaxLogChars <= 0 {
		o.MaxLogChars = d.MaxLogChars
	}
	if o.MaxContextChars <= 0 {
		o.MaxContextChars = d.MaxContextChars
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.Temperature <= 0 {
		o.Temperature = d.Temperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.FallbackTopK <= 0 {
		o.FallbackTopK = d.FallbackTopK
	}
	if o.FallbackQueryChars <= 0 {
		o.FallbackQueryChars = d.FallbackQueryChars
	}
}

// Orchestrator runs analyses. It holds no per-request state and is safe for
// concurrent use when its collaborators are.
type Orchestrator struct {
	embedder  Embedder
	retriever Retriever
	reasoner  llm.Provider
	fallback  EvidenceSource
	profile   profile.Profile
	opts      Options
	logger    *zap.Logger
	metrics   *Metrics

	plannerSystem string
	criticSystem  string
}

// New builds an Orchestrator. A zero Profile selects the default profile.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case deps.Retriever == nil:
		return nil, errors.New("pipeline: retriever is required")
	case deps.Reasoner == nil:
		return nil, errors.New("pipeline: reasoner is required")
	}
	prof := deps.Profile
	if prof.Name == "" {
		var err error
		if prof, err = profile.Load(""); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()

	return &Orchestrator{
		embedder:      deps.Embedder,
		retriever:     deps.Retriever,
		reasoner:      deps.Reasoner,
		fallback:      deps.Fallback,
		profile:       prof,
		opts:          opts,
		logger:        logger,
		metrics:       NewMetrics(),
		plannerSystem: llm.PlannerSystemPrompt(prof),
		criticSystem:  llm.CriticSystemPrompt(prof),
	}, nil
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Run is the record of one analysis.
type Run struct {
	Plan      schema.StructuredPlan
	Stages    []Stage
	Contexts  []schema.ContextItem // context window of the selected candidate
	Escalated bool                 // a fallback-augmented round was attempted
	Selected  Selection
}

// Analyze returns the plan for logText. See Run.
func (o *Orchestrator) Analyze(ctx context.Context, logText string) (schema.StructuredPlan, error) {
	r, err := o.Run(ctx, logText)
	if err != nil {
		return schema.StructuredPlan{}, err
	}
	return r.Plan, nil
}

// Run analyzes logText. Unusable reasoner output is recovered locally and
// never returned as an error; the only errors are *TransportError values
// from failed embedder, retriever or reasoner calls.
func (o *Orchestrator) Run(ctx context.Context, logText string) (*Run, error) {
	start := time.Now()
	r, err := o.run(ctx, logText)
	if err != nil {
		o.metrics.AnalysesTotal.WithLabelValues("error").Inc()
		o.logger.Warn("analysis failed", zap.Error(err))
		return nil, err
	}
	o.metrics.AnalysesTotal.WithLabelValues(string(r.Plan.Status)).Inc()
	o.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	o.logger.Info("analysis complete",
		zap.String("status", string(r.Plan.Status)),
		zap.String("selected", string(r.Selected)),
		zap.Bool("escalated", r.Escalated),
		zap.Int("plan_steps", len(r.Plan.PlanSteps)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return r, nil
}

func (o *Orchestrator) run(ctx context.Context, logText string) (*Run, error) {
	r := &Run{}
	logText = textutil.Truncate(logText, o.opts.MaxLogChars)

	o.enter(r, StageEmbed)
	vecs, err := o.embedder.Embed(ctx, []string{logText}, embed.RoleQuery)
	if err != nil {
		return nil, &TransportError{Stage: StageEmbed, Err: err}
	}
	if len(vecs) != 1 {
		return nil, &TransportError{Stage: StageEmbed, Err: fmt.Errorf("expected 1 embedding, got %d", len(vecs))}
	}

	o.enter(r, StageRetrieve)
	items, err := o.retriever.Query(ctx, vecs[0], o.opts.TopK)
	if err != nil {
		return nil, &TransportError{Stage: StageRetrieve, Err: err}
	}
	contexts := Window(items, o.opts.MaxContextChars)
	if len(contexts) == 0 {
		o.logger.Debug("no knowledge base context retrieved")
	}

	first, err := o.round(ctx, r, 0, logText, contexts)
	if kind := llm.KindOf(err); kind != llm.KindNone {
		// Terminal: no critique or escalation for an unusable planner reply.
		o.logger.Warn("planner output unusable; returning canned result", zap.Stringer("kind", kind), zap.Error(err))
		r.Plan = CannedResult(kind, o.profile)
		r.Contexts = contexts
		r.Selected = SelectedCanned
		o.enter(r, StageDone)
		return r, nil
	}
	if err != nil {
		return nil, err
	}

	o.enter(r, StageDecideEscalation)
	if !o.opts.Escalation || o.fallback == nil || !verdict.NeedsEscalation(first) {
		return o.selectPlan(r, first, contexts, SelectedPrimary), nil
	}

	o.enter(r, StageFallbackSearch)
	query := textutil.Prefix(logText, o.opts.FallbackQueryChars)
	hits := o.fallback.Search(query, o.opts.FallbackTopK)
	if len(hits) == 0 {
		o.metrics.EscalationsTotal.WithLabelValues("no_evidence").Inc()
		o.logger.Debug("no fallback evidence; keeping first result")
		return o.selectPlan(r, first, contexts, SelectedPrimary), nil
	}
	r.Escalated = true

	augmented := make([]schema.ContextItem, 0, len(contexts)+len(hits))
	augmented = append(augmented, contexts...)
	augmented = append(augmented, FallbackItems(hits)...)

	second, err := o.round(ctx, r, 1, logText, augmented)
	if kind := llm.KindOf(err); kind != llm.KindNone {
		o.metrics.EscalationsTotal.WithLabelValues("invalid").Inc()
		o.logger.Warn("escalated planner output unusable; keeping first result", zap.Stringer("kind", kind), zap.Error(err))
		return o.selectPlan(r, first, contexts, SelectedPrimary), nil
	}
	if err != nil {
		return nil, err
	}

	// Only one escalation: an unresolved second result yields the first.
	if verdict.NeedsEscalation(second) {
		o.metrics.EscalationsTotal.WithLabelValues("unresolved").Inc()
		return o.selectPlan(r, first, contexts, SelectedPrimary), nil
	}
	o.metrics.EscalationsTotal.WithLabelValues("resolved").Inc()
	return o.selectPlan(r, second, augmented, SelectedEscalated), nil
}

// round runs planner, critic and safety gate once. A content error from the
// planner is returned as is; a critic content error falls back to the
// planner's plan.
func (o *Orchestrator) round(ctx context.Context, r *Run, n int, logText string, contexts []schema.ContextItem) (schema.StructuredPlan, error) {
	st := rounds[n]

	o.enter(r, st.plan)
	planRaw, err := o.reason(ctx, rolePlanner, o.plannerSystem, llm.PlannerPrompt(logText, contexts))
	if err != nil {
		return schema.StructuredPlan{}, &TransportError{Stage: st.plan, Err: err}
	}

	o.enter(r, st.validate)
	plan, err := llm.ParseResponse(planRaw)
	if err != nil {
		o.metrics.ContentFailuresTotal.WithLabelValues(rolePlanner, llm.KindOf(err).String()).Inc()
		return schema.StructuredPlan{}, err
	}

	o.enter(r, st.critique)
	criticRaw, err := o.reason(ctx, roleCritic, o.criticSystem, llm.CriticPrompt(logText, contexts, planRaw))
	if err != nil {
		return schema.StructuredPlan{}, &TransportError{Stage: st.critique, Err: err}
	}

	o.enter(r, st.validateCritic)
	reviewed, err := llm.ParseResponse(criticRaw)
	if err != nil {
		o.metrics.ContentFailuresTotal.WithLabelValues(roleCritic, llm.KindOf(err).String()).Inc()
		o.logger.Warn("critic output unusable; using planner result", zap.String("stage", string(st.validateCritic)), zap.Error(err))
		reviewed = plan
	}

	o.enter(r, st.safety)
	gated := safety.Check(reviewed)
	if safety.Downgraded(reviewed, gated) {
		o.metrics.SafetyDowngrades.Inc()
		o.logger.Warn("safety gate downgraded plan", zap.String("stage", string(st.safety)))
	}
	return gated, nil
}

func (o *Orchestrator) reason(ctx context.Context, role, system, user string) (string, error) {
	o.metrics.ReasonerCallsTotal.WithLabelValues(role).Inc()
	return o.reasoner.Complete(ctx, system, user, o.opts.MaxTokens, o.opts.Temperature)
}

func (o *Orchestrator) selectPlan(r *Run, p schema.StructuredPlan, contexts []schema.ContextItem, sel Selection) *Run {
	o.enter(r, StageSelect)
	r.Plan = p
	r.Contexts = contexts
	r.Selected = sel
	o.enter(r, StageDone)
	return r
}

func (o *Orchestrator) enter(r *Run, s Stage) {
	r.Stages = append(r.Stages, s)
	o.logger.Debug("stage", zap.String("stage", string(s)))
}

// Window keeps the longest prefix of items whose combined text fits within
// budget characters. The first item that would overflow ends the window.
func Window(items []schema.ContextItem, budget int) []schema.ContextItem {
	out := []schema.ContextItem{}
	used := 0
	for _, it := range items {
		n := len([]rune(it.Text))
		if used+n > budget {
			break
		}
		out = append(out, it)
		used += n
	}
	return out
}

// FallbackItems converts fallback hits to context items. The keyword score is
// carried in Distance and Ordinal is the hit's rank.
func FallbackItems(hits []schema.FallbackHit) []schema.ContextItem {
	out := make([]schema.ContextItem, len(hits))
	for i, h := range hits {
		out[i] = schema.ContextItem{
			Text:     h.Title + "\n" + h.Snippet,
			Source:   h.Source,
			Ordinal:  i,
			Distance: float64(h.Score),
			Origin:   schema.OriginWeb,
		}
	}
	return out
}

// CannedResult is the need_more_info plan returned when the planner's reply
// cannot be parsed or validated.
func CannedResult(kind llm.Kind, prof profile.Profile) schema.StructuredPlan {
	errName := "ParseError"
	if kind == llm.KindValidation {
		errName = "ValidationError"
	}
	return schema.StructuredPlan{
		Status:           schema.StatusNeedMoreInfo,
		RootCause:        CannedRootCause,
		Confidence:       schema.ConfidenceLow,
		ReasoningSummary: fmt.Sprintf(cannedSummaryFormat, errName),
		Evidence:         []schema.Evidence{},
		PlanSteps:        []schema.PlanStep{},
		InfoRequests: []schema.InfoRequest{{
			Title:     CannedRequestTitle,
			Command:   prof.DiagnosticCommand,
			Rationale: cannedRationale,
		}},
	}
}
