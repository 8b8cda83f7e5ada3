package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/aggregate"
	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/assembler"
	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/llm"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/principal"
	"github.com/fyrsmithlabs/retrievald/internal/retriever"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
	"github.com/fyrsmithlabs/retrievald/internal/stats"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/retrievald/internal/orchestrator")

const answerSystemPrompt = `You are a helpful assistant. Answer the user's message.
When retrieved context is provided, ground your answer in it and cite
sources by their bracketed index, like [0]. Do not invent citations.
If the context does not cover the question, say so and answer from
general knowledge.`

// QueryAnalyzer decides whether and how to retrieve.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, message string, history []llm.Message, candidates []string) analyzer.Analysis
}

// ScopeResolver resolves per-collection access scopes.
type ScopeResolver interface {
	ResolveAll(ctx context.Context, p *principal.Principal, collections []string) scope.Set
}

// VolumeProber measures scoped corpus volume.
type VolumeProber interface {
	MeasureAll(ctx context.Context, scopes scope.Set) (map[string]stats.Volume, map[string]error)
}

// AggregateCounter answers count queries.
type AggregateCounter interface {
	Count(ctx context.Context, analysis analyzer.Analysis, scopes scope.Set) (*aggregate.Result, error)
}

// Request is one message to handle.
type Request struct {
	Principal  *principal.Principal
	Message    string
	History    []llm.Message
	Candidates []string
}

// Response is the answered request with its provenance.
type Response struct {
	Answer    string                               `json:"answer"`
	Sources   []Source                             `json:"sources,omitempty"`
	ListItems []ListItem                           `json:"list_items,omitempty"`
	Counts    map[string]aggregate.CollectionCount `json:"counts,omitempty"`
	QueryType analyzer.QueryType                   `json:"query_type"`

	// Partial is true when retrieval or counting lost some sources.
	Partial bool `json:"partial,omitempty"`

	// Degraded is true when a pipeline step failed and the answer was
	// produced with less context than intended.
	Degraded bool `json:"degraded,omitempty"`
}

// Orchestrator wires the pipeline together.
type Orchestrator struct {
	analyzer  QueryAnalyzer
	resolver  ScopeResolver
	probe     VolumeProber
	planner   *budget.Planner
	retriever retriever.Retriever
	counter   AggregateCounter
	model     llm.Model
	cfg       *config.Store
	logger    *logging.Logger
}

// New creates an orchestrator.
func New(
	queryAnalyzer QueryAnalyzer,
	resolver ScopeResolver,
	probe VolumeProber,
	planner *budget.Planner,
	ret retriever.Retriever,
	counter AggregateCounter,
	model llm.Model,
	cfg *config.Store,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		analyzer:  queryAnalyzer,
		resolver:  resolver,
		probe:     probe,
		planner:   planner,
		retriever: ret,
		counter:   counter,
		model:     model,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
	}
}

// Handle runs the full pipeline for one message.
//
// Analysis always completes (its own fallback absorbs failure), and any
// failure in retrieving, counting, or assembling degrades to invoking
// the model with empty context. Only a failed final invocation returns
// an error.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.Handle")
	defer span.End()

	start := time.Now()
	defer func() { RequestDuration.Observe(time.Since(start).Seconds()) }()

	state := StateAnalyzing
	analysis := o.analyzer.Analyze(ctx, req.Message, req.History, req.Candidates)
	if analysis.Degraded {
		DegradedStepsTotal.WithLabelValues(string(StateAnalyzing)).Inc()
	}
	span.SetAttributes(
		attribute.Bool("needs_context", analysis.NeedsContext),
		attribute.String("query_type", string(analysis.QueryType)),
	)

	resp := &Response{
		QueryType: analysis.QueryType,
		Degraded:  analysis.Degraded,
	}

	var (
		assembled assembler.AssembledContext
		path      = "skipped"
	)

	switch {
	case !analysis.NeedsContext:
		state = StateSkipped

	case analysis.QueryType == analyzer.QueryAggregate:
		state = StateCounting
		path = "counted"
		scopes := o.resolver.ResolveAll(ctx, req.Principal, analysis.TargetCollections)
		result, err := o.counter.Count(ctx, analysis, scopes)
		if err != nil {
			o.logger.Warn(ctx, "counting failed, degrading to empty context",
				zap.Error(err),
			)
			DegradedStepsTotal.WithLabelValues(string(StateCounting)).Inc()
			resp.Degraded = true
			break
		}
		resp.Counts = result.Counts
		resp.Partial = result.Partial

	default:
		state = StateRetrieving
		path = "retrieved"
		items, combined := o.retrieve(ctx, req.Principal, analysis, resp)

		state = StateAssembling
		assembled = assembler.Assemble(items, combined)
		ContextTokens.Observe(float64(assembled.TotalTokens))
	}

	state = StateInvoking
	answer, err := o.invoke(ctx, req, assembled, resp.Counts)
	if err != nil {
		span.RecordError(err)
		RequestsTotal.WithLabelValues(path, "error").Inc()
		return nil, fmt.Errorf("invoking model: %w", err)
	}

	state = StateDone
	resp.Answer = answer
	resp.Sources = sourcesFrom(assembled)
	if len(resp.Sources) > 0 {
		resp.ListItems = extractListItems(answer, len(resp.Sources)-1)
	}

	RequestsTotal.WithLabelValues(path, "success").Inc()
	o.logger.Info(ctx, "handled request",
		zap.String("state", string(state)),
		zap.String("path", path),
		zap.Int("sources", len(resp.Sources)),
		zap.Bool("partial", resp.Partial),
		zap.Bool("degraded", resp.Degraded),
	)
	return resp, nil
}

// retrieve runs the scope, volume, budget, and retrieval steps, returning
// the ranked items and the combined budget to assemble them under. Any
// failure returns no items and marks the response degraded.
func (o *Orchestrator) retrieve(ctx context.Context, p *principal.Principal, analysis analyzer.Analysis, resp *Response) ([]retriever.Item, budget.Budget) {
	scopes := o.resolver.ResolveAll(ctx, p, analysis.TargetCollections)

	volumes, probeFailures := o.probe.MeasureAll(ctx, scopes)
	for collection, err := range probeFailures {
		// A failed probe only costs band precision: the planner falls
		// back to the most restrictive band for that collection.
		o.logger.Warn(ctx, "volume probe failed",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}

	tier := principal.TierGuest
	if p != nil {
		tier = p.Tier
	}
	budgets := o.planner.PlanAll(tier, volumes, analysis.TargetCollections)
	combined := budget.Combine(budgets)

	result, err := o.retriever.Retrieve(ctx, analysis, scopes, budgets)
	if err != nil {
		o.logger.Warn(ctx, "retrieval failed, degrading to empty context",
			zap.Error(err),
		)
		DegradedStepsTotal.WithLabelValues(string(StateRetrieving)).Inc()
		resp.Degraded = true
		return nil, combined
	}
	resp.Partial = result.Partial
	return result.Items, combined
}

// invoke calls the model with the assembled context injected into the
// system prompt. The call carries its own deadline so a hung model
// cannot stall the request indefinitely.
func (o *Orchestrator) invoke(ctx context.Context, req Request, assembled assembler.AssembledContext, counts map[string]aggregate.CollectionCount) (string, error) {
	system := answerSystemPrompt
	if fragment := assembled.Render(); fragment != "" {
		system = system + "\n\n" + fragment
	}
	if len(counts) > 0 {
		system = system + "\n\n" + renderCounts(counts)
	}

	timeout := o.cfg.Current().LLM.Timeout
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	messages := append(append([]llm.Message(nil), req.History...), llm.Message{Role: "user", Content: req.Message})
	return o.model.Complete(callCtx, system, messages)
}

// renderCounts formats scoped counts for the prompt, flagging estimates.
func renderCounts(counts map[string]aggregate.CollectionCount) string {
	collections := make([]string, 0, len(counts))
	for collection := range counts {
		collections = append(collections, collection)
	}
	sort.Strings(collections)

	var sb strings.Builder
	sb.WriteString("Record counts visible to this user:\n")
	for _, collection := range collections {
		c := counts[collection]
		if c.Approximate {
			fmt.Fprintf(&sb, "- %s: about %d (approximate)\n", collection, c.Count)
		} else {
			fmt.Fprintf(&sb, "- %s: %d\n", collection, c.Count)
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
