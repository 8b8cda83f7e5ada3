package analyzer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/llm"
)

type fakeModel struct {
	response string
	err      error
	calls    int
}

func (f *fakeModel) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newAnalyzer(t *testing.T, model llm.Model) *analyzer.Analyzer {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return analyzer.New(model, config.NewStore(cfg, "", nil), nil)
}

var candidates = []string{"documents", "invoices"}

func TestAnalyzeAggregatePreCheck(t *testing.T) {
	model := &fakeModel{response: `{"needs_context": false}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "how many invoices do I have", nil, []string{"invoices"})

	assert.Equal(t, 0, model.calls, "lexical aggregate match must not invoke the model")
	assert.True(t, got.NeedsContext)
	assert.Equal(t, analyzer.QueryAggregate, got.QueryType)
	assert.Equal(t, []string{"invoices"}, got.TargetCollections)
	assert.Equal(t, []string{"how many invoices do I have"}, got.SearchQueries)
}

func TestAnalyzeValidModelOutput(t *testing.T) {
	model := &fakeModel{response: `{
		"needs_context": true,
		"search_queries": ["quarterly revenue report"],
		"target_collections": ["documents"],
		"query_type": "factual",
		"reasoning": "user asks about a specific report"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "what did the quarterly revenue report say about margins in the northern region", nil, candidates)

	assert.Equal(t, 1, model.calls)
	assert.True(t, got.NeedsContext)
	assert.False(t, got.Degraded)
	assert.Equal(t, analyzer.QueryFactual, got.QueryType)
	assert.Equal(t, []string{"quarterly revenue report"}, got.SearchQueries)
	assert.Equal(t, []string{"documents"}, got.TargetCollections)
}

func TestAnalyzeStripsMarkdownFences(t *testing.T) {
	model := &fakeModel{response: "```json\n{\"needs_context\": true, \"search_queries\": [\"project alpha deadline status\"], \"target_collections\": [\"documents\"], \"query_type\": \"factual\"}\n```"}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "when is the deadline for project alpha according to the planning notes", nil, candidates)

	assert.False(t, got.Degraded)
	assert.Equal(t, []string{"project alpha deadline status"}, got.SearchQueries)
}

func TestAnalyzeDropsHallucinatedCollections(t *testing.T) {
	model := &fakeModel{response: `{
		"needs_context": true,
		"search_queries": ["payment terms for supplier contracts"],
		"target_collections": ["documents", "secrets", "everything"],
		"query_type": "factual"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "what payment terms do our supplier contracts specify", nil, candidates)

	assert.Equal(t, []string{"documents"}, got.TargetCollections)
}

func TestAnalyzeAllCollectionsHallucinated(t *testing.T) {
	model := &fakeModel{response: `{
		"needs_context": true,
		"search_queries": ["supplier contract payment terms"],
		"target_collections": ["made-up"],
		"query_type": "factual"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "what payment terms do our supplier contracts specify", nil, candidates)

	assert.ElementsMatch(t, candidates, got.TargetCollections, "no surviving collection falls back to all candidates")
}

func TestAnalyzeEmptyQueriesFallBackToMessage(t *testing.T) {
	message := "tell me about the architecture decisions made for the billing system"
	model := &fakeModel{response: `{
		"needs_context": true,
		"search_queries": ["", "   "],
		"target_collections": ["documents"],
		"query_type": "conversational"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), message, nil, candidates)

	assert.Equal(t, []string{message}, got.SearchQueries)
}

func TestAnalyzeInvalidQueryType(t *testing.T) {
	model := &fakeModel{response: `{
		"needs_context": true,
		"search_queries": ["deployment runbook for the ingestion service"],
		"target_collections": ["documents"],
		"query_type": "telepathic"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "where is the deployment runbook for the ingestion service documented", nil, candidates)

	assert.Equal(t, analyzer.QueryConversational, got.QueryType)
}

func TestAnalyzeModelErrorDegrades(t *testing.T) {
	message := "summarize what our documents say about the migration plan timeline"
	model := &fakeModel{err: errors.New("model unavailable")}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), message, nil, candidates)

	assert.True(t, got.Degraded)
	assert.True(t, got.NeedsContext, "uncertainty must degrade toward retrieval, not silence")
	assert.Equal(t, []string{message}, got.SearchQueries)
	assert.ElementsMatch(t, candidates, got.TargetCollections)
	assert.Equal(t, analyzer.QueryConversational, got.QueryType)
}

func TestAnalyzeGarbageOutputDegrades(t *testing.T) {
	message := "what does the incident review for the March outage conclude about root cause"
	model := &fakeModel{response: "I think you should search for outage stuff, probably."}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), message, nil, candidates)

	assert.True(t, got.Degraded)
	assert.True(t, got.NeedsContext)
	assert.Equal(t, []string{message}, got.SearchQueries)
}

func TestAnalyzePreservesQuotedPhrases(t *testing.T) {
	model := &fakeModel{response: `{
		"needs_context": true,
		"search_queries": ["error handling conventions"],
		"target_collections": ["documents"],
		"query_type": "factual"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), `find the document titled "Error Budget Policy" and explain how it applies here`, nil, candidates)

	assert.Contains(t, got.SearchQueries, "Error Budget Policy", "quoted phrases must survive verbatim")
}

func TestAnalyzeShortMessageKeptVerbatim(t *testing.T) {
	model := &fakeModel{response: `{
		"needs_context": true,
		"search_queries": ["information about kubernetes ingress configuration"],
		"target_collections": ["documents"],
		"query_type": "factual"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "ingress TLS config", nil, candidates)

	assert.Contains(t, got.SearchQueries, "ingress TLS config")
}

func TestAnalyzeEmptyMessage(t *testing.T) {
	model := &fakeModel{}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "   ", nil, candidates)

	assert.False(t, got.NeedsContext)
	assert.Equal(t, 0, model.calls)
}

func TestAnalyzeNoContextNeeded(t *testing.T) {
	model := &fakeModel{response: `{
		"needs_context": false,
		"query_type": "conversational",
		"reasoning": "greeting"
	}`}
	a := newAnalyzer(t, model)

	got := a.Analyze(context.Background(), "hello there, hope your day is going well my friend", nil, candidates)

	assert.False(t, got.NeedsContext)
	assert.False(t, got.Degraded)
}
