package retriever_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/retriever"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
)

type fakeLocal struct {
	result *retriever.Result
	err    error
}

func (f *fakeLocal) Retrieve(ctx context.Context, analysis analyzer.Analysis, scopes scope.Set, budgets map[string]budget.Budget) (*retriever.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeNode struct {
	mu    sync.Mutex
	name  string
	items []retriever.Item
	err   error
	reqs  []retriever.NodeRequest
}

func (f *fakeNode) Name() string { return f.name }

func (f *fakeNode) Search(ctx context.Context, req retriever.NodeRequest) ([]retriever.Item, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeNode) Healthy(ctx context.Context) error { return f.err }

func (f *fakeNode) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func newFederated(t *testing.T, local retriever.Retriever, mutate func(*config.Config), nodes ...retriever.NodeClient) *retriever.Federated {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}
	return retriever.NewFederated(local, nodes, config.NewStore(cfg, "", nil), nil)
}

func federatedScopes() scope.Set {
	return scope.Set{"docs": {Filters: map[string]interface{}{"tenant_id": "t1"}}}
}

func TestFederatedMergesLocalAndRemote(t *testing.T) {
	local := &fakeLocal{result: &retriever.Result{Items: []retriever.Item{
		{ID: "l1", Collection: "docs", Content: "local", Score: 0.9},
	}}}
	node := &fakeNode{name: "east", items: []retriever.Item{
		{ID: "r1", Collection: "docs", Content: "remote", Score: 0.8, Node: "east"},
	}}
	f := newFederated(t, local, nil, node)

	result, err := f.Retrieve(context.Background(), basicAnalysis("docs"), federatedScopes(), basicBudgets("docs"))
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, "l1", result.Items[0].ID)
	assert.Equal(t, "east", result.Items[1].Node)
	assert.False(t, result.Partial)
}

func TestFederatedNodeFailureIsPartial(t *testing.T) {
	local := &fakeLocal{result: &retriever.Result{Items: []retriever.Item{
		{ID: "l1", Collection: "docs", Content: "local", Score: 0.9},
	}}}
	node := &fakeNode{name: "east", err: errors.New("unreachable")}
	f := newFederated(t, local, nil, node)

	result, err := f.Retrieve(context.Background(), basicAnalysis("docs"), federatedScopes(), basicBudgets("docs"))
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.Len(t, result.Items, 1)
}

func TestFederatedLocalFailureRemoteSurvives(t *testing.T) {
	local := &fakeLocal{err: retriever.ErrAllSearchesFailed}
	node := &fakeNode{name: "east", items: []retriever.Item{
		{ID: "r1", Collection: "docs", Content: "remote", Score: 0.8, Node: "east"},
	}}
	f := newFederated(t, local, nil, node)

	result, err := f.Retrieve(context.Background(), basicAnalysis("docs"), federatedScopes(), basicBudgets("docs"))
	require.NoError(t, err)

	assert.True(t, result.Partial)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "r1", result.Items[0].ID)
}

func TestFederatedAllSourcesFailed(t *testing.T) {
	local := &fakeLocal{err: retriever.ErrAllSearchesFailed}
	node := &fakeNode{name: "east", err: errors.New("unreachable")}
	f := newFederated(t, local, nil, node)

	_, err := f.Retrieve(context.Background(), basicAnalysis("docs"), federatedScopes(), basicBudgets("docs"))
	assert.ErrorIs(t, err, retriever.ErrAllSearchesFailed)
}

func TestFederatedBreakerSkipsFailingNode(t *testing.T) {
	local := &fakeLocal{result: &retriever.Result{}}
	node := &fakeNode{name: "east", err: errors.New("unreachable")}
	f := newFederated(t, local, func(cfg *config.Config) {
		cfg.Federation.FailureThreshold = 2
		cfg.Federation.Cooldown = time.Hour
	}, node)

	for i := 0; i < 4; i++ {
		_, err := f.Retrieve(context.Background(), basicAnalysis("docs"), federatedScopes(), basicBudgets("docs"))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, node.searchCount(), "open circuit must stop sending requests to the node")
}

func TestFederatedRequestCarriesScopes(t *testing.T) {
	local := &fakeLocal{result: &retriever.Result{}}
	node := &fakeNode{name: "east"}
	f := newFederated(t, local, nil, node)

	scopes := scope.Set{
		"docs": {Filters: map[string]interface{}{"tenant_id": "t1"}},
		"all":  {Unrestricted: true},
	}
	budgets := map[string]budget.Budget{
		"docs": {MaxResults: 10, MaxTotalTokens: 2000, TimeWindow: 24 * time.Hour},
		"all":  {MaxResults: 10, MaxTotalTokens: 2000},
	}
	_, err := f.Retrieve(context.Background(), basicAnalysis("docs", "all", "unscoped"), scopes, budgets)
	require.NoError(t, err)

	require.Equal(t, 1, node.searchCount())
	req := node.reqs[0]
	assert.ElementsMatch(t, []string{"docs", "all"}, req.Collections, "collection without a scope is not forwarded")
	assert.Equal(t, map[string]interface{}{"tenant_id": "t1"}, req.Scopes["docs"])
	assert.Equal(t, map[string]interface{}{}, req.Scopes["all"], "unrestricted travels as an explicit empty filter map")
	assert.NotContains(t, req.Scopes, "unscoped")
	assert.Positive(t, req.Since, "combined time window becomes an absolute cutoff")
}
