package aggregate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrievald/internal/aggregate"
	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
)

type storeCount struct {
	count int
	exact bool
	err   error
}

type fakeStoreCounter struct {
	counts  map[string]storeCount
	filters map[string]map[string]interface{}
}

func (f *fakeStoreCounter) Count(ctx context.Context, collection string, filters map[string]interface{}) (int, bool, error) {
	if f.filters == nil {
		f.filters = make(map[string]map[string]interface{})
	}
	f.filters[collection] = filters

	c, ok := f.counts[collection]
	if !ok {
		return 0, true, nil
	}
	return c.count, c.exact, c.err
}

type fakeRecordCounter struct {
	counts map[string]int
	err    error
	calls  int
}

func (f *fakeRecordCounter) Count(ctx context.Context, collection string, filters map[string]interface{}) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[collection], nil
}

func aggregateAnalysis(collections ...string) analyzer.Analysis {
	return analyzer.Analysis{
		NeedsContext:      true,
		TargetCollections: collections,
		QueryType:         analyzer.QueryAggregate,
	}
}

func ownerScopes(collections ...string) scope.Set {
	scopes := make(scope.Set, len(collections))
	for _, c := range collections {
		scopes[c] = scope.Scope{Filters: map[string]interface{}{"owner_id": "u1"}}
	}
	return scopes
}

func TestCountExact(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {count: 42, exact: true},
	}}
	c := aggregate.NewCounter(store, nil, nil)

	result, err := c.Count(context.Background(), aggregateAnalysis("invoices"), ownerScopes("invoices"))
	require.NoError(t, err)

	assert.Equal(t, aggregate.CollectionCount{Count: 42}, result.Counts["invoices"])
	assert.False(t, result.Partial)
}

func TestCountInexactIsApproximate(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {count: 1000, exact: false},
	}}
	c := aggregate.NewCounter(store, nil, nil)

	result, err := c.Count(context.Background(), aggregateAnalysis("invoices"), ownerScopes("invoices"))
	require.NoError(t, err)

	assert.Equal(t, aggregate.CollectionCount{Count: 1000, Approximate: true}, result.Counts["invoices"])
}

func TestCountRecordCounterMakesExact(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {count: 1000, exact: false},
	}}
	record := &fakeRecordCounter{counts: map[string]int{"invoices": 37}}
	c := aggregate.NewCounter(store, record, nil)

	result, err := c.Count(context.Background(), aggregateAnalysis("invoices"), ownerScopes("invoices"))
	require.NoError(t, err)

	assert.Equal(t, 1, record.calls)
	assert.Equal(t, aggregate.CollectionCount{Count: 37}, result.Counts["invoices"])
}

func TestCountRecordCounterNotConsultedWhenExact(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {count: 42, exact: true},
	}}
	record := &fakeRecordCounter{counts: map[string]int{"invoices": 99}}
	c := aggregate.NewCounter(store, record, nil)

	result, err := c.Count(context.Background(), aggregateAnalysis("invoices"), ownerScopes("invoices"))
	require.NoError(t, err)

	assert.Equal(t, 0, record.calls)
	assert.Equal(t, 42, result.Counts["invoices"].Count)
}

func TestCountPartialOnStoreFailure(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices":  {count: 42, exact: true},
		"documents": {err: errors.New("store down")},
	}}
	c := aggregate.NewCounter(store, nil, nil)

	result, err := c.Count(context.Background(), aggregateAnalysis("invoices", "documents"), ownerScopes("invoices", "documents"))
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.NotContains(t, result.Counts, "documents")
	assert.Equal(t, 42, result.Counts["invoices"].Count)
}

func TestCountRecordCounterRescuesStoreFailure(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {err: errors.New("store down")},
	}}
	record := &fakeRecordCounter{counts: map[string]int{"invoices": 12}}
	c := aggregate.NewCounter(store, record, nil)

	result, err := c.Count(context.Background(), aggregateAnalysis("invoices"), ownerScopes("invoices"))
	require.NoError(t, err)

	assert.False(t, result.Partial)
	assert.Equal(t, aggregate.CollectionCount{Count: 12}, result.Counts["invoices"])
}

func TestCountAllFailed(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {err: errors.New("store down")},
	}}
	c := aggregate.NewCounter(store, nil, nil)

	_, err := c.Count(context.Background(), aggregateAnalysis("invoices"), ownerScopes("invoices"))
	assert.ErrorIs(t, err, aggregate.ErrAllCountsFailed)
}

func TestCountUnrestrictedScopeSendsNoFilters(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {count: 9000, exact: true},
	}}
	c := aggregate.NewCounter(store, nil, nil)

	scopes := scope.Set{"invoices": {Unrestricted: true}}
	_, err := c.Count(context.Background(), aggregateAnalysis("invoices"), scopes)
	require.NoError(t, err)

	assert.Nil(t, store.filters["invoices"])
}

func TestCountSkipsScopelessCollection(t *testing.T) {
	store := &fakeStoreCounter{counts: map[string]storeCount{
		"invoices": {count: 42, exact: true},
	}}
	c := aggregate.NewCounter(store, nil, nil)

	result, err := c.Count(context.Background(), aggregateAnalysis("invoices", "unscoped"), ownerScopes("invoices"))
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.NotContains(t, store.filters, "unscoped", "no resolved scope means no count at all")
}
