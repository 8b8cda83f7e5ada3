package stats_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/invalidation"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
	"github.com/fyrsmithlabs/retrievald/internal/stats"
)

type fakeCounter struct {
	count int
	exact bool
	err   error
	calls int
}

func (f *fakeCounter) Count(ctx context.Context, collection string, filters map[string]interface{}) (int, bool, error) {
	f.calls++
	return f.count, f.exact, f.err
}

func newStatsStore(t *testing.T) *config.Store {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return config.NewStore(cfg, "", nil)
}

func TestMeasureBands(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  stats.Band
	}{
		{"zero is low", 0, stats.BandLow},
		{"just below low threshold", 99, stats.BandLow},
		{"at low threshold", 100, stats.BandMedium},
		{"just below medium threshold", 9999, stats.BandMedium},
		{"at medium threshold", 10000, stats.BandHigh},
		{"just below high threshold", 999999, stats.BandHigh},
		{"at high threshold", 1000000, stats.BandVeryHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &fakeCounter{count: tt.count, exact: true}
			probe := stats.NewProbe(counter, nil, newStatsStore(t), nil, nil)

			v, err := probe.Measure(context.Background(), "documents", scope.Scope{
				Filters: map[string]interface{}{"tenant_id": "t1"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Band)
			assert.Equal(t, tt.count, v.Count)
			assert.True(t, v.Exact)
		})
	}
}

func TestMeasureCachesPerScope(t *testing.T) {
	counter := &fakeCounter{count: 50, exact: true}
	probe := stats.NewProbe(counter, nil, newStatsStore(t), nil, nil)
	ctx := context.Background()

	s1 := scope.Scope{Filters: map[string]interface{}{"tenant_id": "t1"}}
	s2 := scope.Scope{Filters: map[string]interface{}{"tenant_id": "t2"}}

	_, err := probe.Measure(ctx, "documents", s1)
	require.NoError(t, err)
	_, err = probe.Measure(ctx, "documents", s1)
	require.NoError(t, err)
	assert.Equal(t, 1, counter.calls, "second identical probe must hit the cache")

	_, err = probe.Measure(ctx, "documents", s2)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.calls, "different scope must probe separately")
}

func TestMeasureInvalidationEvictsFingerprint(t *testing.T) {
	counter := &fakeCounter{count: 50, exact: true}
	bus := invalidation.NewBus()
	probe := stats.NewProbe(counter, nil, newStatsStore(t), bus, nil)
	ctx := context.Background()

	s1 := scope.Scope{Filters: map[string]interface{}{"tenant_id": "t1"}}
	s2 := scope.Scope{Filters: map[string]interface{}{"tenant_id": "t2"}}

	_, err := probe.Measure(ctx, "documents", s1)
	require.NoError(t, err)
	_, err = probe.Measure(ctx, "documents", s2)
	require.NoError(t, err)
	require.Equal(t, 2, counter.calls)

	// Evict only the mutated scope's entry.
	bus.Publish(invalidation.Event{Collection: "documents", ScopeFingerprint: s1.Fingerprint()})

	_, err = probe.Measure(ctx, "documents", s1)
	require.NoError(t, err)
	assert.Equal(t, 3, counter.calls, "invalidated scope must re-probe")

	_, err = probe.Measure(ctx, "documents", s2)
	require.NoError(t, err)
	assert.Equal(t, 3, counter.calls, "untouched scope must stay cached")
}

func TestMeasureInvalidationWithoutFingerprintEvictsCollection(t *testing.T) {
	counter := &fakeCounter{count: 50, exact: true}
	bus := invalidation.NewBus()
	probe := stats.NewProbe(counter, nil, newStatsStore(t), bus, nil)
	ctx := context.Background()

	s1 := scope.Scope{Filters: map[string]interface{}{"tenant_id": "t1"}}
	s2 := scope.Scope{Filters: map[string]interface{}{"tenant_id": "t2"}}

	_, err := probe.Measure(ctx, "documents", s1)
	require.NoError(t, err)
	_, err = probe.Measure(ctx, "documents", s2)
	require.NoError(t, err)

	bus.Publish(invalidation.Event{Collection: "documents"})

	_, err = probe.Measure(ctx, "documents", s1)
	require.NoError(t, err)
	_, err = probe.Measure(ctx, "documents", s2)
	require.NoError(t, err)
	assert.Equal(t, 4, counter.calls, "both scopes must re-probe")
}

type fakeRecordCounter struct {
	count int
	err   error
	calls int
}

func (f *fakeRecordCounter) Count(ctx context.Context, collection string, filters map[string]interface{}) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func TestMeasureInexactConsultsRecordCounter(t *testing.T) {
	// A store that can only report the unfiltered total must not set the
	// band; the scoped system-of-record count does.
	counter := &fakeCounter{count: 2000000, exact: false}
	record := &fakeRecordCounter{count: 50}
	probe := stats.NewProbe(counter, record, newStatsStore(t), nil, nil)

	v, err := probe.Measure(context.Background(), "documents", scope.Scope{
		Filters: map[string]interface{}{"tenant_id": "t1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, record.calls)
	assert.Equal(t, 50, v.Count)
	assert.True(t, v.Exact)
	assert.Equal(t, stats.BandLow, v.Band)
}

func TestMeasureRecordCounterNotConsultedWhenExact(t *testing.T) {
	counter := &fakeCounter{count: 50, exact: true}
	record := &fakeRecordCounter{count: 9}
	probe := stats.NewProbe(counter, record, newStatsStore(t), nil, nil)

	v, err := probe.Measure(context.Background(), "documents", scope.Scope{
		Filters: map[string]interface{}{"tenant_id": "t1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, record.calls)
	assert.Equal(t, 50, v.Count)
}

func TestMeasureRecordCounterFailureKeepsInexactCount(t *testing.T) {
	counter := &fakeCounter{count: 2000000, exact: false}
	record := &fakeRecordCounter{err: errors.New("record store down")}
	probe := stats.NewProbe(counter, record, newStatsStore(t), nil, nil)

	v, err := probe.Measure(context.Background(), "documents", scope.Scope{
		Filters: map[string]interface{}{"tenant_id": "t1"},
	})
	require.NoError(t, err)

	assert.False(t, v.Exact)
	assert.Equal(t, 2000000, v.Count)
	assert.Equal(t, stats.BandVeryHigh, v.Band)
}

func TestMeasureCountError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("backend down")}
	probe := stats.NewProbe(counter, nil, newStatsStore(t), nil, nil)

	_, err := probe.Measure(context.Background(), "documents", scope.Scope{})
	assert.Error(t, err)
}

func TestMeasureAllIsolatesFailures(t *testing.T) {
	counter := &fakeCounter{count: 10, exact: true}
	probe := stats.NewProbe(counter, nil, newStatsStore(t), nil, nil)

	scopes := scope.Set{
		"documents": {Filters: map[string]interface{}{"tenant_id": "t1"}},
	}
	volumes, failures := probe.MeasureAll(context.Background(), scopes)

	assert.Len(t, volumes, 1)
	assert.Empty(t, failures)
	assert.Equal(t, stats.BandLow, volumes["documents"].Band)
}
