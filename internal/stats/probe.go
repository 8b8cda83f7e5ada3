package stats

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/invalidation"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
)

// Counter counts records matching a filter. Satisfied by the vector
// store backends.
type Counter interface {
	Count(ctx context.Context, collection string, filters map[string]interface{}) (int, bool, error)
}

// RecordCounter counts records in a system of record. Consulted when the
// vector store cannot count exactly under a filter, so volume bands
// reflect what the scope actually sees.
type RecordCounter interface {
	Count(ctx context.Context, collection string, filters map[string]interface{}) (int, error)
}

// Volume is the probed corpus volume for one (collection, scope) pair.
type Volume struct {
	// Count is the number of records visible to the scope.
	Count int

	// Exact reports whether Count came from an exact scoped count.
	Exact bool

	// Band is the coarse classification of Count.
	Band Band
}

// Probe measures scoped corpus volume with caching.
//
// Results are cached per (collection, scope fingerprint) with a TTL, and
// evicted early when an invalidation event for the collection arrives.
// An event carrying a fingerprint evicts only that scope's entry; one
// without a fingerprint evicts the whole collection.
type Probe struct {
	counter Counter
	record  RecordCounter
	store   *config.Store
	cache   *cache
	logger  *logging.Logger
}

// NewProbe creates a probe and subscribes it to invalidation events.
// record may be nil when no system of record is configured; inexact
// store counts are then used as-is.
func NewProbe(counter Counter, record RecordCounter, store *config.Store, bus *invalidation.Bus, logger *logging.Logger) *Probe {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := store.Current().Stats

	p := &Probe{
		counter: counter,
		record:  record,
		store:   store,
		cache:   newCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		logger:  logger.Named("stats"),
	}

	if bus != nil {
		bus.Subscribe(func(event invalidation.Event) {
			p.cache.invalidate(event.Collection, event.ScopeFingerprint)
		})
	}

	return p
}

// Measure returns the corpus volume a scope sees in one collection.
func (p *Probe) Measure(ctx context.Context, collection string, s scope.Scope) (Volume, error) {
	key := cacheKey(collection, s.Fingerprint())
	if v, ok := p.cache.get(key); ok {
		CacheHitsTotal.Inc()
		return v, nil
	}
	CacheMissesTotal.Inc()

	var filters map[string]interface{}
	if !s.Unrestricted {
		filters = s.Filters
	}

	count, exact, err := p.counter.Count(ctx, collection, filters)
	if err != nil {
		ProbesTotal.WithLabelValues("error").Inc()
		return Volume{}, fmt.Errorf("counting collection %s: %w", collection, err)
	}

	if !exact && p.record != nil {
		recordCount, recordErr := p.record.Count(ctx, collection, filters)
		if recordErr == nil {
			count, exact = recordCount, true
		} else {
			p.logger.Warn(ctx, "system-of-record count failed, keeping inexact count",
				zap.String("collection", collection),
				zap.Error(recordErr),
			)
		}
	}

	v := Volume{
		Count: count,
		Exact: exact,
		Band:  classify(count, p.store.Current().Stats.Bands),
	}
	p.cache.set(key, collection, v)
	ProbesTotal.WithLabelValues("success").Inc()

	p.logger.Debug(ctx, "probed corpus volume",
		zap.String("collection", collection),
		zap.Int("count", count),
		zap.Bool("exact", exact),
		zap.String("band", string(v.Band)),
	)
	return v, nil
}

// MeasureAll probes every collection in the scope set. Collections whose
// probe fails are reported in the error map; successful ones are always
// returned.
func (p *Probe) MeasureAll(ctx context.Context, scopes scope.Set) (map[string]Volume, map[string]error) {
	volumes := make(map[string]Volume, len(scopes))
	var failures map[string]error

	for collection, s := range scopes {
		v, err := p.Measure(ctx, collection, s)
		if err != nil {
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[collection] = err
			continue
		}
		volumes[collection] = v
	}
	return volumes, failures
}
