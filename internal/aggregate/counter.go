// Package aggregate answers count questions without similarity search.
//
// Counts run under the same scope filters retrieval would have used, so
// the number is consistent with what the principal is authorized to see.
package aggregate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
)

// ErrAllCountsFailed indicates no collection could be counted.
var ErrAllCountsFailed = errors.New("all counts failed")

// StoreCounter counts records in the vector store. Satisfied by the
// vectorstore backends.
type StoreCounter interface {
	Count(ctx context.Context, collection string, filters map[string]interface{}) (int, bool, error)
}

// RecordCounter counts records in a system of record. Used when the
// vector store cannot count authoritatively under a filter.
type RecordCounter interface {
	Count(ctx context.Context, collection string, filters map[string]interface{}) (int, error)
}

// CollectionCount is one collection's scoped count.
type CollectionCount struct {
	Count int `json:"count"`

	// Approximate is true when no authoritative count was available
	// and the number is an estimate.
	Approximate bool `json:"approximate"`
}

// Result holds per-collection counts. Partial is true when some target
// collection could not be counted.
type Result struct {
	Counts  map[string]CollectionCount
	Partial bool
}

// Counter produces scoped per-collection counts.
type Counter struct {
	store  StoreCounter
	record RecordCounter
	logger *logging.Logger
}

// NewCounter creates a counter. record may be nil when no system of
// record is configured; inexact store counts are then flagged
// approximate.
func NewCounter(store StoreCounter, record RecordCounter, logger *logging.Logger) *Counter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Counter{
		store:  store,
		record: record,
		logger: logger.Named("aggregate"),
	}
}

// Count counts each target collection under its resolved scope.
//
// A collection whose count fails entirely is dropped and the result is
// marked Partial. The error return is non-nil only when every target
// failed.
func (c *Counter) Count(ctx context.Context, analysis analyzer.Analysis, scopes scope.Set) (*Result, error) {
	result := &Result{Counts: make(map[string]CollectionCount, len(analysis.TargetCollections))}

	attempted := 0
	for _, collection := range analysis.TargetCollections {
		s, ok := scopes[collection]
		if !ok {
			c.logger.Warn(ctx, "skipping count for collection without resolved scope",
				zap.String("collection", collection),
			)
			result.Partial = true
			continue
		}
		attempted++

		var filters map[string]interface{}
		if !s.Unrestricted {
			filters = s.Filters
		}

		count, exact, err := c.store.Count(ctx, collection, filters)
		if err != nil {
			c.logger.Warn(ctx, "store count failed",
				zap.String("collection", collection),
				zap.Error(err),
			)
			count, exact = 0, false
		}

		if (!exact || err != nil) && c.record != nil {
			recordCount, recordErr := c.record.Count(ctx, collection, filters)
			if recordErr == nil {
				result.Counts[collection] = CollectionCount{Count: recordCount}
				continue
			}
			c.logger.Warn(ctx, "system-of-record count failed",
				zap.String("collection", collection),
				zap.Error(recordErr),
			)
		}

		if err != nil {
			result.Partial = true
			continue
		}
		result.Counts[collection] = CollectionCount{Count: count, Approximate: !exact}
	}

	if attempted > 0 && len(result.Counts) == 0 {
		return nil, ErrAllCountsFailed
	}
	return result, nil
}
