// Package retriever fans scoped similarity searches out over collections
// and merges the results into one ranked list.
//
// Failure isolation is the organizing principle: a slow or broken
// (query, collection) pair costs its own results, never the request.
package retriever

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
)

var (
	// ErrAllSearchesFailed indicates every fan-out task failed.
	ErrAllSearchesFailed = errors.New("all searches failed")

	// ErrNothingToSearch indicates no queries or no collections.
	ErrNothingToSearch = errors.New("nothing to search")
)

// Item is one retrieved record, tagged with where it came from.
type Item struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	Content    string                 `json:"content"`
	Score      float32                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	// Node names the remote corpus node the item came from. Empty for
	// local results.
	Node string `json:"node,omitempty"`
}

// Result is a merged, ranked retrieval outcome.
type Result struct {
	Items []Item

	// Partial is true when some searches failed or were skipped; the
	// items present are still valid.
	Partial bool
}

// Retriever runs scoped retrieval for an analyzed message.
type Retriever interface {
	Retrieve(ctx context.Context, analysis analyzer.Analysis, scopes scope.Set, budgets map[string]budget.Budget) (*Result, error)
}

// recencyOf reads the item's update time from its metadata. Zero when
// absent or unparseable; zero sorts last in tie-breaks.
func recencyOf(item Item, field string) time.Time {
	if field == "" || item.Metadata == nil {
		return time.Time{}
	}
	switch v := item.Metadata[field].(type) {
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	case float64:
		return time.Unix(int64(v), 0)
	case string:
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(unix, 0)
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
