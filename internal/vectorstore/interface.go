// Package vectorstore provides scoped access to vector-indexed collections.
//
// Two backends are supported: chromem (embedded, zero external services)
// and qdrant (gRPC). Both apply metadata filters server-side so scope
// enforcement never depends on post-filtering in the caller.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCollectionNotFound indicates the named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrEmptyQuery indicates an empty search query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vector store configuration")
)

// SearchOptions bound a similarity search.
type SearchOptions struct {
	// Filters are metadata equality clauses applied server-side.
	Filters map[string]interface{}

	// Limit caps the number of results.
	Limit int

	// MinScore drops results below this similarity threshold.
	MinScore float32

	// Since restricts results to records whose RecencyField is at or
	// after this instant. Zero means no time restriction. Backends that
	// cannot filter by range ignore it.
	Since time.Time

	// RecencyField is the metadata field holding the record's update
	// time as a unix timestamp.
	RecencyField string
}

// SearchResult is one scored record from a similarity search.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]interface{}
}

// Document is a record to index.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
}

// Store is the backend-agnostic interface over a vector-indexed corpus.
type Store interface {
	// Search runs a scoped similarity search against one collection.
	Search(ctx context.Context, collection, query string, opts SearchOptions) ([]SearchResult, error)

	// Count returns the number of records matching the filters. The
	// second return reports whether the count is exact; backends that
	// cannot count under filters return the unfiltered total and false.
	Count(ctx context.Context, collection string, filters map[string]interface{}) (int, bool, error)

	// AddDocuments indexes documents into a collection, creating it if
	// needed.
	AddDocuments(ctx context.Context, collection string, docs []Document) error

	// Close releases backend resources.
	Close() error
}
