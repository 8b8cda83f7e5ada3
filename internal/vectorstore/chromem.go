package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

var chromemTracer = otel.Tracer("github.com/fyrsmithlabs/retrievald/internal/vectorstore")

// ChromemStore is an embedded vector store backed by chromem-go.
//
// It runs in-process with optional persistence, which makes it the default
// backend for single-node deployments. Metadata filters are equality-only
// and chromem cannot count under a filter, so filtered counts come back
// inexact. Time-window restrictions are not supported and are ignored.
type ChromemStore struct {
	db       *chromem.DB
	embedder embeddings.Embedder
	logger   *logging.Logger
}

// NewChromemStore creates a chromem store. An empty path selects a purely
// in-memory database.
func NewChromemStore(cfg config.ChromemConfig, embedder embeddings.Embedder, logger *logging.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database: %w", err)
		}
	}

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		logger:   logger.Named("chromem"),
	}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Search runs a similarity search against one collection.
//
// chromem requires nResults <= document count, so the limit is clamped to
// the collection size. The Since option is ignored: chromem has no range
// filters.
func (s *ChromemStore) Search(ctx context.Context, collection, query string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", opts.Limit),
	)

	start := time.Now()
	defer func() {
		SearchDuration.WithLabelValues("chromem", collection).Observe(time.Since(start).Seconds())
	}()

	if query == "" {
		SearchesTotal.WithLabelValues("chromem", "error").Inc()
		return nil, ErrEmptyQuery
	}
	if opts.Limit <= 0 {
		SearchesTotal.WithLabelValues("chromem", "error").Inc()
		return nil, fmt.Errorf("limit must be positive, got %d", opts.Limit)
	}

	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		SearchesTotal.WithLabelValues("chromem", "error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	docCount := col.Count()
	if docCount == 0 {
		SearchesTotal.WithLabelValues("chromem", "success").Inc()
		return []SearchResult{}, nil
	}
	k := opts.Limit
	if k > docCount {
		k = docCount
	}

	results, err := col.Query(ctx, query, k, stringifyFilters(opts.Filters), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		SearchesTotal.WithLabelValues("chromem", "error").Inc()
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity < opts.MinScore {
			continue
		}
		searchResults = append(searchResults, SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: destringifyMetadata(r.Metadata),
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	SearchesTotal.WithLabelValues("chromem", "success").Inc()
	ResultsReturned.WithLabelValues("chromem").Observe(float64(len(searchResults)))

	s.logger.Debug(ctx, "searched chromem collection",
		zap.String("collection", collection),
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)
	return searchResults, nil
}

// Count returns the number of records in a collection.
//
// chromem cannot count under a metadata filter, so a filtered count
// returns the unfiltered total with exact=false. A missing collection
// counts as zero records.
func (s *ChromemStore) Count(ctx context.Context, collection string, filters map[string]interface{}) (int, bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Count")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		CountsTotal.WithLabelValues("chromem", "success").Inc()
		return 0, true, nil
	}

	total := col.Count()
	CountsTotal.WithLabelValues("chromem", "success").Inc()
	if len(filters) == 0 {
		return total, true, nil
	}
	return total, false, nil
}

// AddDocuments indexes documents, creating the collection if needed.
func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("doc_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting collection %s: %w", collection, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: stringifyFilters(doc.Metadata),
		}
	}

	if err := col.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("adding documents to %s: %w", collection, err)
	}
	return nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

// stringifyFilters converts metadata values to chromem's string-only form.
func stringifyFilters(filters map[string]interface{}) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string]string, len(filters))
	for k, v := range filters {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// destringifyMetadata restores typed values where the string form is
// unambiguous.
func destringifyMetadata(meta map[string]string) map[string]interface{} {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = i
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
			continue
		}
		out[k] = v
	}
	return out
}
