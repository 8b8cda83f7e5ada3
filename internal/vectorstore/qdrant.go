package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

var qdrantTracer = otel.Tracer("github.com/fyrsmithlabs/retrievald/internal/vectorstore")

const qdrantHealthTimeout = 5 * time.Second

// QdrantStore is a vector store backed by a qdrant server over gRPC.
//
// Unlike chromem it supports range conditions, so time windows become
// server-side filters on the recency field, and counts under filters
// are exact.
type QdrantStore struct {
	client   *qdrant.Client
	embedder embeddings.Embedder
	timeout  time.Duration
	logger   *logging.Logger
}

// NewQdrantStore connects to qdrant and verifies the connection.
func NewQdrantStore(cfg config.QdrantConfig, embedder embeddings.Embedder, logger *logging.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("qdrant")

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), qdrantHealthTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	if !cfg.UseTLS {
		logger.Warn(context.Background(), "qdrant gRPC using plaintext, insecure for production")
	}

	return &QdrantStore{
		client:   client,
		embedder: embedder,
		timeout:  cfg.RequestTimeout,
		logger:   logger,
	}, nil
}

// Search embeds the query and runs a filtered similarity search.
func (s *QdrantStore) Search(ctx context.Context, collection, query string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", opts.Limit),
	)

	start := time.Now()
	defer func() {
		SearchDuration.WithLabelValues("qdrant", collection).Observe(time.Since(start).Seconds())
	}()

	if query == "" {
		SearchesTotal.WithLabelValues("qdrant", "error").Inc()
		return nil, ErrEmptyQuery
	}
	if opts.Limit <= 0 {
		SearchesTotal.WithLabelValues("qdrant", "error").Inc()
		return nil, fmt.Errorf("limit must be positive, got %d", opts.Limit)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		SearchesTotal.WithLabelValues("qdrant", "error").Inc()
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildQdrantFilter(opts.Filters, opts.Since, opts.RecencyField),
		Limit:          qdrant.PtrOf(uint64(opts.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.MinScore > 0 {
		req.ScoreThreshold = qdrant.PtrOf(opts.MinScore)
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		SearchesTotal.WithLabelValues("qdrant", "error").Inc()
		return nil, mapQdrantError(collection, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, scoredPointToResult(point))
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	SearchesTotal.WithLabelValues("qdrant", "success").Inc()
	ResultsReturned.WithLabelValues("qdrant").Observe(float64(len(results)))

	s.logger.Debug(ctx, "searched qdrant collection",
		zap.String("collection", collection),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Count returns the exact number of points matching the filters.
func (s *QdrantStore) Count(ctx context.Context, collection string, filters map[string]interface{}) (int, bool, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Count")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         buildQdrantFilter(filters, time.Time{}, ""),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		CountsTotal.WithLabelValues("qdrant", "error").Inc()
		return 0, false, mapQdrantError(collection, err)
	}

	CountsTotal.WithLabelValues("qdrant", "success").Inc()
	return int(count), true, nil
}

// AddDocuments embeds and upserts documents into a collection.
func (s *QdrantStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("doc_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("embedding documents: %w", err)
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		payload := make(map[string]any, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			payload[k] = v
		}
		payload["content"] = doc.Content

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upserting points to %s: %w", collection, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// buildQdrantFilter converts scope filters and an optional time window
// into a qdrant must-filter. Returns nil when there is nothing to filter.
func buildQdrantFilter(filters map[string]interface{}, since time.Time, recencyField string) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filters)+1)

	for field, value := range filters {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(field, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(field, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(field, v))
		default:
			conditions = append(conditions, qdrant.NewMatch(field, fmt.Sprintf("%v", v)))
		}
	}

	if !since.IsZero() && recencyField != "" {
		conditions = append(conditions, qdrant.NewRange(recencyField, &qdrant.Range{
			Gte: qdrant.PtrOf(float64(since.Unix())),
		}))
	}

	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func scoredPointToResult(point *qdrant.ScoredPoint) SearchResult {
	result := SearchResult{Score: point.GetScore()}

	if id := point.GetId(); id != nil {
		if uuid := id.GetUuid(); uuid != "" {
			result.ID = uuid
		} else {
			result.ID = fmt.Sprintf("%d", id.GetNum())
		}
	}

	payload := point.GetPayload()
	if len(payload) == 0 {
		return result
	}
	metadata := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "content" {
			result.Content = v.GetStringValue()
			continue
		}
		metadata[k] = qdrantValueToInterface(v)
	}
	if len(metadata) > 0 {
		result.Metadata = metadata
	}
	return result
}

func qdrantValueToInterface(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}

func mapQdrantError(collection string, err error) error {
	if status.Code(err) == grpccodes.NotFound {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return fmt.Errorf("qdrant request failed: %w", err)
}
