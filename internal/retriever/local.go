package retriever

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

var localTracer = otel.Tracer("github.com/fyrsmithlabs/retrievald/internal/retriever")

// Local retrieves from the in-process vector store.
//
// Every (query, collection) pair is one task. Tasks run concurrently up
// to the configured bound, each under its own timeout, and a failed task
// only loses its own results. The merged outcome is Partial when any
// task failed; only a total wipe-out is an error.
type Local struct {
	store  vectorstore.Store
	cfg    *config.Store
	logger *logging.Logger
}

// NewLocal creates a local retriever.
func NewLocal(store vectorstore.Store, cfg *config.Store, logger *logging.Logger) *Local {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Local{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("retriever"),
	}
}

type searchTask struct {
	query      string
	collection string
}

// Retrieve fans out scoped searches and merges the results.
func (r *Local) Retrieve(ctx context.Context, analysis analyzer.Analysis, scopes scope.Set, budgets map[string]budget.Budget) (*Result, error) {
	ctx, span := localTracer.Start(ctx, "Local.Retrieve")
	defer span.End()

	cfg := r.cfg.Current().Retrieval
	now := time.Now()

	tasks := make([]searchTask, 0, len(analysis.SearchQueries)*len(analysis.TargetCollections))
	partial := false
	for _, collection := range analysis.TargetCollections {
		if _, ok := scopes[collection]; !ok {
			// No resolved scope means no authorized access path.
			r.logger.Warn(ctx, "skipping collection without resolved scope",
				zap.String("collection", collection),
			)
			partial = true
			continue
		}
		for _, query := range analysis.SearchQueries {
			tasks = append(tasks, searchTask{query: query, collection: collection})
		}
	}
	if len(tasks) == 0 {
		return nil, ErrNothingToSearch
	}

	span.SetAttributes(attribute.Int("tasks", len(tasks)))

	var (
		mu       sync.Mutex
		items    []Item
		failures int
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, cfg.MaxConcurrent)

	for _, task := range tasks {
		wg.Add(1)
		go func(task searchTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results, err := r.searchOne(ctx, task, scopes[task.collection], budgets[task.collection], &cfg, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				r.logger.Warn(ctx, "search task failed",
					zap.String("collection", task.collection),
					zap.Error(err),
				)
				return
			}
			items = append(items, results...)
		}(task)
	}
	wg.Wait()

	if failures == len(tasks) {
		SearchTasksTotal.WithLabelValues("failed").Add(float64(failures))
		return nil, ErrAllSearchesFailed
	}
	SearchTasksTotal.WithLabelValues("failed").Add(float64(failures))
	SearchTasksTotal.WithLabelValues("succeeded").Add(float64(len(tasks) - failures))

	combined := budget.Combine(budgets)
	merged := mergeItems(items, cfg.RecencyField, combined.MaxResults)

	span.SetAttributes(
		attribute.Int("failures", failures),
		attribute.Int("results", len(merged)),
	)
	return &Result{
		Items:   merged,
		Partial: partial || failures > 0,
	}, nil
}

func (r *Local) searchOne(ctx context.Context, task searchTask, s scope.Scope, b budget.Budget, cfg *config.RetrievalConfig, now time.Time) ([]Item, error) {
	if cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.SearchTimeout)
		defer cancel()
	}

	opts := vectorstore.SearchOptions{
		Limit:        b.MaxResults,
		MinScore:     float32(cfg.MinScore),
		RecencyField: cfg.RecencyField,
	}
	if !s.Unrestricted {
		opts.Filters = s.Filters
	}
	if b.TimeWindow > 0 {
		opts.Since = now.Add(-b.TimeWindow)
	}

	results, err := r.store.Search(ctx, task.collection, task.query, opts)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(results))
	for i, res := range results {
		items[i] = Item{
			ID:         res.ID,
			Collection: task.collection,
			Content:    res.Content,
			Score:      res.Score,
			Metadata:   res.Metadata,
		}
	}
	return items, nil
}
