package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
)

// NodeRequest is the search request sent to a remote corpus node.
//
// Scope filters travel with the request so the remote node enforces the
// same restriction server-side. Collections absent from Scopes are not
// searched; unrestricted access is expressed as an explicit empty filter
// map, never by omission.
type NodeRequest struct {
	Queries     []string                          `json:"queries"`
	Collections []string                          `json:"collections"`
	Scopes      map[string]map[string]interface{} `json:"scopes"`
	Limit       int                               `json:"limit"`
	MinScore    float64                           `json:"min_score"`
	Since       int64                             `json:"since,omitempty"`
}

// NodeResponse is a remote node's merged result set.
type NodeResponse struct {
	Items []Item `json:"items"`
}

// NodeClient talks to one remote corpus node.
type NodeClient interface {
	Name() string
	Search(ctx context.Context, req NodeRequest) ([]Item, error)
	Healthy(ctx context.Context) error
}

// HTTPNodeClient is the JSON-over-HTTP NodeClient.
type HTTPNodeClient struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTPNodeClient creates a client for one node.
func NewHTTPNodeClient(cfg config.NodeConfig, timeout time.Duration) *HTTPNodeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNodeClient{
		name:    cfg.Name,
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the configured node name.
func (c *HTTPNodeClient) Name() string { return c.name }

// Search posts the request to the node's search endpoint.
func (c *HTTPNodeClient) Search(ctx context.Context, req NodeRequest) ([]Item, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding node request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building node request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("node %s unreachable: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("node %s returned status %d", c.name, resp.StatusCode)
	}

	var nodeResp NodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&nodeResp); err != nil {
		return nil, fmt.Errorf("decoding node %s response: %w", c.name, err)
	}

	// Tag items with their origin so citations can name the node.
	for i := range nodeResp.Items {
		nodeResp.Items[i].Node = c.name
	}
	return nodeResp.Items, nil
}

// Healthy checks the node's health endpoint.
func (c *HTTPNodeClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node %s health status %d", c.name, resp.StatusCode)
	}
	return nil
}

// Federated retrieves from the local store and remote corpus nodes.
//
// Each node sits behind its own circuit breaker: consecutive failures
// take the node out of rotation for the cooldown instead of taxing
// every request with its timeout. A skipped or failed node marks the
// result Partial; the request errors only when no source at all
// produced results.
type Federated struct {
	local    Retriever
	nodes    []NodeClient
	breakers map[string]*breaker
	cfg      *config.Store
	logger   *logging.Logger
}

// NewFederated wraps a local retriever with remote nodes.
func NewFederated(local Retriever, nodes []NodeClient, cfg *config.Store, logger *logging.Logger) *Federated {
	if logger == nil {
		logger = logging.NewNop()
	}
	fedCfg := cfg.Current().Federation

	breakers := make(map[string]*breaker, len(nodes))
	for _, node := range nodes {
		breakers[node.Name()] = newBreaker(node.Name(), fedCfg.FailureThreshold, fedCfg.Cooldown)
	}

	return &Federated{
		local:    local,
		nodes:    nodes,
		breakers: breakers,
		cfg:      cfg,
		logger:   logger.Named("federated"),
	}
}

// Retrieve fans out to the local store and every healthy node, then
// merges all results under the combined budget.
func (f *Federated) Retrieve(ctx context.Context, analysis analyzer.Analysis, scopes scope.Set, budgets map[string]budget.Budget) (*Result, error) {
	combined := budget.Combine(budgets)
	req := f.buildRequest(analysis, scopes, combined)

	var (
		mu      sync.Mutex
		items   []Item
		partial bool
		sources int
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := f.local.Retrieve(ctx, analysis, scopes, budgets)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			partial = true
			f.logger.Warn(ctx, "local retrieval failed", zap.Error(err))
			return
		}
		items = append(items, result.Items...)
		partial = partial || result.Partial
		sources++
	}()

	for _, node := range f.nodes {
		br := f.breakers[node.Name()]
		if !br.allow() {
			NodeRequestsTotal.WithLabelValues(node.Name(), "skipped").Inc()
			mu.Lock()
			partial = true
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(node NodeClient, br *breaker) {
			defer wg.Done()
			nodeItems, err := node.Search(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				br.failure()
				partial = true
				NodeRequestsTotal.WithLabelValues(node.Name(), "failed").Inc()
				f.logger.Warn(ctx, "node search failed",
					zap.String("node", node.Name()),
					zap.Error(err),
				)
				return
			}
			br.success()
			NodeRequestsTotal.WithLabelValues(node.Name(), "succeeded").Inc()
			items = append(items, nodeItems...)
			sources++
		}(node, br)
	}
	wg.Wait()

	if sources == 0 {
		return nil, ErrAllSearchesFailed
	}

	recencyField := f.cfg.Current().Retrieval.RecencyField
	return &Result{
		Items:   mergeItems(items, recencyField, combined.MaxResults),
		Partial: partial,
	}, nil
}

func (f *Federated) buildRequest(analysis analyzer.Analysis, scopes scope.Set, combined budget.Budget) NodeRequest {
	req := NodeRequest{
		Queries:  analysis.SearchQueries,
		Scopes:   make(map[string]map[string]interface{}, len(analysis.TargetCollections)),
		Limit:    combined.MaxResults,
		MinScore: f.cfg.Current().Retrieval.MinScore,
	}
	for _, collection := range analysis.TargetCollections {
		s, ok := scopes[collection]
		if !ok {
			continue
		}
		req.Collections = append(req.Collections, collection)
		if s.Unrestricted {
			req.Scopes[collection] = map[string]interface{}{}
		} else {
			req.Scopes[collection] = s.Filters
		}
	}
	if combined.TimeWindow > 0 {
		req.Since = time.Now().Add(-combined.TimeWindow).Unix()
	}
	return req
}

// RunHealthChecks probes nodes on the configured interval until the
// context is canceled, feeding outcomes to the circuit breakers so open
// circuits recover without waiting for live traffic.
func (f *Federated) RunHealthChecks(ctx context.Context) {
	interval := f.cfg.Current().Federation.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, node := range f.nodes {
				br := f.breakers[node.Name()]
				if err := node.Healthy(ctx); err != nil {
					br.failure()
					continue
				}
				br.success()
			}
		}
	}
}
