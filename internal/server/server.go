// Package server provides the HTTP API for retrievald.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/llm"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/orchestrator"
	"github.com/fyrsmithlabs/retrievald/internal/principal"
	"github.com/fyrsmithlabs/retrievald/internal/retriever"
	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

// Principal headers. A fronting gateway authenticates the caller and
// forwards the verified identity in these headers; retrievald trusts
// them only from that gateway.
const (
	HeaderPrincipalID        = "X-Principal-ID"
	HeaderPrincipalTier      = "X-Principal-Tier"
	HeaderPrincipalTenant    = "X-Principal-Tenant"
	HeaderPrincipalWorkspace = "X-Principal-Workspace"
	HeaderPrincipalRoles     = "X-Principal-Roles"
)

// Server provides the HTTP endpoints.
type Server struct {
	echo         *echo.Echo
	orchestrator *orchestrator.Orchestrator
	store        vectorstore.Store
	source       principal.Source
	cfg          *config.Store
	logger       *logging.Logger
}

// NewServer creates the HTTP server. source may be nil, in which case
// principals are built from the gateway headers alone.
func NewServer(orch *orchestrator.Orchestrator, store vectorstore.Store, source principal.Source, cfg *config.Store, logger *logging.Logger) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:         e,
		orchestrator: orch,
		store:        store,
		source:       source,
		cfg:          cfg,
		logger:       logger.Named("http"),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/query", s.handleQuery)
	v1.POST("/search", s.handleSearch)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// HistoryMessage is one prior conversation turn.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is the request body for POST /v1/query.
type QueryRequest struct {
	Message     string           `json:"message"`
	History     []HistoryMessage `json:"history,omitempty"`
	Collections []string         `json:"collections"`
}

// handleQuery runs the full retrieval pipeline for one message.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}

	p, err := s.principalFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown principal")
	}

	ctx := c.Request().Context()
	if p != nil {
		ctx = logging.WithPrincipalID(ctx, p.ID)
	}

	history := make([]llm.Message, len(req.History))
	for i, msg := range req.History {
		history[i] = llm.Message{Role: msg.Role, Content: msg.Content}
	}

	resp, err := s.orchestrator.Handle(ctx, orchestrator.Request{
		Principal:  p,
		Message:    req.Message,
		History:    history,
		Candidates: req.Collections,
	})
	if err != nil {
		s.logger.Error(ctx, "query handling failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "answer generation failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSearch serves scoped searches to peer nodes. The caller sends
// the scope filters it resolved; absent filters mean the collection is
// not searched at all.
func (s *Server) handleSearch(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "no local store")
	}

	var req retriever.NodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Queries) == 0 || len(req.Collections) == 0 {
		return c.JSON(http.StatusOK, retriever.NodeResponse{})
	}

	ctx := c.Request().Context()
	retrievalCfg := s.cfg.Current().Retrieval

	minScore := float32(req.MinScore)
	if minScore <= 0 {
		minScore = float32(retrievalCfg.MinScore)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var items []retriever.Item
	for _, collection := range req.Collections {
		filters, ok := req.Scopes[collection]
		if !ok {
			// No scope travelled with the request: fail closed.
			continue
		}
		for _, query := range req.Queries {
			opts := vectorstore.SearchOptions{
				Filters:      filters,
				Limit:        limit,
				MinScore:     minScore,
				RecencyField: retrievalCfg.RecencyField,
			}
			if req.Since > 0 {
				opts.Since = time.Unix(req.Since, 0)
			}

			results, err := s.store.Search(ctx, collection, query, opts)
			if err != nil {
				s.logger.Warn(ctx, "peer search failed",
					zap.String("collection", collection),
					zap.Error(err),
				)
				continue
			}
			for _, res := range results {
				items = append(items, retriever.Item{
					ID:         res.ID,
					Collection: collection,
					Content:    res.Content,
					Score:      res.Score,
					Metadata:   res.Metadata,
				})
			}
		}
	}

	return c.JSON(http.StatusOK, retriever.NodeResponse{Items: items})
}

// principalFrom builds the request principal from gateway headers,
// optionally re-validated against the principal source.
func (s *Server) principalFrom(c echo.Context) (*principal.Principal, error) {
	id := c.Request().Header.Get(HeaderPrincipalID)
	if id == "" {
		// No identity: the scope resolver fails closed on a nil
		// principal, which is the behavior we want.
		return nil, nil
	}

	if s.source != nil {
		p, err := s.source.Lookup(c.Request().Context(), id)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	tier, err := principal.ParseTier(c.Request().Header.Get(HeaderPrincipalTier))
	if err != nil {
		tier = principal.TierGuest
	}

	p := &principal.Principal{
		ID:          id,
		TenantID:    c.Request().Header.Get(HeaderPrincipalTenant),
		WorkspaceID: c.Request().Header.Get(HeaderPrincipalWorkspace),
		Tier:        tier,
	}
	if roles := c.Request().Header.Get(HeaderPrincipalRoles); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				p.Roles = append(p.Roles, role)
			}
		}
	}
	return p, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	serverCfg := s.cfg.Current().Server
	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
