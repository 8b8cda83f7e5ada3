// Package config provides configuration loading for retrievald.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, with hardcoded defaults filling the gaps. Validation failures
// are fatal at startup: proceeding with a broken access or budget table
// risks unscoped or unbounded operation.
package config

import (
	"errors"
	"fmt"
	"time"
)

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9190
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Observability defaults
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "retrievald"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}

	// Access defaults
	if cfg.Access.TenantField == "" {
		cfg.Access.TenantField = "tenant_id"
	}
	if cfg.Access.WorkspaceField == "" {
		cfg.Access.WorkspaceField = "workspace_id"
	}
	if cfg.Access.OwnerField == "" {
		cfg.Access.OwnerField = "owner_id"
	}
	if cfg.Access.SelfCollection == "" {
		cfg.Access.SelfCollection = "principals"
	}
	if cfg.Access.SelfIDField == "" {
		cfg.Access.SelfIDField = "principal_id"
	}
	if cfg.Access.CacheTTL == 0 {
		cfg.Access.CacheTTL = 5 * time.Minute
	}
	if cfg.Access.CacheMaxEntries == 0 {
		cfg.Access.CacheMaxEntries = 10000
	}

	// Stats defaults
	if cfg.Stats.Bands.LowMax == 0 {
		cfg.Stats.Bands.LowMax = 100
	}
	if cfg.Stats.Bands.MediumMax == 0 {
		cfg.Stats.Bands.MediumMax = 10000
	}
	if cfg.Stats.Bands.HighMax == 0 {
		cfg.Stats.Bands.HighMax = 1000000
	}
	if cfg.Stats.CacheTTL == 0 {
		cfg.Stats.CacheTTL = 5 * time.Minute
	}
	if cfg.Stats.CacheMaxEntries == 0 {
		cfg.Stats.CacheMaxEntries = 10000
	}

	// Budget defaults: base table by tier
	if cfg.Budget.Admin == (TierBudget{}) {
		cfg.Budget.Admin = TierBudget{MaxResults: 20, MaxTokensPerItem: 1000, MaxTotalTokens: 8000}
	}
	if cfg.Budget.Premium == (TierBudget{}) {
		cfg.Budget.Premium = TierBudget{MaxResults: 15, MaxTokensPerItem: 800, MaxTotalTokens: 6000}
	}
	if cfg.Budget.Basic == (TierBudget{}) {
		cfg.Budget.Basic = TierBudget{MaxResults: 10, MaxTokensPerItem: 600, MaxTotalTokens: 4000}
	}
	if cfg.Budget.Guest == (TierBudget{}) {
		cfg.Budget.Guest = TierBudget{MaxResults: 5, MaxTokensPerItem: 500, MaxTotalTokens: 2000}
	}
	if cfg.Budget.BandFactors == (BandFactors{}) {
		cfg.Budget.BandFactors = BandFactors{Low: 1.25, Medium: 1.0, High: 0.8, VeryHigh: 0.5}
	}
	if cfg.Budget.GuestTimeWindow == 0 {
		cfg.Budget.GuestTimeWindow = 7 * 24 * time.Hour
	}
	if cfg.Budget.BasicTimeWindow == 0 {
		cfg.Budget.BasicTimeWindow = 30 * 24 * time.Hour
	}

	// Analyzer defaults
	if cfg.Analyzer.Timeout == 0 {
		cfg.Analyzer.Timeout = 10 * time.Second
	}

	// Retrieval defaults
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = 0.3
	}
	if cfg.Retrieval.MaxConcurrent == 0 {
		cfg.Retrieval.MaxConcurrent = 8
	}
	if cfg.Retrieval.SearchTimeout == 0 {
		cfg.Retrieval.SearchTimeout = 3 * time.Second
	}
	if cfg.Retrieval.RecencyField == "" {
		cfg.Retrieval.RecencyField = "updated_at"
	}

	// Federation defaults
	if cfg.Federation.FailureThreshold == 0 {
		cfg.Federation.FailureThreshold = 3
	}
	if cfg.Federation.Cooldown == 0 {
		cfg.Federation.Cooldown = 30 * time.Second
	}
	if cfg.Federation.HealthInterval == 0 {
		cfg.Federation.HealthInterval = 15 * time.Second
	}
	if cfg.Federation.RequestTimeout == 0 {
		cfg.Federation.RequestTimeout = 3 * time.Second
	}

	// VectorStore defaults (chromem is default - embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/retrievald/vectorstore"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.RequestTimeout == 0 {
		cfg.VectorStore.Qdrant.RequestTimeout = 30 * time.Second
	}

	// Embedding defaults
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8080/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}

	// LLM defaults
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 10 * time.Second
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}

	// Invalidation defaults
	if cfg.Invalidation.URL == "" {
		cfg.Invalidation.URL = "nats://localhost:4222"
	}
	if cfg.Invalidation.Subject == "" {
		cfg.Invalidation.Subject = "corpus.invalidated"
	}
}

// Validate validates the configuration.
//
// A validation error here is fatal: the process must not serve requests
// with an unscoped access table or an unbounded budget table.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("invalid sample rate: %v (must be 0-1)", c.Observability.SampleRate)
	}

	// Band thresholds must be a monotonic step function of count.
	b := c.Stats.Bands
	if b.LowMax <= 0 || b.MediumMax <= b.LowMax || b.HighMax <= b.MediumMax {
		return fmt.Errorf("band thresholds must be strictly increasing: low<%d medium<%d high<%d",
			b.LowMax, b.MediumMax, b.HighMax)
	}

	for tier, tb := range map[string]TierBudget{
		"admin": c.Budget.Admin, "premium": c.Budget.Premium,
		"basic": c.Budget.Basic, "guest": c.Budget.Guest,
	} {
		if tb.MaxResults <= 0 || tb.MaxTokensPerItem <= 0 || tb.MaxTotalTokens <= 0 {
			return fmt.Errorf("budget for tier %s must be positive", tier)
		}
	}
	f := c.Budget.BandFactors
	if f.Low <= 0 || f.Medium <= 0 || f.High <= 0 || f.VeryHigh <= 0 {
		return errors.New("band factors must be positive")
	}
	if c.Budget.GuestTimeWindow <= 0 || c.Budget.BasicTimeWindow <= 0 {
		return errors.New("guest and basic time windows must be positive")
	}

	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("invalid min score: %v (must be 0-1)", c.Retrieval.MinScore)
	}
	if c.Retrieval.MaxConcurrent <= 0 {
		return errors.New("max concurrent searches must be positive")
	}
	if c.Retrieval.SearchTimeout <= 0 {
		return errors.New("search timeout must be positive")
	}

	if c.Federation.Enabled && len(c.Federation.Nodes) == 0 {
		return errors.New("federation enabled but no nodes configured")
	}
	for _, n := range c.Federation.Nodes {
		if n.Name == "" || n.URL == "" {
			return errors.New("federation nodes require name and url")
		}
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector store provider: %q", c.VectorStore.Provider)
	}

	if c.Analyzer.Timeout <= 0 {
		return errors.New("analyzer timeout must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm timeout must be positive")
	}

	return nil
}
