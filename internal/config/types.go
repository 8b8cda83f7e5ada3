package config

import (
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

// Config holds the complete retrievald configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       logging.Config      `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Access        AccessConfig        `koanf:"access"`
	Stats         StatsConfig         `koanf:"stats"`
	Budget        BudgetConfig        `koanf:"budget"`
	Analyzer      AnalyzerConfig      `koanf:"analyzer"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Federation    FederationConfig    `koanf:"federation"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embedding     EmbeddingConfig     `koanf:"embedding"`
	LLM           LLMConfig           `koanf:"llm"`
	Invalidation  InvalidationConfig  `koanf:"invalidation"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	Insecure        bool    `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// AccessConfig holds access scope resolution configuration.
type AccessConfig struct {
	// AdminRoles lists role names that grant unrestricted scope.
	AdminRoles []string `koanf:"admin_roles"`

	// Metadata field names used in scope filter clauses.
	TenantField    string `koanf:"tenant_field"`
	WorkspaceField string `koanf:"workspace_field"`
	OwnerField     string `koanf:"owner_field"`

	// SelfCollection names the collection holding principal records;
	// non-admins are always restricted to their own record there.
	SelfCollection string `koanf:"self_collection"`
	SelfIDField    string `koanf:"self_id_field"`

	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries int           `koanf:"cache_max_entries"`
}

// StatsConfig holds corpus statistics probe configuration.
type StatsConfig struct {
	Bands           BandThresholds `koanf:"bands"`
	CacheTTL        time.Duration  `koanf:"cache_ttl"`
	CacheMaxEntries int            `koanf:"cache_max_entries"`
}

// BandThresholds are the exclusive upper bounds of the volume bands.
// Counts at or above HighMax fall in the very_high band.
type BandThresholds struct {
	LowMax    int `koanf:"low_max"`
	MediumMax int `koanf:"medium_max"`
	HighMax   int `koanf:"high_max"`
}

// TierBudget is the base budget for one privilege tier.
type TierBudget struct {
	MaxResults       int `koanf:"max_results"`
	MaxTokensPerItem int `koanf:"max_tokens_per_item"`
	MaxTotalTokens   int `koanf:"max_total_tokens"`
}

// BandFactors scale MaxResults per volume band.
type BandFactors struct {
	Low      float64 `koanf:"low"`
	Medium   float64 `koanf:"medium"`
	High     float64 `koanf:"high"`
	VeryHigh float64 `koanf:"very_high"`
}

// BudgetOverride is a per-collection budget override. Zero fields inherit
// the computed value.
type BudgetOverride struct {
	MaxResults       int           `koanf:"max_results"`
	MaxTokensPerItem int           `koanf:"max_tokens_per_item"`
	MaxTotalTokens   int           `koanf:"max_total_tokens"`
	TimeWindow       time.Duration `koanf:"time_window"`
}

// BudgetConfig holds the context budget planner tables.
type BudgetConfig struct {
	Admin   TierBudget `koanf:"admin"`
	Premium TierBudget `koanf:"premium"`
	Basic   TierBudget `koanf:"basic"`
	Guest   TierBudget `koanf:"guest"`

	BandFactors BandFactors `koanf:"band_factors"`

	// Overrides take precedence over the tier x band computation,
	// keyed by collection name.
	Overrides map[string]BudgetOverride `koanf:"overrides"`

	// Time windows for time-restricted tiers. Admin and premium are
	// unrestricted.
	GuestTimeWindow time.Duration `koanf:"guest_time_window"`
	BasicTimeWindow time.Duration `koanf:"basic_time_window"`
}

// AnalyzerConfig holds query analyzer configuration.
type AnalyzerConfig struct {
	// Timeout bounds the single model call; on expiry the analyzer
	// degrades to its retrieval-on-uncertainty fallback.
	Timeout time.Duration `koanf:"timeout"`

	// AggregatePatterns are extra regexes (beyond the built-ins) that
	// classify a message as an aggregate query without a model call.
	AggregatePatterns []string `koanf:"aggregate_patterns"`
}

// RetrievalConfig holds retriever configuration.
type RetrievalConfig struct {
	// MinScore is the minimum similarity score for a result to be kept.
	MinScore float64 `koanf:"min_score"`

	// MaxConcurrent bounds in-flight similarity searches.
	MaxConcurrent int `koanf:"max_concurrent"`

	// SearchTimeout bounds each (query x collection) search call.
	SearchTimeout time.Duration `koanf:"search_timeout"`

	// RecencyField is the metadata field used for recency tie-breaks
	// and time-window filters.
	RecencyField string `koanf:"recency_field"`
}

// NodeConfig identifies one remote corpus node.
type NodeConfig struct {
	Name string `koanf:"name"`
	URL  string `koanf:"url"`
}

// FederationConfig holds the federated retriever configuration.
type FederationConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Nodes            []NodeConfig  `koanf:"nodes"`
	FailureThreshold int           `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
	HealthInterval   time.Duration `koanf:"health_interval"`
	RequestTimeout   time.Duration `koanf:"request_timeout"`
}

// ChromemConfig holds the embedded chromem store configuration.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds the qdrant gRPC store configuration.
type QdrantConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	UseTLS         bool          `koanf:"use_tls"`
	APIKey         string        `koanf:"api_key"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// EmbeddingConfig holds the embedding service configuration. BaseURL
// accepts any OpenAI-compatible endpoint, including self-hosted TEI.
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// LLMConfig holds language model configuration.
type LLMConfig struct {
	Provider  string        `koanf:"provider"`
	Model     string        `koanf:"model"`
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	MaxTokens int           `koanf:"max_tokens"`
}

// InvalidationConfig holds the NATS invalidation consumer configuration.
type InvalidationConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}
