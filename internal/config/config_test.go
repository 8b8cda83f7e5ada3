package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrievald/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 9190, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 0.3, cfg.Retrieval.MinScore)
	assert.Equal(t, 8, cfg.Retrieval.MaxConcurrent)
	assert.Equal(t, 3*time.Second, cfg.Retrieval.SearchTimeout)
	assert.Equal(t, 100, cfg.Stats.Bands.LowMax)
	assert.Equal(t, 10000, cfg.Stats.Bands.MediumMax)
	assert.Equal(t, 1000000, cfg.Stats.Bands.HighMax)
	assert.Equal(t, 7*24*time.Hour, cfg.Budget.GuestTimeWindow)
	assert.Equal(t, 30*24*time.Hour, cfg.Budget.BasicTimeWindow)
	assert.Equal(t, 5, cfg.Budget.Guest.MaxResults)
	assert.Equal(t, 2000, cfg.Budget.Guest.MaxTotalTokens)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8080
retrieval:
  min_score: 0.5
budget:
  overrides:
    invoices:
      max_results: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Retrieval.MinScore)
	require.Contains(t, cfg.Budget.Overrides, "invoices")
	assert.Equal(t, 3, cfg.Budget.Overrides["invoices"].MaxResults)
	// Untouched fields keep defaults.
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err, "a misnamed config file must not silently run on defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RETRIEVALD_SERVER_PORT", "7070")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	base := func(t *testing.T) *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad port", func(c *config.Config) { c.Server.Port = -1 }},
		{"non-monotonic bands", func(c *config.Config) { c.Stats.Bands.MediumMax = 50 }},
		{"zero guest budget", func(c *config.Config) { c.Budget.Guest.MaxResults = 0 }},
		{"negative band factor", func(c *config.Config) { c.Budget.BandFactors.High = -1 }},
		{"min score out of range", func(c *config.Config) { c.Retrieval.MinScore = 1.5 }},
		{"federation without nodes", func(c *config.Config) { c.Federation.Enabled = true }},
		{"unknown provider", func(c *config.Config) { c.VectorStore.Provider = "pinecone" }},
		{"zero time window", func(c *config.Config) { c.Budget.GuestTimeWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStoreReplaceBumpsVersion(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	store := config.NewStore(cfg, "", nil)
	assert.Equal(t, int64(1), store.Version())

	next, err := config.Load("")
	require.NoError(t, err)
	store.Replace(next)

	assert.Equal(t, int64(2), store.Version())
	assert.Same(t, next, store.Current())
}
