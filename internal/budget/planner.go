// Package budget computes deterministic retrieval budgets.
//
// A budget is a pure function of (tier, volume band, collection): the
// same inputs always produce the same budget, so retrieval behavior is
// predictable and testable. No I/O happens here.
package budget

import (
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/principal"
	"github.com/fyrsmithlabs/retrievald/internal/stats"
)

// Budget bounds one retrieval pass.
type Budget struct {
	// MaxResults caps how many items retrieval may return.
	MaxResults int

	// MaxTokensPerItem caps the size of a single assembled item;
	// larger items are truncated.
	MaxTokensPerItem int

	// MaxTotalTokens caps the assembled context as a whole.
	MaxTotalTokens int

	// TimeWindow restricts retrieval to recent records. Zero means
	// unrestricted.
	TimeWindow time.Duration
}

// Planner derives budgets from the configured tier and band tables.
type Planner struct {
	store *config.Store
}

// NewPlanner creates a planner reading tables from the config store.
func NewPlanner(store *config.Store) *Planner {
	return &Planner{store: store}
}

// Plan computes the budget for one (tier, band, collection) triple.
//
// The tier table gives the base budget, the band factor scales
// MaxResults (never below 1), per-collection overrides replace any
// non-zero field last, and guest/basic tiers get their configured time
// windows.
func (p *Planner) Plan(tier principal.Tier, band stats.Band, collection string) Budget {
	cfg := p.store.Current().Budget

	base := tierBase(&cfg, tier)
	b := Budget{
		MaxResults:       scaleResults(base.MaxResults, bandFactor(&cfg.BandFactors, band)),
		MaxTokensPerItem: base.MaxTokensPerItem,
		MaxTotalTokens:   base.MaxTotalTokens,
	}

	switch tier {
	case principal.TierGuest:
		b.TimeWindow = cfg.GuestTimeWindow
	case principal.TierBasic:
		b.TimeWindow = cfg.BasicTimeWindow
	}

	if override, ok := cfg.Overrides[collection]; ok {
		if override.MaxResults > 0 {
			b.MaxResults = override.MaxResults
		}
		if override.MaxTokensPerItem > 0 {
			b.MaxTokensPerItem = override.MaxTokensPerItem
		}
		if override.MaxTotalTokens > 0 {
			b.MaxTotalTokens = override.MaxTotalTokens
		}
		if override.TimeWindow > 0 {
			b.TimeWindow = override.TimeWindow
		}
	}

	return b
}

// PlanAll computes per-collection budgets for a set of probed volumes.
// Collections without a probed volume get the very_high band, the most
// restrictive choice.
func (p *Planner) PlanAll(tier principal.Tier, volumes map[string]stats.Volume, collections []string) map[string]Budget {
	budgets := make(map[string]Budget, len(collections))
	for _, collection := range collections {
		band := stats.BandVeryHigh
		if v, ok := volumes[collection]; ok {
			band = v.Band
		}
		budgets[collection] = p.Plan(tier, band, collection)
	}
	return budgets
}

// Combine folds per-collection budgets into one conservative budget for
// merged ranking and assembly: the largest single-collection result cap,
// the smallest non-zero token ceilings, and the shortest non-zero time
// window.
func Combine(budgets map[string]Budget) Budget {
	var combined Budget
	for _, b := range budgets {
		if b.MaxResults > combined.MaxResults {
			combined.MaxResults = b.MaxResults
		}
		combined.MaxTokensPerItem = minNonZero(combined.MaxTokensPerItem, b.MaxTokensPerItem)
		combined.MaxTotalTokens = minNonZero(combined.MaxTotalTokens, b.MaxTotalTokens)
		if b.TimeWindow > 0 && (combined.TimeWindow == 0 || b.TimeWindow < combined.TimeWindow) {
			combined.TimeWindow = b.TimeWindow
		}
	}
	return combined
}

func tierBase(cfg *config.BudgetConfig, tier principal.Tier) config.TierBudget {
	switch tier {
	case principal.TierAdmin:
		return cfg.Admin
	case principal.TierPremium:
		return cfg.Premium
	case principal.TierBasic:
		return cfg.Basic
	default:
		return cfg.Guest
	}
}

func bandFactor(f *config.BandFactors, band stats.Band) float64 {
	switch band {
	case stats.BandLow:
		return f.Low
	case stats.BandMedium:
		return f.Medium
	case stats.BandHigh:
		return f.High
	default:
		return f.VeryHigh
	}
}

// scaleResults applies a band factor, flooring at one result so a valid
// tier never ends up with an empty budget.
func scaleResults(base int, factor float64) int {
	scaled := int(float64(base) * factor)
	if scaled < 1 {
		return 1
	}
	return scaled
}

func minNonZero(a, b int) int {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if b < a {
		return b
	}
	return a
}
