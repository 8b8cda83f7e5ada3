// Package stats estimates corpus volume per (collection, scope).
//
// The probe answers one question cheaply: roughly how much data does this
// principal's scope see in this collection. The answer is a coarse band,
// not a precise count, so downstream budget decisions stay stable while
// the corpus churns.
package stats

import "github.com/fyrsmithlabs/retrievald/internal/config"

// Band is a coarse corpus volume classification.
type Band string

const (
	// BandLow means fewer records than the low threshold.
	BandLow Band = "low"
	// BandMedium means fewer records than the medium threshold.
	BandMedium Band = "medium"
	// BandHigh means fewer records than the high threshold.
	BandHigh Band = "high"
	// BandVeryHigh means the high threshold or more.
	BandVeryHigh Band = "very_high"
)

// classify maps a record count onto a band using the configured
// thresholds. Thresholds are exclusive upper bounds.
func classify(count int, t config.BandThresholds) Band {
	switch {
	case count < t.LowMax:
		return BandLow
	case count < t.MediumMax:
		return BandMedium
	case count < t.HighMax:
		return BandHigh
	default:
		return BandVeryHigh
	}
}
