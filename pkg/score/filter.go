// Package score filters validated candidates by quality and assigns confidence.
package score

import (
	"cmp"
	"slices"
	"time"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
)

// Thresholds are the quality and scoring cutoffs. They are heuristics without a
// documented derivation, so they stay overridable through configuration.
type Thresholds struct {
	PrivateMinPrimary int           `yaml:"private_min_primary"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	StaleMinPrimary   int           `yaml:"stale_min_primary"`
	StaleMinSecondary int           `yaml:"stale_min_secondary"`
	BonusMinPrimary   int           `yaml:"bonus_min_primary"`
	BonusMinSecondary int           `yaml:"bonus_min_secondary"`
}

// Defaults returns the reference thresholds.
func Defaults() Thresholds {
	return Thresholds{
		PrivateMinPrimary: 5,
		StaleAfter:        365 * 24 * time.Hour,
		StaleMinPrimary:   100,
		StaleMinSecondary: 5,
		BonusMinPrimary:   1000,
		BonusMinSecondary: 10,
	}
}

// Passes reports whether a candidate is worth keeping. It returns a short reason when not.
func (t Thresholds) Passes(c artifact.Candidate, now time.Time) (ok bool, reason string) {
	// Gated models are the restricted form of a private repository.
	if (c.Private || c.Gated) && c.Engagement.Primary < t.PrivateMinPrimary {
		return false, "restricted with low engagement"
	}
	if c.Disabled {
		return false, "disabled or archived"
	}
	if !c.LastActivity.IsZero() && now.Sub(c.LastActivity) > t.StaleAfter &&
		c.Engagement.Primary < t.StaleMinPrimary && c.Engagement.Secondary < t.StaleMinSecondary {
		return false, "stale with low engagement"
	}
	return true, ""
}

// Filter drops low-quality candidates and returns the survivors sorted by
// primary engagement, highest first. The input is not modified.
func (t Thresholds) Filter(candidates []artifact.Candidate, now time.Time) []artifact.Candidate {
	var out []artifact.Candidate
	for _, c := range candidates {
		if ok, _ := t.Passes(c, now); ok {
			out = append(out, c)
		}
	}
	SortByEngagement(out)
	return out
}

// SortByEngagement orders candidates by descending primary engagement, keeping
// the discovery order for ties.
func SortByEngagement(candidates []artifact.Candidate) {
	slices.SortStableFunc(candidates, func(a, b artifact.Candidate) int {
		return cmp.Compare(b.Engagement.Primary, a.Engagement.Primary)
	})
}
