package score

import "github.com/codeGROOVE-dev/orgfinder/pkg/artifact"

const bonus = 0.05

// baseConfidence is the starting score for each discovery method.
var baseConfidence = map[artifact.Method]float64{
	artifact.MethodOrganization: 0.95,
	artifact.MethodSlug:         0.90,
	artifact.MethodWebsite:      0.85,
	artifact.MethodSearch:       0.70,
}

// Confidence scores a validated candidate in [0, 1].
func (t Thresholds) Confidence(c artifact.Candidate) float64 {
	s := baseConfidence[c.Method]
	if c.Engagement.Primary > t.BonusMinPrimary {
		s += bonus
	}
	if c.Engagement.Secondary > t.BonusMinSecondary {
		s += bonus
	}
	if len(c.Tags) > 0 {
		s += bonus
	}
	if !c.Private && !c.Gated {
		s += bonus
	}
	return min(max(s, 0), 1)
}

// Scored returns a copy of candidates with Confidence set.
func (t Thresholds) Scored(candidates []artifact.Candidate) []artifact.Candidate {
	out := make([]artifact.Candidate, len(candidates))
	for i, c := range candidates {
		c.Confidence = t.Confidence(c)
		out[i] = c
	}
	return out
}

// Tier summarizes an entity's result by its best candidate. A result with a
// fault is always low.
func Tier(candidates []artifact.Candidate, faulted bool) artifact.Tier {
	if faulted {
		return artifact.TierLow
	}
	if len(candidates) == 0 {
		return artifact.TierNone
	}
	best := 0.0
	for _, c := range candidates {
		best = max(best, c.Confidence)
	}
	switch {
	case best >= 0.9:
		return artifact.TierHigh
	case best >= 0.8:
		return artifact.TierMedium
	case best > 0:
		return artifact.TierLow
	default:
		return artifact.TierNone
	}
}
