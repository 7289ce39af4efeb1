package match

import (
	"strings"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
)

// DefaultSimilarityThreshold is the edit-distance similarity an author must exceed
// to count as a fuzzy match for a variation.
const DefaultSimilarityThreshold = 0.8

// Rules holds the tunable parts of ownership validation.
type Rules struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// DefaultRules returns the reference heuristic.
func DefaultRules() Rules {
	return Rules{SimilarityThreshold: DefaultSimilarityThreshold}
}

// Signal names the evidence a verdict rests on.
type Signal string

// Verdict signals.
const (
	SignalAuthor Signal = "author"
	SignalName   Signal = "name"
	SignalNone   Signal = ""
)

// Verdict is the outcome of ownership validation for one candidate.
type Verdict struct {
	Accepted bool
	Signal   Signal
	Reason   string
}

// AuthorMatches reports whether the candidate author matches any variation by
// equality, containment, or fuzzy similarity.
func (r Rules) AuthorMatches(author string, variations []string) bool {
	author = strings.ToLower(strings.TrimSpace(author))
	if author == "" {
		return false
	}
	for _, v := range variations {
		switch {
		case author == v:
			return true
		case len(v) > 3 && strings.Contains(author, v):
			return true
		case len(author) > 3 && strings.Contains(v, author):
			return true
		case Similarity(author, v) > r.SimilarityThreshold:
			return true
		}
	}
	return false
}

// NameMatches reports whether the candidate display name starts with or contains a variation.
func NameMatches(name string, variations []string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	for _, v := range variations {
		if len(v) > 2 && strings.HasPrefix(name, v) {
			return true
		}
		if len(v) > 3 && strings.Contains(name, v) {
			return true
		}
	}
	return false
}

// Validate applies the strategy-aware acceptance rule. Direct lookups trust only
// the author; indirect discovery accepts either an author or a name match.
func (r Rules) Validate(c artifact.Candidate, variations []string) Verdict {
	if r.AuthorMatches(c.Author, variations) {
		return Verdict{Accepted: true, Signal: SignalAuthor}
	}
	if c.Method.Direct() {
		return Verdict{Reason: "author " + c.Author + " does not match entity on direct lookup"}
	}
	if NameMatches(c.Name, variations) {
		return Verdict{Accepted: true, Signal: SignalName}
	}
	return Verdict{Reason: "neither author " + c.Author + " nor name " + c.Name + " matches entity"}
}

// Owned splits candidates into accepted and rejected sets, preserving order.
func (r Rules) Owned(candidates []artifact.Candidate, variations []string) (accepted []artifact.Candidate, rejected []Rejection) {
	for _, c := range candidates {
		v := r.Validate(c, variations)
		if v.Accepted {
			accepted = append(accepted, c)
			continue
		}
		rejected = append(rejected, Rejection{Candidate: c, Reason: v.Reason})
	}
	return accepted, rejected
}

// Rejection records why a candidate was dropped, for audit logging.
type Rejection struct {
	Candidate artifact.Candidate
	Reason    string
}
