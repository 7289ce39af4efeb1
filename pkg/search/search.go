// Package search runs the discovery strategies for one entity against a catalog.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/match"
	"github.com/codeGROOVE-dev/orgfinder/pkg/metrics"
	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
	"github.com/codeGROOVE-dev/orgfinder/pkg/score"
)

// Catalog is an external source of candidate artifacts.
type Catalog interface {
	Name() string
	// SearchByAuthor lists artifacts owned by author. A missing author yields
	// artifact.ErrNotFound.
	SearchByAuthor(ctx context.Context, author string) ([]artifact.Candidate, ratelimit.Quota, error)
	SearchByKeyword(ctx context.Context, query string) ([]artifact.Candidate, ratelimit.Quota, error)
	// AuthorFromURL returns the author token of a URL into the catalog, or "".
	AuthorFromURL(url string) string
}

// Step is one strategy invocation.
type Step struct {
	Method artifact.Method
	Arg    string // author handle, keyword query, or website URL
}

// Plan returns the strategies applicable to e, in priority order. The keyword
// step is conditional at run time: it only runs while nothing has been accepted.
func Plan(e artifact.Entity, c Catalog) []Step {
	handle := match.Handle(e.Name)
	var steps []Step
	if handle != "" {
		steps = append(steps, Step{Method: artifact.MethodOrganization, Arg: handle})
	}
	if slug := match.Handle(e.Slug); slug != "" && slug != handle {
		steps = append(steps, Step{Method: artifact.MethodSlug, Arg: slug})
	}
	if e.Name != "" {
		steps = append(steps, Step{Method: artifact.MethodSearch, Arg: e.Name})
	}
	if e.Website != "" && c.AuthorFromURL(e.Website) != "" {
		steps = append(steps, Step{Method: artifact.MethodWebsite, Arg: e.Website})
	}
	return steps
}

// Outcome is what the strategies produced for one entity.
type Outcome struct {
	Candidates  []artifact.Candidate // validated, filtered, scored, deduplicated; priority order
	Strategies  []artifact.Method
	Issues      []string
	Quota       ratelimit.Quota
	RateLimited bool
}

// Searcher runs the strategy pipeline against one catalog.
type Searcher struct {
	catalog    Catalog
	logger     *slog.Logger
	now        func() time.Time
	rules      match.Rules
	thresholds score.Thresholds
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// WithRules overrides the ownership rules.
func WithRules(r match.Rules) Option {
	return func(s *Searcher) { s.rules = r }
}

// WithThresholds overrides the quality and scoring thresholds.
func WithThresholds(t score.Thresholds) Option {
	return func(s *Searcher) { s.thresholds = t }
}

// WithClock sets the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) { s.now = now }
}

// New creates a Searcher for catalog.
func New(catalog Catalog, opts ...Option) *Searcher {
	s := &Searcher{
		catalog:    catalog,
		logger:     slog.Default(),
		now:        time.Now,
		rules:      match.DefaultRules(),
		thresholds: score.Defaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Catalog returns the catalog this searcher queries.
func (s *Searcher) Catalog() Catalog { return s.catalog }

// Run executes the plan for e. Expected conditions (missing authors, rejected
// candidates) are not issues. A rate-limit refusal ends the run early with the
// quota forced to zero.
func (s *Searcher) Run(ctx context.Context, e artifact.Entity) Outcome {
	name := s.catalog.Name()
	variations := match.Variations(e.Name, e.Slug)
	now := s.now()
	seen := Seen{}

	var out Outcome
	for _, step := range Plan(e, s.catalog) {
		if step.Method == artifact.MethodSearch && len(out.Candidates) > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			out.Issues = append(out.Issues, fmt.Sprintf("%s: %v", step.Method, err))
			return out
		}
		out.Strategies = append(out.Strategies, step.Method)

		raw, q, err := s.fetch(ctx, step)
		out.Quota = out.Quota.Merge(q.Shared())
		switch {
		case errors.Is(err, artifact.ErrNotFound):
			s.logger.DebugContext(ctx, "author not found", "catalog", name, "method", step.Method, "arg", step.Arg)
			continue
		case errors.Is(err, artifact.ErrRateLimited):
			metrics.SearchErrorsTotal.WithLabelValues(name, "rate_limited").Inc()
			out.Quota = out.Quota.Merge(ratelimit.Observed(0))
			out.RateLimited = true
			out.Issues = append(out.Issues, fmt.Sprintf("%s: %v", step.Method, err))
			return out
		case err != nil:
			metrics.SearchErrorsTotal.WithLabelValues(name, "error").Inc()
			s.logger.WarnContext(ctx, "catalog search failed", "catalog", name, "method", step.Method, "arg", step.Arg, "error", err)
			out.Issues = append(out.Issues, fmt.Sprintf("%s: %v", step.Method, err))
			continue
		}

		var dropped int
		out.Candidates, dropped = seen.Merge(out.Candidates, s.process(ctx, e, step.Method, raw, variations, now))
		if dropped > 0 {
			metrics.CandidatesTotal.WithLabelValues(name, string(step.Method), metrics.OutcomeDuplicate).Add(float64(dropped))
		}
	}
	return out
}

func (s *Searcher) fetch(ctx context.Context, step Step) ([]artifact.Candidate, ratelimit.Quota, error) {
	switch step.Method {
	case artifact.MethodOrganization, artifact.MethodSlug:
		return s.catalog.SearchByAuthor(ctx, step.Arg)
	case artifact.MethodSearch:
		return s.catalog.SearchByKeyword(ctx, step.Arg)
	case artifact.MethodWebsite:
		return s.fromURL(ctx, step.Arg)
	default:
		return nil, ratelimit.Unknown, fmt.Errorf("unknown method %q", step.Method)
	}
}

// fromURL extracts the author from a catalog URL and lists its artifacts.
func (s *Searcher) fromURL(ctx context.Context, rawURL string) ([]artifact.Candidate, ratelimit.Quota, error) {
	author := s.catalog.AuthorFromURL(rawURL)
	if author == "" {
		return nil, ratelimit.Unknown, artifact.ErrNotFound
	}
	return s.catalog.SearchByAuthor(ctx, author)
}

// process tags raw candidates with their method and runs validation, quality
// filtering and scoring. The input slice is not modified.
func (s *Searcher) process(
	ctx context.Context, e artifact.Entity, method artifact.Method, raw []artifact.Candidate, variations []string, now time.Time,
) []artifact.Candidate {
	name := s.catalog.Name()
	tagged := make([]artifact.Candidate, len(raw))
	for i, c := range raw {
		c.Method = method
		tagged[i] = c
	}

	owned, rejected := s.rules.Owned(tagged, variations)
	for _, r := range rejected {
		s.logger.DebugContext(ctx, "candidate rejected",
			"entity", e.Name, "candidate", r.Candidate.ID, "method", method, "reason", r.Reason)
	}

	kept := s.thresholds.Filter(owned, now)
	scored := s.thresholds.Scored(kept)

	m := string(method)
	metrics.CandidatesTotal.WithLabelValues(name, m, metrics.OutcomeRejectedOwnership).Add(float64(len(rejected)))
	metrics.CandidatesTotal.WithLabelValues(name, m, metrics.OutcomeRejectedQuality).Add(float64(len(owned) - len(kept)))
	metrics.CandidatesTotal.WithLabelValues(name, m, metrics.OutcomeAccepted).Add(float64(len(scored)))
	return scored
}
