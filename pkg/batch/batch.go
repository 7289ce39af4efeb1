// Package batch runs discovery over a batch of entities for one catalog.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/metrics"
	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
	"github.com/codeGROOVE-dev/orgfinder/pkg/score"
	"github.com/codeGROOVE-dev/orgfinder/pkg/search"
	"github.com/codeGROOVE-dev/orgfinder/pkg/store"
)

// DefaultSafetyMargin is the remaining quota below which a batch stops.
const DefaultSafetyMargin = 10

// Stop reasons reported in artifact.BatchReport.StopReason.
const (
	StopRateLimit = "rate_limit"
	StopCanceled  = "canceled"
)

// Runner processes entities lacking associations for its searcher's catalog.
type Runner struct {
	searcher *search.Searcher
	gateway  store.Gateway
	pacer    ratelimit.Pacer
	logger   *slog.Logger
	now      func() time.Time
	margin   int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithPacer sets the pacer waited on before each entity. A token bucket with a
// burst of one admits the first entity at once. The default never waits.
func WithPacer(p ratelimit.Pacer) Option {
	return func(r *Runner) { r.pacer = p }
}

// WithSafetyMargin sets the quota below which the batch stops early.
func WithSafetyMargin(n int) Option {
	return func(r *Runner) { r.margin = n }
}

// WithClock sets the time source used for processing time.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner.
func New(searcher *search.Searcher, gateway store.Gateway, opts ...Option) *Runner {
	r := &Runner{
		searcher: searcher,
		gateway:  gateway,
		pacer:    ratelimit.NoWait{},
		logger:   slog.Default(),
		now:      time.Now,
		margin:   DefaultSafetyMargin,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.pacer == nil {
		r.pacer = ratelimit.NoWait{}
	}
	return r
}

// Catalog returns the name of the catalog this runner discovers against.
func (r *Runner) Catalog() string { return r.searcher.Catalog().Name() }

// Run processes up to limit entities. It never returns an error: failures to
// load entities yield Success=false, and per-entity failures are recorded as
// issues on that entity's result.
func (r *Runner) Run(ctx context.Context, limit int) artifact.BatchReport {
	start := r.now()
	name := r.Catalog()
	logger := r.logger.With("catalog", name, "run", uuid.NewString())

	report := artifact.BatchReport{Catalog: name, Results: []artifact.DiscoveryResult{}}
	quota := ratelimit.Unknown

	defer func() {
		report.Tally()
		report.RateLimitRemaining = quota.Value()
		elapsed := r.now().Sub(start)
		report.ProcessingTimeMs = elapsed.Milliseconds()
		metrics.BatchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		if quota.Known {
			metrics.RateLimitRemaining.WithLabelValues(name).Set(float64(quota.Remaining))
		}
		if report.StoppedEarly {
			metrics.BatchesStoppedEarly.WithLabelValues(name, report.StopReason).Inc()
		}
		logger.InfoContext(ctx, "batch finished",
			"success", report.Success,
			"entities", report.EntitiesProcessed,
			"candidates", report.TotalCandidatesFound,
			"associations", report.TotalAssociationsStored,
			"quota", report.RateLimitRemaining,
			"stop_reason", report.StopReason,
			"duration", elapsed)
	}()

	entities, err := r.gateway.EntitiesNeedingDiscovery(ctx, name, limit)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load entities", "error", err)
		return report
	}
	logger.InfoContext(ctx, "batch started", "entities", len(entities), "limit", limit)
	report.Success = true

	for _, e := range entities {
		if quota.Below(r.margin) {
			logger.WarnContext(ctx, "quota below safety margin, stopping", "remaining", quota.Remaining, "margin", r.margin)
			report.StoppedEarly, report.StopReason = true, StopRateLimit
			return report
		}
		if err := r.pacer.Wait(ctx); err != nil {
			report.StoppedEarly, report.StopReason = true, stopReason(err)
			return report
		}
		if err := ctx.Err(); err != nil {
			report.StoppedEarly, report.StopReason = true, stopReason(err)
			return report
		}

		result, q := r.processEntity(ctx, logger, e)
		quota = quota.Merge(q)
		report.Results = append(report.Results, result)
	}
	return report
}

func stopReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline_exceeded"
	}
	return StopCanceled
}

// processEntity discovers and persists artifacts for one entity. Panics in the
// search pipeline are recovered into issues.
func (r *Runner) processEntity(ctx context.Context, logger *slog.Logger, e artifact.Entity) (artifact.DiscoveryResult, ratelimit.Quota) {
	name := r.Catalog()
	result := artifact.DiscoveryResult{
		EntityID:   e.ID,
		EntityName: e.Name,
		Strategies: []artifact.Method{},
		Candidates: []artifact.Candidate{},
	}

	out, err := r.search(ctx, e)
	if err != nil {
		logger.ErrorContext(ctx, "entity discovery failed", "entity", e.Name, "error", err)
		result.Issues = append(result.Issues, err.Error())
	}
	if out.Strategies != nil {
		result.Strategies = out.Strategies
	}
	if out.Candidates != nil {
		result.Candidates = out.Candidates
	}
	result.Issues = append(result.Issues, out.Issues...)

	wantPrimary := true
	for _, c := range result.Candidates {
		created, err := r.persist(ctx, e, c, wantPrimary)
		if err != nil {
			metrics.PersistErrorsTotal.WithLabelValues(name).Inc()
			logger.WarnContext(ctx, "failed to persist candidate", "entity", e.Name, "candidate", c.ID, "error", err)
			result.Issues = append(result.Issues, fmt.Sprintf("persist %s: %v", c.ID, err))
			continue
		}
		wantPrimary = false
		if created {
			result.AssociationsStored++
		}
	}
	metrics.AssociationsStored.WithLabelValues(name).Add(float64(result.AssociationsStored))

	if err := r.gateway.RecordAttempt(ctx, e.ID, name); err != nil {
		logger.WarnContext(ctx, "failed to record attempt", "entity", e.Name, "error", err)
	}

	result.Tier = score.Tier(result.Candidates, len(result.Issues) > 0)
	metrics.EntitiesTotal.WithLabelValues(name, string(result.Tier)).Inc()
	logger.InfoContext(ctx, "entity processed",
		"entity", e.Name,
		"candidates", len(result.Candidates),
		"stored", result.AssociationsStored,
		"tier", result.Tier,
		"issues", len(result.Issues))
	return result, out.Quota
}

func (r *Runner) search(ctx context.Context, e artifact.Entity) (out search.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "panic during discovery", "entity", e.Name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("unexpected fault: %v", p)
		}
	}()
	return r.searcher.Run(ctx, e), nil
}

// persist stores the artifact and then the association linking e to it.
func (r *Runner) persist(ctx context.Context, e artifact.Entity, c artifact.Candidate, primary bool) (bool, error) {
	id, err := r.gateway.UpsertArtifact(ctx, c)
	if err != nil {
		return false, err
	}
	return r.gateway.UpsertAssociation(ctx, artifact.Association{
		EntityID:   e.ID,
		ArtifactID: id,
		IsPrimary:  primary,
		Method:     c.Method,
		Confidence: c.Confidence,
		Note:       fmt.Sprintf("%s via %s", c.Catalog, c.Method),
	})
}
