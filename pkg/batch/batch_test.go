package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
	"github.com/codeGROOVE-dev/orgfinder/pkg/search"
	"github.com/codeGROOVE-dev/orgfinder/pkg/search/searchtest"
	"github.com/codeGROOVE-dev/orgfinder/pkg/store"
)

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newRunner(cat search.Catalog, gw store.Gateway, opts ...Option) *Runner {
	s := search.New(cat, search.WithClock(func() time.Time { return fixedNow }))
	return New(s, gw, opts...)
}

// seed adds entities named Ent01..EntNN whose handles ent01..entNN each own one repo.
func seed(t *testing.T, m *store.Memory, cat *searchtest.Catalog, n int) {
	t.Helper()
	if cat.Authors == nil {
		cat.Authors = map[string]searchtest.Response{}
	}
	for i := 1; i <= n; i++ {
		handle := fmt.Sprintf("ent%02d", i)
		if _, err := m.AddEntity(context.Background(), artifact.Entity{ID: fmt.Sprintf("e%02d", i), Name: fmt.Sprintf("Ent%02d", i)}); err != nil {
			t.Fatalf("AddEntity() error = %v", err)
		}
		cat.Authors[handle] = searchtest.Response{
			Candidates: []artifact.Candidate{searchtest.Repo("fake", handle, "core", 10)},
		}
	}
}

func TestRun_StopsBelowSafetyMargin(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{
		Quota: ratelimit.Observed(100),
		OnCall: func(c *searchtest.Catalog, _, _ string) {
			c.Quota = ratelimit.Observed(c.Quota.Remaining - 16)
		},
	}
	seed(t, m, cat, 10)

	report := newRunner(cat, m, WithSafetyMargin(10)).Run(context.Background(), 10)

	if !report.Success {
		t.Error("Success = false, want true")
	}
	if report.EntitiesProcessed != 6 {
		t.Errorf("EntitiesProcessed = %d, want 6", report.EntitiesProcessed)
	}
	if report.RateLimitRemaining != 4 {
		t.Errorf("RateLimitRemaining = %d, want 4", report.RateLimitRemaining)
	}
	if !report.StoppedEarly || report.StopReason != StopRateLimit {
		t.Errorf("StoppedEarly = %v, StopReason = %q; want true, %q", report.StoppedEarly, report.StopReason, StopRateLimit)
	}
	if report.TotalAssociationsStored != 6 {
		t.Errorf("TotalAssociationsStored = %d, want 6", report.TotalAssociationsStored)
	}
}

func TestRun_CatalogRateLimitStopsBatch(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 3)
	cat.Authors["ent02"] = searchtest.Response{Err: artifact.ErrRateLimited}

	report := newRunner(cat, m).Run(context.Background(), 0)

	if report.EntitiesProcessed != 2 {
		t.Errorf("EntitiesProcessed = %d, want 2", report.EntitiesProcessed)
	}
	if report.RateLimitRemaining != 0 {
		t.Errorf("RateLimitRemaining = %d, want 0", report.RateLimitRemaining)
	}
	if report.StopReason != StopRateLimit {
		t.Errorf("StopReason = %q, want %q", report.StopReason, StopRateLimit)
	}
	if got := report.Results[1]; got.Tier != artifact.TierLow || len(got.Issues) == 0 {
		t.Errorf("rate-limited entity tier = %q, issues = %v; want low with issues", got.Tier, got.Issues)
	}
}

func TestRun_UnknownQuotaNeverStops(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 4)

	report := newRunner(cat, m, WithSafetyMargin(1000)).Run(context.Background(), 0)
	if report.EntitiesProcessed != 4 || report.StoppedEarly {
		t.Errorf("EntitiesProcessed = %d, StoppedEarly = %v; want 4, false", report.EntitiesProcessed, report.StoppedEarly)
	}
	if report.RateLimitRemaining != -1 {
		t.Errorf("RateLimitRemaining = %d, want -1", report.RateLimitRemaining)
	}
}

// replay always hands back the same entities, as if none had associations yet.
type replay struct {
	*store.Memory
	entities []artifact.Entity
}

func (r replay) EntitiesNeedingDiscovery(context.Context, string, int) ([]artifact.Entity, error) {
	return r.entities, nil
}

func TestRun_SecondRunStoresNothingNew(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 3)
	entities, err := m.EntitiesNeedingDiscovery(context.Background(), "fake", 0)
	if err != nil {
		t.Fatalf("EntitiesNeedingDiscovery() error = %v", err)
	}
	gw := replay{Memory: m, entities: entities}

	first := newRunner(cat, gw).Run(context.Background(), 0)
	if first.TotalAssociationsStored != 3 {
		t.Fatalf("first run stored %d, want 3", first.TotalAssociationsStored)
	}
	second := newRunner(cat, gw).Run(context.Background(), 0)
	if second.TotalCandidatesFound != 3 {
		t.Errorf("second run found %d candidates, want 3", second.TotalCandidatesFound)
	}
	if second.TotalAssociationsStored != 0 {
		t.Errorf("second run stored %d, want 0", second.TotalAssociationsStored)
	}

	// Through the real gateway, associated entities are no longer pending.
	third := newRunner(cat, m).Run(context.Background(), 0)
	if third.EntitiesProcessed != 0 {
		t.Errorf("third run processed %d entities, want 0", third.EntitiesProcessed)
	}
}

func TestRun_SinglePrimaryPerEntity(t *testing.T) {
	m := store.NewMemory()
	if _, err := m.AddEntity(context.Background(), artifact.Entity{ID: "e1", Name: "Acme"}); err != nil {
		t.Fatal(err)
	}
	cat := &searchtest.Catalog{
		Authors: map[string]searchtest.Response{
			"acme": {Candidates: []artifact.Candidate{
				searchtest.Repo("fake", "acme", "small", 10),
				searchtest.Repo("fake", "acme", "big", 5000),
				searchtest.Repo("fake", "acme", "medium", 300),
			}},
		},
	}

	report := newRunner(cat, m).Run(context.Background(), 0)
	if report.TotalAssociationsStored != 3 {
		t.Fatalf("TotalAssociationsStored = %d, want 3", report.TotalAssociationsStored)
	}

	got, err := m.Associations(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Associations() error = %v", err)
	}
	var primaries []string
	for _, a := range got {
		if a.IsPrimary {
			primaries = append(primaries, a.ArtifactID)
		}
	}
	if diff := cmp.Diff([]string{"fake:acme/big"}, primaries); diff != "" {
		t.Errorf("primary associations mismatch (-want +got):\n%s", diff)
	}
	if got := report.Results[0].Tier; got != artifact.TierHigh {
		t.Errorf("Tier = %q, want high", got)
	}
}

// flaky fails artifact writes for one identifier.
type flaky struct {
	*store.Memory
	failID string
}

func (f flaky) UpsertArtifact(ctx context.Context, c artifact.Candidate) (string, error) {
	if c.ID == f.failID {
		return "", errors.New("disk full")
	}
	return f.Memory.UpsertArtifact(ctx, c)
}

func TestRun_PersistenceFailureIsIsolated(t *testing.T) {
	m := store.NewMemory()
	if _, err := m.AddEntity(context.Background(), artifact.Entity{ID: "e1", Name: "Acme"}); err != nil {
		t.Fatal(err)
	}
	cat := &searchtest.Catalog{
		Authors: map[string]searchtest.Response{
			"acme": {Candidates: []artifact.Candidate{
				searchtest.Repo("fake", "acme", "broken", 500),
				searchtest.Repo("fake", "acme", "fine", 50),
			}},
		},
	}

	report := newRunner(cat, flaky{Memory: m, failID: "fake:acme/broken"}).Run(context.Background(), 0)
	res := report.Results[0]
	if res.AssociationsStored != 1 {
		t.Errorf("AssociationsStored = %d, want 1", res.AssociationsStored)
	}
	if len(res.Issues) != 1 || !strings.Contains(res.Issues[0], "disk full") {
		t.Errorf("Issues = %v, want one persistence issue", res.Issues)
	}
	if res.Tier != artifact.TierLow {
		t.Errorf("Tier = %q, want low", res.Tier)
	}
	got, err := m.Associations(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Associations() error = %v", err)
	}
	if len(got) != 1 || !got[0].IsPrimary {
		t.Errorf("Associations() = %+v, want the surviving artifact as primary", got)
	}
}

func TestRun_PanicBecomesIssue(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 2)
	cat.Authors["ent01"] = searchtest.Response{Panic: "boom"}

	report := newRunner(cat, m).Run(context.Background(), 0)
	if report.EntitiesProcessed != 2 {
		t.Fatalf("EntitiesProcessed = %d, want 2", report.EntitiesProcessed)
	}
	first := report.Results[0]
	if first.Tier != artifact.TierLow {
		t.Errorf("Tier = %q, want low", first.Tier)
	}
	if len(first.Issues) != 1 || !strings.Contains(first.Issues[0], "boom") {
		t.Errorf("Issues = %v, want the panic value", first.Issues)
	}
	if report.Results[1].AssociationsStored != 1 {
		t.Errorf("entity after panic stored %d, want 1", report.Results[1].AssociationsStored)
	}
}

type countingPacer struct {
	waits int
	err   error
}

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return p.err
}

func TestRun_PacesBetweenEntities(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 4)
	p := &countingPacer{}

	report := newRunner(cat, m, WithPacer(p)).Run(context.Background(), 0)
	if report.EntitiesProcessed != 4 {
		t.Errorf("EntitiesProcessed = %d, want 4", report.EntitiesProcessed)
	}
	if p.waits != 4 {
		t.Errorf("pacer waits = %d, want 4", p.waits)
	}
}

func TestRun_PacerCanceled(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 3)

	report := newRunner(cat, m, WithPacer(&countingPacer{err: context.Canceled})).Run(context.Background(), 0)
	if report.EntitiesProcessed != 0 || report.StopReason != StopCanceled {
		t.Errorf("EntitiesProcessed = %d, StopReason = %q; want 0, %q", report.EntitiesProcessed, report.StopReason, StopCanceled)
	}
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := newRunner(cat, m).Run(ctx, 0)
	if report.EntitiesProcessed != 0 || !report.StoppedEarly || report.StopReason != StopCanceled {
		t.Errorf("report = %+v, want canceled with no entities", report)
	}
	if len(cat.Calls()) != 0 {
		t.Errorf("catalog calls = %v, want none", cat.Calls())
	}
}

type broken struct{ *store.Memory }

func (broken) EntitiesNeedingDiscovery(context.Context, string, int) ([]artifact.Entity, error) {
	return nil, errors.New("connection refused")
}

func TestRun_LoadFailure(t *testing.T) {
	report := newRunner(&searchtest.Catalog{}, broken{store.NewMemory()}).Run(context.Background(), 5)
	if report.Success {
		t.Error("Success = true, want false")
	}
	if report.Results == nil || len(report.Results) != 0 {
		t.Errorf("Results = %v, want empty non-nil", report.Results)
	}
}

func TestRun_LimitAndTotals(t *testing.T) {
	m := store.NewMemory()
	cat := &searchtest.Catalog{}
	seed(t, m, cat, 5)
	cat.Authors["ent02"] = searchtest.Response{Candidates: []artifact.Candidate{
		searchtest.Repo("fake", "ent02", "a", 10),
		searchtest.Repo("fake", "ent02", "b", 10),
	}}

	report := newRunner(cat, m).Run(context.Background(), 3)
	if report.EntitiesProcessed != 3 {
		t.Errorf("EntitiesProcessed = %d, want 3", report.EntitiesProcessed)
	}
	var cands, stored int
	for _, r := range report.Results {
		cands += len(r.Candidates)
		stored += r.AssociationsStored
	}
	if report.TotalCandidatesFound != cands || report.TotalAssociationsStored != stored || cands != 4 {
		t.Errorf("totals = %d/%d, sums = %d/%d, want 4 candidates",
			report.TotalCandidatesFound, report.TotalAssociationsStored, cands, stored)
	}
}
