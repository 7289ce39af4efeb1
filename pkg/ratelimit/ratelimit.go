// Package ratelimit tracks external API quota and paces batch work.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Quota is the most recently observed remaining request allowance for a catalog.
// The zero value means nothing has been observed yet.
type Quota struct {
	Remaining int
	Known     bool
	// Resource names the budget the count belongs to when the server says so,
	// for example "core" or "search" on GitHub.
	Resource  string
}

// Unknown is the quota before any response has been seen.
var Unknown = Quota{}

// Observed returns a known quota.
func Observed(remaining int) Quota {
	return Quota{Remaining: remaining, Known: true}
}

// Merge returns q updated with a newer observation. An unknown observation keeps q.
func (q Quota) Merge(newer Quota) Quota {
	if newer.Known {
		return newer
	}
	return q
}

// Shared returns q when it counts against the catalog's main request budget.
// Observations of a separate budget, such as GitHub's per-minute search
// allowance, are reported as Unknown.
func (q Quota) Shared() Quota {
	switch q.Resource {
	case "", "core":
		return q
	default:
		return Unknown
	}
}

// Below reports whether the quota is known and under margin.
func (q Quota) Below(margin int) bool {
	return q.Known && q.Remaining < margin
}

// Value returns the remaining count, or -1 when unknown.
func (q Quota) Value() int {
	if !q.Known {
		return -1
	}
	return q.Remaining
}

// headerNames are checked in order; GitHub sends the first, Hugging Face the IETF draft form.
var headerNames = []string{"X-Ratelimit-Remaining", "RateLimit-Remaining", "RateLimit"}

// FromHeader extracts the remaining quota from response headers.
func FromHeader(h http.Header) Quota {
	for _, name := range headerNames {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if n, ok := parseRemaining(v); ok {
			q := Observed(n)
			q.Resource = h.Get("X-Ratelimit-Resource")
			return q
		}
	}
	return Unknown
}

// parseRemaining accepts a bare integer or a structured field like `"api";r=42;t=10`.
func parseRemaining(v string) (int, bool) {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return n, true
	}
	for part := range strings.SplitSeq(v, ";") {
		if r, found := strings.CutPrefix(strings.TrimSpace(part), "r="); found {
			if n, err := strconv.Atoi(r); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Pacer blocks until the next unit of work may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewPacer returns a token-bucket pacer that admits one unit per interval.
// A non-positive interval disables pacing.
func NewPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return NoWait{}
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// NoWait is a Pacer that never blocks.
type NoWait struct{}

// Wait returns immediately unless ctx is already done.
func (NoWait) Wait(ctx context.Context) error {
	return ctx.Err()
}
