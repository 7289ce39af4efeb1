// Package httpcache provides cached, retried HTTP fetches for catalog clients.
package httpcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"

	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
)

// UserAgent identifies orgfinder to catalog APIs.
const UserAgent = "orgfinder/1.0 (+https://github.com/codeGROOVE-dev/orgfinder)"

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

var (
	hits   atomic.Int64
	misses atomic.Int64
)

// Stats tracks cache hit/miss statistics.
type Stats struct {
	Hits   int64
	Misses int64
}

// CacheStats returns the current cache statistics.
func CacheStats() Stats {
	return Stats{Hits: hits.Load(), Misses: misses.Load()}
}

// ResetStats resets the cache statistics.
func ResetStats() {
	hits.Store(0)
	misses.Store(0)
}

// Cacher allows external cache implementations for sharing across clients.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// Cache wraps sfcache for HTTP response caching.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// New creates a new Cache with disk persistence at ~/.cache/orgfinder.
func New(ttl time.Duration) (*Cache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewWithPath(ttl, filepath.Join(cacheDir, "orgfinder"))
}

// NewWithPath creates a new Cache with disk persistence at the specified path.
func NewWithPath(ttl time.Duration, cachePath string) (*Cache, error) {
	if err := os.MkdirAll(cachePath, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	persist, err := localfs.New[string, []byte]("orgfinder", cachePath)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	tc, err := sfcache.NewTiered[string, []byte](persist, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Cache{TieredCache: tc, ttl: ttl}, nil
}

// TTL returns the default TTL for cache entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// URLToKey converts a URL to a cache key using SHA256 hash.
func URLToKey(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(hash[:])
}

// HTTPError represents a non-200 response.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
	RetryAfter string
	Quota      ratelimit.Quota
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// RateLimited reports whether the server refused the request for quota reasons.
// A 403 with Retry-After is a secondary limit even when quota remains.
func (e *HTTPError) RateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if e.StatusCode != http.StatusForbidden {
		return false
	}
	return e.RetryAfter != "" || (e.Quota.Known && e.Quota.Remaining == 0)
}

// definitive reports whether a status will not change on retry and can be cached.
func definitive(status int) bool {
	switch status {
	case http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

// authScope returns a short digest of the Authorization header so responses
// fetched with different credentials never share a cache entry.
func authScope(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(auth))
	return "|auth:" + hex.EncodeToString(sum[:8])
}

// Fetch performs req with caching and returns the body along with the quota the
// server reported. Cached responses carry an unknown quota. Concurrent callers
// for the same URL share one request.
//
// Only definitive error statuses (404, 410, 422) are cached so repeated lookups
// of a missing author do not spend quota. Rate limits, server errors and other
// failures are returned uncached.
func Fetch(ctx context.Context, cache Cacher, client *http.Client, req *http.Request, logger *slog.Logger) ([]byte, ratelimit.Quota, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cacheKey := req.URL.String() + authScope(req)

	if cache == nil {
		misses.Add(1)
		return doFetch(ctx, client, req, logger)
	}

	quota := ratelimit.Unknown
	var wasFetched bool
	var uncached *HTTPError
	data, err := cache.GetSet(ctx, URLToKey(cacheKey), func(ctx context.Context) ([]byte, error) {
		wasFetched = true
		misses.Add(1)
		logger.DebugContext(ctx, "cache miss", "url", req.URL.String())

		body, q, fetchErr := doFetch(ctx, client, req, logger)
		quota = q
		if fetchErr == nil {
			return body, nil
		}
		var httpErr *HTTPError
		if errors.As(fetchErr, &httpErr) {
			if httpErr.RateLimited() || !definitive(httpErr.StatusCode) {
				uncached = httpErr
				return nil, httpErr
			}
			return fmt.Appendf(nil, "ERROR:%d", httpErr.StatusCode), nil
		}
		return nil, fetchErr
	}, cache.TTL())

	if !wasFetched {
		hits.Add(1)
		logger.DebugContext(ctx, "cache hit", "url", req.URL.String())
	}
	if uncached != nil {
		return nil, quota, uncached
	}
	if err != nil {
		return nil, quota, err
	}

	if code, found := strings.CutPrefix(string(data), "ERROR:"); found {
		status, _ := strconv.Atoi(code) //nolint:errcheck // 0 is acceptable default
		return nil, quota, &HTTPError{StatusCode: status, URL: req.URL.String(), Quota: quota}
	}
	return data, quota, nil
}

func doFetch(ctx context.Context, client *http.Client, req *http.Request, logger *slog.Logger) ([]byte, ratelimit.Quota, error) {
	quota := ratelimit.Unknown
	body, err := retry.DoWithData(
		func() ([]byte, error) {
			resp, err := client.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // intentional

			quota = quota.Merge(ratelimit.FromHeader(resp.Header))
			if resp.StatusCode != http.StatusOK {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort read of error body
				return nil, &HTTPError{
					StatusCode: resp.StatusCode,
					URL:        req.URL.String(),
					Body:       string(msg),
					RetryAfter: resp.Header.Get("Retry-After"),
					Quota:      quota,
				}
			}
			return io.ReadAll(io.LimitReader(resp.Body, maxBody))
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(200*time.Millisecond),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			logger.DebugContext(ctx, "retrying HTTP request", "attempt", n+1, "url", req.URL.String(), "error", err)
		}),
	)
	return body, quota, err
}

// isRetryableError returns true for transient errors that should be retried.
// Rate limits are not retried: the batch runner decides when to stop.
func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
