// Package github searches GitHub repositories as a discovery catalog.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/httpcache"
	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
)

const (
	catalog       = "github"
	apiBase       = "https://api.github.com"
	authorPerPage = 100
	searchPerPage = 30
)

// reservedPaths are github.com top-level paths that are not accounts.
var reservedPaths = map[string]bool{
	"features": true, "marketplace": true, "explore": true, "topics": true, "trending": true,
	"collections": true, "sponsors": true, "settings": true, "login": true, "join": true,
	"about": true, "pricing": true, "enterprise": true, "search": true, "notifications": true,
	"new": true, "apps": true, "site": true, "security": true, "customer-stories": true,
}

const scopeCacheTTL = 24 * time.Hour

// getCachedGhToken returns the gh auth token, using the cache.
func getCachedGhToken(ctx context.Context, cache httpcache.Cacher) string {
	if cache == nil {
		return ghAuthToken(ctx)
	}

	data, err := cache.GetSet(ctx, "github:gh_auth_token", func(ctx context.Context) ([]byte, error) {
		token := ghAuthToken(ctx)
		if token == "" {
			return nil, errors.New("no gh token")
		}
		return []byte(token), nil
	}, scopeCacheTTL)
	if err != nil {
		return ""
	}
	return string(data)
}

// ghAuthToken returns the GitHub token from the gh CLI, or empty string if unavailable.
func ghAuthToken(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "gh", "auth", "token").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Client searches GitHub repositories.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	token      string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache    httpcache.Cacher
	logger   *slog.Logger
	token    string
	noGhAuth bool
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithToken sets the GitHub API token.
func WithToken(token string) Option {
	return func(c *config) { c.token = token }
}

// WithoutGhAuth skips the gh CLI token fallback.
func WithoutGhAuth() Option {
	return func(c *config) { c.noGhAuth = true }
}

// New creates a GitHub client.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	token := cfg.token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	// Fall back to gh CLI auth token (cached for 24 hours)
	if token == "" && !cfg.noGhAuth {
		if ghToken := getCachedGhToken(ctx, cfg.cache); ghToken != "" {
			token = ghToken
			logger.InfoContext(ctx, "using token from gh auth token")
		}
	}

	if token == "" {
		logger.WarnContext(ctx, "GITHUB_TOKEN not set - GitHub API requests will be rate-limited to 60/hour")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cfg.cache,
		logger:     logger,
		token:      token,
	}, nil
}

// Name returns the catalog name.
func (*Client) Name() string { return catalog }

// APIError contains details about a GitHub API error.
//
//nolint:govet // fieldalignment: intentional layout for readability
type APIError struct {
	StatusCode      int
	RateLimitRemain int
	Message         string
	IsRateLimit     bool
}

func (e *APIError) Error() string {
	if e.IsRateLimit {
		return fmt.Sprintf("GitHub API rate limited: %s", e.Message)
	}
	return fmt.Sprintf("GitHub API error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the error onto the shared catalog sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.IsRateLimit:
		return artifact.ErrRateLimited
	case e.StatusCode == http.StatusNotFound:
		return artifact.ErrNotFound
	default:
		return nil
	}
}

// repo is the subset of the REST repository object we read.
type repo struct {
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	PushedAt        time.Time `json:"pushed_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Name            string    `json:"name"`
	HTMLURL         string    `json:"html_url"`
	Description     string    `json:"description"`
	Topics          []string  `json:"topics"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	Private         bool      `json:"private"`
	Archived        bool      `json:"archived"`
	Disabled        bool      `json:"disabled"`
}

func (r repo) candidate() artifact.Candidate {
	last := r.PushedAt
	if last.IsZero() {
		last = r.UpdatedAt
	}
	return artifact.Candidate{
		ID:           artifact.QualifiedID(catalog, r.Owner.Login, r.Name),
		Catalog:      catalog,
		Author:       r.Owner.Login,
		Name:         r.Name,
		URL:          r.HTMLURL,
		Description:  r.Description,
		Engagement:   artifact.Engagement{Primary: r.StargazersCount, Secondary: r.ForksCount},
		Private:      r.Private,
		Disabled:     r.Disabled || r.Archived,
		LastActivity: last,
		Tags:         r.Topics,
	}
}

func candidates(repos []repo) []artifact.Candidate {
	out := make([]artifact.Candidate, 0, len(repos))
	for _, r := range repos {
		if r.Owner.Login == "" || r.Name == "" {
			continue
		}
		out = append(out, r.candidate())
	}
	return out
}

// SearchByAuthor lists repositories owned by an organization, falling back to a
// user account of the same name. It returns artifact.ErrNotFound when neither exists.
func (c *Client) SearchByAuthor(ctx context.Context, author string) ([]artifact.Candidate, ratelimit.Quota, error) {
	author = strings.TrimSpace(author)
	if author == "" || strings.ContainsAny(author, "/?#") {
		return nil, ratelimit.Unknown, artifact.ErrNotFound
	}

	q := url.Values{"per_page": {fmt.Sprint(authorPerPage)}, "sort": {"pushed"}}
	orgURL := apiBase + "/orgs/" + url.PathEscape(author) + "/repos?" + q.Encode()
	var repos []repo
	quota, err := c.getJSON(ctx, orgURL, &repos)
	if errors.Is(err, artifact.ErrNotFound) {
		c.logger.DebugContext(ctx, "no github organization, trying user", "author", author)
		userURL := apiBase + "/users/" + url.PathEscape(author) + "/repos?" + q.Encode()
		var uq ratelimit.Quota
		uq, err = c.getJSON(ctx, userURL, &repos)
		quota = quota.Merge(uq)
	}
	if err != nil {
		return nil, quota, err
	}
	return candidates(repos), quota, nil
}

// SearchByKeyword runs a repository search for query.
func (c *Client) SearchByKeyword(ctx context.Context, query string) ([]artifact.Candidate, ratelimit.Quota, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ratelimit.Unknown, nil
	}
	q := url.Values{
		"q":        {query + " in:name,description"},
		"per_page": {fmt.Sprint(searchPerPage)},
		"sort":     {"stars"},
	}
	var result struct {
		Items []repo `json:"items"`
	}
	quota, err := c.getJSON(ctx, apiBase+"/search/repositories?"+q.Encode(), &result)
	if err != nil {
		return nil, quota, err
	}
	return candidates(result.Items), quota, nil
}

// AuthorFromURL returns the account name when rawURL points at github.com, or "".
func (*Client) AuthorFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if parts[0] == "orgs" && len(parts) > 1 {
		parts = parts[1:]
	}
	name := strings.ToLower(parts[0])
	if name == "" || reservedPaths[name] {
		return ""
	}
	return parts[0]
}

func (c *Client) getJSON(ctx context.Context, apiURL string, v any) (ratelimit.Quota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return ratelimit.Unknown, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", httpcache.UserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	body, quota, err := httpcache.Fetch(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		var httpErr *httpcache.HTTPError
		if errors.As(err, &httpErr) {
			apiErr := &APIError{
				StatusCode:      httpErr.StatusCode,
				RateLimitRemain: httpErr.Quota.Value(),
				Message:         httpErr.Body,
				IsRateLimit:     httpErr.RateLimited(),
			}
			if httpErr.StatusCode != http.StatusNotFound {
				c.logger.WarnContext(ctx, "GitHub API request failed",
					"url", apiURL,
					"status", httpErr.StatusCode,
					"rate_limit_remaining", apiErr.RateLimitRemain,
					"is_rate_limit", apiErr.IsRateLimit,
				)
			}
			return quota, apiErr
		}
		return quota, fmt.Errorf("fetch %s: %w", apiURL, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return quota, fmt.Errorf("decode %s: %w", apiURL, err)
	}
	return quota, nil
}
