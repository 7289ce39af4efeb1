// Package huggingface searches Hugging Face models as a discovery catalog.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/httpcache"
	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
)

const (
	catalog     = "huggingface"
	apiBase     = "https://huggingface.co/api"
	authorLimit = 100
	searchLimit = 30
)

var authorPattern = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?huggingface\.co/([a-zA-Z0-9][a-zA-Z0-9_.-]*)`)

// nonAuthorPaths are huggingface.co top-level paths that are not accounts.
var nonAuthorPaths = map[string]bool{
	"spaces": true, "datasets": true, "models": true, "docs": true, "blog": true, "papers": true,
	"collections": true, "organizations": true, "pricing": true, "login": true, "join": true,
	"settings": true, "api": true, "tasks": true, "learn": true, "enterprise": true,
}

// Client searches Hugging Face models.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	token      string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache  httpcache.Cacher
	logger *slog.Logger
	token  string
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithToken sets the Hugging Face access token.
func WithToken(token string) Option {
	return func(c *config) { c.token = token }
}

// New creates a Hugging Face client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.token == "" {
		cfg.token = os.Getenv("HF_TOKEN")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cfg.cache,
		logger:     cfg.logger,
		token:      cfg.token,
	}, nil
}

// Name returns the catalog name.
func (*Client) Name() string { return catalog }

// gated is false, or a gating mode such as "auto" or "manual".
type gated bool

func (g *gated) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("false")), bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte(`""`)):
		*g = false
	default:
		*g = true
	}
	return nil
}

// model is the subset of the models API object we read.
type model struct {
	LastModified time.Time `json:"lastModified"`
	ID           string    `json:"id"`
	Author       string    `json:"author"`
	Tags         []string  `json:"tags"`
	Downloads    int       `json:"downloads"`
	Likes        int       `json:"likes"`
	Private      bool      `json:"private"`
	Disabled     bool      `json:"disabled"`
	Gated        gated     `json:"gated"`
}

func (m model) candidate() (artifact.Candidate, bool) {
	author, name, ok := strings.Cut(m.ID, "/")
	if !ok || author == "" || name == "" {
		return artifact.Candidate{}, false
	}
	if m.Author != "" {
		author = m.Author
	}
	return artifact.Candidate{
		ID:           artifact.QualifiedID(catalog, author, name),
		Catalog:      catalog,
		Author:       author,
		Name:         name,
		URL:          "https://huggingface.co/" + m.ID,
		Engagement:   artifact.Engagement{Primary: m.Downloads, Secondary: m.Likes},
		Private:      m.Private,
		Disabled:     m.Disabled,
		Gated:        bool(m.Gated),
		LastActivity: m.LastModified,
		Tags:         m.Tags,
	}, true
}

// SearchByAuthor lists models published by author. The API answers an unknown
// author with an empty list, so this returns no candidates rather than ErrNotFound
// in that case.
func (c *Client) SearchByAuthor(ctx context.Context, author string) ([]artifact.Candidate, ratelimit.Quota, error) {
	author = strings.TrimSpace(author)
	if author == "" || strings.ContainsAny(author, "/?#&") {
		return nil, ratelimit.Unknown, artifact.ErrNotFound
	}
	return c.models(ctx, url.Values{"author": {author}, "limit": {strconv.Itoa(authorLimit)}})
}

// SearchByKeyword runs a full-text model search for query.
func (c *Client) SearchByKeyword(ctx context.Context, query string) ([]artifact.Candidate, ratelimit.Quota, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ratelimit.Unknown, nil
	}
	return c.models(ctx, url.Values{"search": {query}, "limit": {strconv.Itoa(searchLimit)}})
}

// AuthorFromURL returns the account name when rawURL points at huggingface.co, or "".
func (*Client) AuthorFromURL(rawURL string) string {
	m := authorPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil || nonAuthorPaths[strings.ToLower(m[1])] {
		return ""
	}
	return m[1]
}

func (c *Client) models(ctx context.Context, q url.Values) ([]artifact.Candidate, ratelimit.Quota, error) {
	q.Set("full", "true")
	q.Set("sort", "downloads")
	apiURL := apiBase + "/models?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return nil, ratelimit.Unknown, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpcache.UserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	body, quota, err := httpcache.Fetch(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		var httpErr *httpcache.HTTPError
		if errors.As(err, &httpErr) {
			switch {
			case httpErr.RateLimited():
				return nil, quota, fmt.Errorf("hugging face %s: %w", apiURL, artifact.ErrRateLimited)
			case httpErr.StatusCode == http.StatusNotFound:
				return nil, quota, artifact.ErrNotFound
			}
			c.logger.WarnContext(ctx, "Hugging Face API request failed", "url", apiURL, "status", httpErr.StatusCode)
		}
		return nil, quota, fmt.Errorf("fetch %s: %w", apiURL, err)
	}

	var models []model
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, quota, fmt.Errorf("decode %s: %w", apiURL, err)
	}

	out := make([]artifact.Candidate, 0, len(models))
	for _, m := range models {
		if cand, ok := m.candidate(); ok {
			out = append(out, cand)
		}
	}
	return out, quota, nil
}
