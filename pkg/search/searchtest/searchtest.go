// Package searchtest provides an in-memory catalog for tests.
package searchtest

import (
	"context"
	"strings"
	"sync"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
)

// Response is a canned catalog answer.
type Response struct {
	Candidates []artifact.Candidate
	Quota      ratelimit.Quota
	Err        error
	Panic      any
}

// Catalog answers searches from maps keyed by author or query. Unknown authors
// return artifact.ErrNotFound; unknown queries return nothing. It records calls.
type Catalog struct {
	CatalogName string
	Host        string // AuthorFromURL accepts https://<Host>/<author>
	Authors     map[string]Response
	Keywords    map[string]Response
	// Quota, when set, is returned by every call that has no Response.Quota,
	// and OnCall can change it between calls.
	Quota  ratelimit.Quota
	OnCall func(c *Catalog, kind, arg string)

	mu    sync.Mutex
	calls []string
}

// Name returns the catalog name, "fake" by default.
func (c *Catalog) Name() string {
	if c.CatalogName == "" {
		return "fake"
	}
	return c.CatalogName
}

// SearchByAuthor answers from Authors.
func (c *Catalog) SearchByAuthor(_ context.Context, author string) ([]artifact.Candidate, ratelimit.Quota, error) {
	r, ok := c.record("author", author, c.Authors)
	if !ok {
		return nil, c.Quota, artifact.ErrNotFound
	}
	return c.answer(r)
}

// SearchByKeyword answers from Keywords.
func (c *Catalog) SearchByKeyword(_ context.Context, query string) ([]artifact.Candidate, ratelimit.Quota, error) {
	r, _ := c.record("keyword", query, c.Keywords)
	return c.answer(r)
}

// AuthorFromURL accepts URLs on Host.
func (c *Catalog) AuthorFromURL(rawURL string) string {
	host := c.Host
	if host == "" {
		host = "catalog.test"
	}
	rest, ok := strings.CutPrefix(rawURL, "https://"+host+"/")
	if !ok {
		return ""
	}
	author, _, _ := strings.Cut(rest, "/")
	return author
}

// Calls returns the recorded calls as "kind:arg".
func (c *Catalog) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Catalog) record(kind, arg string, m map[string]Response) (Response, bool) {
	c.mu.Lock()
	c.calls = append(c.calls, kind+":"+arg)
	r, ok := m[arg]
	c.mu.Unlock()
	if c.OnCall != nil {
		c.OnCall(c, kind, arg)
	}
	return r, ok
}

func (c *Catalog) answer(r Response) ([]artifact.Candidate, ratelimit.Quota, error) {
	if r.Panic != nil {
		panic(r.Panic)
	}
	q := r.Quota
	if !q.Known {
		q = c.Quota
	}
	return r.Candidates, q, r.Err
}

// Repo builds a candidate the way a catalog client would.
func Repo(catalog, author, name string, primary int) artifact.Candidate {
	return artifact.Candidate{
		ID:         artifact.QualifiedID(catalog, author, name),
		Catalog:    catalog,
		Author:     author,
		Name:       name,
		Engagement: artifact.Engagement{Primary: primary},
	}
}
