package huggingface

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/orgfinder/pkg/artifact"
)

type mockTransport struct {
	mockURL string
}

func (mt *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = mt.mockURL[7:] // Strip "http://"
	return http.DefaultTransport.RoundTrip(req)
}

func testClient(serverURL string) *Client {
	return &Client{
		httpClient: &http.Client{Transport: &mockTransport{mockURL: serverURL}},
		logger:     slog.Default(),
	}
}

func TestSearchByAuthor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("author") != "acme" || q.Get("full") != "true" || q.Get("limit") != "100" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("RateLimit", `"api";r=480;t=120`)
		w.Write([]byte(`[
			{"id": "acme/acme-7b", "author": "acme", "downloads": 25000, "likes": 310,
			 "gated": false, "private": false, "tags": ["text-generation"], "lastModified": "2025-04-02T09:30:00.000Z"},
			{"id": "acme/acme-70b", "author": "acme", "downloads": 900, "likes": 12, "gated": "manual"},
			{"id": "broken-id", "downloads": 1}
		]`)) //nolint:errcheck // test
	}))
	defer server.Close()

	got, quota, err := testClient(server.URL).SearchByAuthor(context.Background(), "acme")
	if err != nil {
		t.Fatalf("SearchByAuthor() error = %v", err)
	}
	if quota.Value() != 480 {
		t.Errorf("quota = %d, want 480", quota.Value())
	}

	want := []artifact.Candidate{
		{
			ID:           "huggingface:acme/acme-7b",
			Catalog:      "huggingface",
			Author:       "acme",
			Name:         "acme-7b",
			URL:          "https://huggingface.co/acme/acme-7b",
			Engagement:   artifact.Engagement{Primary: 25000, Secondary: 310},
			LastActivity: time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC),
			Tags:         []string{"text-generation"},
		},
		{
			ID:         "huggingface:acme/acme-70b",
			Catalog:    "huggingface",
			Author:     "acme",
			Name:       "acme-70b",
			URL:        "https://huggingface.co/acme/acme-70b",
			Engagement: artifact.Engagement{Primary: 900, Secondary: 12},
			Gated:      true,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SearchByAuthor() mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchByAuthor_UnknownAuthorIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`)) //nolint:errcheck // test
	}))
	defer server.Close()

	got, _, err := testClient(server.URL).SearchByAuthor(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("SearchByAuthor() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SearchByAuthor() = %v, want empty", got)
	}
}

func TestSearchByKeyword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "Acme AI" {
			t.Errorf("search = %q, want %q", got, "Acme AI")
		}
		w.Write([]byte(`[{"id": "randomuser123/acme-vision-tool", "downloads": 12}]`)) //nolint:errcheck // test
	}))
	defer server.Close()

	got, _, err := testClient(server.URL).SearchByKeyword(context.Background(), "Acme AI")
	if err != nil {
		t.Fatalf("SearchByKeyword() error = %v", err)
	}
	if len(got) != 1 || got[0].Author != "randomuser123" || got[0].Name != "acme-vision-tool" {
		t.Errorf("SearchByKeyword() = %+v", got)
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "too many requests", status: http.StatusTooManyRequests, wantErr: artifact.ErrRateLimited},
		{name: "not found", status: http.StatusNotFound, wantErr: artifact.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, _, err := testClient(server.URL).SearchByAuthor(context.Background(), "acme")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SearchByAuthor() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthorFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://huggingface.co/acme", "acme"},
		{"https://huggingface.co/acme/acme-7b", "acme"},
		{"huggingface.co/Acme-AI", "Acme-AI"},
		{"https://www.huggingface.co/acme?tab=models", "acme"},
		{"https://huggingface.co/spaces/acme/demo", ""},
		{"https://huggingface.co/datasets/acme/data", ""},
		{"https://github.com/acme", ""},
		{"https://acme.ai", ""},
		{"", ""},
	}

	var c *Client
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := c.AuthorFromURL(tt.url); got != tt.want {
				t.Errorf("AuthorFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestGatedUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`false`, false},
		{`null`, false},
		{`true`, true},
		{`"auto"`, true},
		{`"manual"`, true},
	}
	for _, tt := range tests {
		var g gated
		if err := g.UnmarshalJSON([]byte(tt.in)); err != nil {
			t.Fatalf("UnmarshalJSON(%s) error = %v", tt.in, err)
		}
		if bool(g) != tt.want {
			t.Errorf("UnmarshalJSON(%s) = %v, want %v", tt.in, g, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf_env")
	c, err := New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.token != "hf_env" {
		t.Errorf("token = %q, want hf_env", c.token)
	}
	c, _ = New(context.Background(), WithToken("hf_opt")) //nolint:errcheck // New never fails
	if c.token != "hf_opt" {
		t.Errorf("token = %q, want hf_opt", c.token)
	}
	if c.Name() != "huggingface" {
		t.Errorf("Name() = %q", c.Name())
	}
}
