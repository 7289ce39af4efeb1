package main

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/orgfinder/pkg/config"
)

func TestSelectCatalogs(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "github", want: []string{"github"}},
		{in: "huggingface", want: []string{"huggingface"}},
		{in: "all", want: []string{"github", "huggingface"}},
		{in: "gitlab", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := selectCatalogs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("selectCatalogs(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("selectCatalogs(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestNewApp_MemoryWithoutCache(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "memory"
	cfg.Cache.Disabled = true
	cfg.GitHub.Token = "test-token"

	a, err := newApp(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close() //nolint:errcheck // test

	for _, name := range catalogs {
		r, err := a.runner(context.Background(), name)
		if err != nil {
			t.Fatalf("runner(%q) error = %v", name, err)
		}
		if r.Catalog() != name {
			t.Errorf("runner(%q).Catalog() = %q", name, r.Catalog())
		}
	}
	if _, err := a.runner(context.Background(), "gitlab"); err == nil {
		t.Error("runner(gitlab) error = nil")
	}
}
