package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/codeGROOVE-dev/orgfinder/pkg/batch"
	"github.com/codeGROOVE-dev/orgfinder/pkg/config"
	"github.com/codeGROOVE-dev/orgfinder/pkg/github"
	"github.com/codeGROOVE-dev/orgfinder/pkg/httpcache"
	"github.com/codeGROOVE-dev/orgfinder/pkg/huggingface"
	"github.com/codeGROOVE-dev/orgfinder/pkg/ratelimit"
	"github.com/codeGROOVE-dev/orgfinder/pkg/search"
	"github.com/codeGROOVE-dev/orgfinder/pkg/store"
)

// catalogs lists the supported catalog names.
var catalogs = []string{"github", "huggingface"}

// app holds the long-lived dependencies shared by subcommands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  store.Store
	cache  *httpcache.Cache
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Database.Driver == "memory" {
		a.store = store.NewMemory()
	} else {
		db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
		if err != nil {
			return nil, err
		}
		a.store = db
	}

	if !cfg.Cache.Disabled {
		var (
			c   *httpcache.Cache
			err error
		)
		if cfg.Cache.Dir != "" {
			c, err = httpcache.NewWithPath(cfg.Cache.TTL, cfg.Cache.Dir)
		} else {
			c, err = httpcache.New(cfg.Cache.TTL)
		}
		if err != nil {
			logger.WarnContext(ctx, "failed to initialize cache, continuing without cache", "error", err)
		} else {
			a.cache = c
			logger.DebugContext(ctx, "HTTP cache initialized", "ttl", cfg.Cache.TTL.String())
		}
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// catalog builds the client for name.
func (a *app) catalog(ctx context.Context, name string) (search.Catalog, error) {
	switch name {
	case "github":
		opts := []github.Option{github.WithLogger(a.logger), github.WithToken(a.cfg.GitHub.Token)}
		if a.cache != nil {
			opts = append(opts, github.WithHTTPCache(a.cache))
		}
		return github.New(ctx, opts...)
	case "huggingface":
		opts := []huggingface.Option{huggingface.WithLogger(a.logger), huggingface.WithToken(a.cfg.HuggingFace.Token)}
		if a.cache != nil {
			opts = append(opts, huggingface.WithHTTPCache(a.cache))
		}
		return huggingface.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown catalog %q (want one of %s or all)", name, strings.Join(catalogs, ", "))
	}
}

// runner wires a batch runner for one catalog.
func (a *app) runner(ctx context.Context, name string) (*batch.Runner, error) {
	cat, err := a.catalog(ctx, name)
	if err != nil {
		return nil, err
	}
	searcher := search.New(cat,
		search.WithLogger(a.logger),
		search.WithRules(a.cfg.Match),
		search.WithThresholds(a.cfg.Thresholds))
	return batch.New(searcher, a.store,
		batch.WithLogger(a.logger),
		batch.WithPacer(ratelimit.NewPacer(a.cfg.Batch.EntityDelay)),
		batch.WithSafetyMargin(a.cfg.Batch.SafetyMargin)), nil
}

// selectCatalogs expands "all" and validates names.
func selectCatalogs(name string) ([]string, error) {
	if name == "all" {
		return catalogs, nil
	}
	if !slices.Contains(catalogs, name) {
		return nil, fmt.Errorf("unknown catalog %q (want one of %s or all)", name, strings.Join(catalogs, ", "))
	}
	return []string{name}, nil
}
