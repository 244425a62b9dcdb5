// Package app assembles the crawl pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-listing-scraper/internal/browser"
	"github.com/maltedev/amazon-listing-scraper/internal/config"
	"github.com/maltedev/amazon-listing-scraper/internal/crawler"
	"github.com/maltedev/amazon-listing-scraper/internal/database"
	"github.com/maltedev/amazon-listing-scraper/internal/events"
	"github.com/maltedev/amazon-listing-scraper/internal/fetch"
	"github.com/maltedev/amazon-listing-scraper/internal/parser"
	"github.com/maltedev/amazon-listing-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-listing-scraper/internal/storage"
)

// App owns the pipeline and every resource it opened.
type App struct {
	Runner     *crawler.Runner
	Repository *database.ListingRepository
	Snapshots  *storage.SnapshotSink
	Sinks      storage.MultiSink

	closers []func() error
	logger  *slog.Logger
}

// New builds the runner. Resources opened before a failure are released.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{logger: logger.With("component", "app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	policy, err := parser.ParseAdmissionPolicy(cfg.Scraper.Policy)
	if err != nil {
		return nil, err
	}

	fetcher, err := a.fetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := a.openSinks(ctx, cfg, logger); err != nil {
		return nil, err
	}

	site := cfg.Site()
	pagePacer := ratelimit.NewJitterPacer(cfg.Scraper.PageDelayMin, cfg.Scraper.PageDelayMax)
	paginator := crawler.NewPaginator(fetcher, parser.NewListingExtractor(site, policy), site, pagePacer, logger)

	var enricher *crawler.Enricher
	if cfg.Scraper.FetchDetails {
		detailPacer := ratelimit.NewAdaptivePacer(cfg.Scraper.DetailDelayMin, cfg.Scraper.DetailDelayMax)
		enricher = crawler.NewEnricher(fetcher, parser.NewDetailExtractor(), detailPacer, cfg.Scraper.MaxDetails, logger)
	}

	var sink storage.Sink
	if len(a.Sinks) > 0 {
		sink = a.Sinks
	}
	a.Runner = crawler.NewRunner(paginator, enricher, sink, logger)

	a.logger.Info("pipeline ready",
		"marketplace", cfg.Marketplace.Code,
		"transport", cfg.Scraper.Transport,
		"policy", policy,
		"sinks", a.Sinks.Names(),
		"details", cfg.Scraper.FetchDetails)

	return a, nil
}

func (a *App) fetcher(cfg *config.Config, logger *slog.Logger) (fetch.Fetcher, error) {
	market := cfg.Marketplace
	userAgent := ""
	if len(cfg.Scraper.UserAgents) > 0 {
		userAgent = cfg.Scraper.UserAgents[0]
	}

	if cfg.Scraper.Transport == config.TransportBrowser {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Browser.Headless
		opts.Humanize = cfg.Browser.Humanize
		opts.MaxRetries = cfg.Browser.MaxRetries
		opts.Timeout = cfg.Scraper.Timeout
		opts.ViewportWidth = cfg.Browser.ViewportWidth
		opts.ViewportHeight = cfg.Browser.ViewportHeight
		opts.ProxyServer = cfg.Browser.ProxyServer
		opts.AcceptLanguage = market.AcceptLanguage
		opts.Locale = market.Locale
		opts.TimezoneID = market.TimezoneID
		if userAgent != "" {
			opts.UserAgent = userAgent
		}

		b, err := browser.New(opts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	}

	headers := fetch.DefaultHeaders(market.BaseURL() + "/")
	headers.AcceptLanguage = market.AcceptLanguage
	if userAgent != "" {
		headers.UserAgent = userAgent
	}

	return fetch.NewHTTPFetcher(fetch.Options{
		Timeout: cfg.Scraper.Timeout,
		Headers: headers,
		Limiter: ratelimit.NewCeiling(cfg.Scraper.RequestsPerMinute, 1),
	}, logger), nil
}

func (a *App) openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Output.CSV {
		a.Sinks = append(a.Sinks, storage.NewCSVSink(cfg.Output.Dir, cfg.Marketplace.Slug(), logger))
	}
	if cfg.Output.Snapshot {
		a.Snapshots = storage.NewSnapshotSink(cfg.Output.Dir, logger)
		a.Sinks = append(a.Sinks, a.Snapshots)
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error {
			db.Close()
			return nil
		})

		repo := database.NewListingRepository(db, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		a.Repository = repo
		a.Sinks = append(a.Sinks, repo)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		publisher := events.NewPublisher(client, events.Options{
			Stream: cfg.Redis.Stream,
			MaxLen: cfg.Redis.MaxLen,
		}, logger)
		a.closers = append(a.closers, publisher.Close)
		a.Sinks = append(a.Sinks, publisher)
	}

	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("errors while closing", "error", err)
		return err
	}
	return nil
}
