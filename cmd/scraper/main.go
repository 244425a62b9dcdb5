package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/amazon-listing-scraper/internal/app"
	"github.com/maltedev/amazon-listing-scraper/internal/config"
	"github.com/maltedev/amazon-listing-scraper/pkg/logger"
)

func main() {
	var (
		query       = flag.String("query", "soft toys", "Search term")
		pages       = flag.Int("pages", 0, "Maximum number of result pages (default from SCRAPER_MAX_PAGES)")
		outDir      = flag.String("out", "", "Output directory (default from OUTPUT_DIR)")
		marketplace = flag.String("marketplace", "", "Marketplace code, e.g. IN, US, DE")
		transport   = flag.String("transport", "", "Fetch transport: http or browser")
		policy      = flag.String("policy", "", "Admission policy: sponsored-only, all, organic-only")
		details     = flag.Bool("details", true, "Fetch product detail pages")
		maxDetails  = flag.Int("max-details", -1, "Cap on detail fetches, 0 for no cap")
		snapshot    = flag.Bool("snapshot", false, "Also write a JSON snapshot of the run")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := applyFlags(cfg, flagValues{
		pages:       *pages,
		outDir:      *outDir,
		marketplace: *marketplace,
		transport:   *transport,
		policy:      *policy,
		details:     *details,
		maxDetails:  *maxDetails,
		snapshot:    *snapshot,
	}); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting Amazon listing scraper", "query", *query, "marketplace", cfg.Marketplace.Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	result, err := a.Runner.Run(ctx, *query, cfg.Scraper.MaxPages)
	if result != nil {
		fmt.Printf("\nRun %s finished: %s\n", result.Run.ID, result.Run.StopReason)
		fmt.Printf("  pages visited: %d\n", result.Run.PagesVisited)
		fmt.Printf("  listings:      %d admitted, %d rejected, %d duplicates, %d faulted\n",
			result.Report.Admitted, result.Report.Rejected, result.Report.Duplicates, result.Report.Faulted)
		fmt.Printf("  details:       %d fetched, %d failed, %d skipped\n",
			result.Enrich.Fetched, result.Enrich.Failed, result.Enrich.Skipped)
	}
	if err != nil {
		logger.Error("Failed to persist results", "error", err)
		a.Close()
		os.Exit(1)
	}
}

type flagValues struct {
	pages       int
	outDir      string
	marketplace string
	transport   string
	policy      string
	details     bool
	maxDetails  int
	snapshot    bool
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cfg *config.Config, f flagValues) error {
	if f.pages > 0 {
		cfg.Scraper.MaxPages = f.pages
	}
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
	if f.marketplace != "" {
		m, err := config.MarketplaceFor(f.marketplace)
		if err != nil {
			return err
		}
		cfg.Marketplace = m
	}
	if f.transport != "" {
		cfg.Scraper.Transport = f.transport
	}
	if f.policy != "" {
		cfg.Scraper.Policy = f.policy
	}
	if f.maxDetails >= 0 {
		cfg.Scraper.MaxDetails = f.maxDetails
	}
	cfg.Scraper.FetchDetails = cfg.Scraper.FetchDetails && f.details
	cfg.Output.Snapshot = cfg.Output.Snapshot || f.snapshot
	return nil
}
