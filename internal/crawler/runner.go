package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-listing-scraper/internal/aggregate"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/storage"
)

// Result is everything one crawl produced.
type Result struct {
	Run     models.CrawlRun         `json:"run"`
	Report  CrawlReport             `json:"report"`
	Enrich  EnrichReport            `json:"enrich"`
	Raw     []models.ListingSummary `json:"raw"`
	Records []models.EnrichedRecord `json:"records"`
}

// Runner wires pagination, enrichment and persistence for one query.
type Runner struct {
	paginator *Paginator
	enricher  *Enricher
	sink      storage.Sink
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner builds a runner. A nil enricher disables detail fetching and a
// nil sink disables persistence.
func NewRunner(paginator *Paginator, enricher *Enricher, sink storage.Sink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		paginator: paginator,
		enricher:  enricher,
		sink:      sink,
		logger:    logger.With("component", "runner"),
		now:       time.Now,
	}
}

func (r *Runner) Run(ctx context.Context, query string, maxPages int) (*Result, error) {
	return r.RunWithID(ctx, uuid.NewString(), query, maxPages)
}

// RunWithID crawls under a caller-chosen run id. Results gathered before a
// cancellation are still flushed. The error reports persistence failures
// only; crawl problems are described by the run's stop reason.
func (r *Runner) RunWithID(ctx context.Context, id, query string, maxPages int) (*Result, error) {
	run := models.CrawlRun{
		ID:        id,
		Query:     query,
		MaxPages:  maxPages,
		StartedAt: r.now().UTC(),
	}
	logger := r.logger.With("run_id", id, "query", query)
	logger.Info("starting crawl", "max_pages", maxPages)

	listings, report := r.paginator.Crawl(ctx, query, maxPages)
	run.PagesVisited = report.PagesVisited
	run.StopReason = report.StopReason
	run.Admitted = len(listings)

	var (
		records []models.EnrichedRecord
		enrich  EnrichReport
	)
	if r.enricher != nil && len(listings) > 0 {
		records, enrich = r.enricher.Enrich(ctx, listings)
		run.Enriched = enrich.Fetched
	}

	run.FinishedAt = r.now().UTC()

	agg := aggregate.New(r.sink, logger)
	agg.AddRaw(listings...)
	agg.AddRecord(records...)

	result := &Result{
		Run:     run,
		Report:  report,
		Enrich:  enrich,
		Raw:     agg.Raw(),
		Records: agg.Records(),
	}

	if err := agg.Flush(context.WithoutCancel(ctx), run); err != nil {
		result.Run.Err = err.Error()
		return result, err
	}

	logger.Info("crawl finished",
		"stop_reason", run.StopReason,
		"pages_visited", run.PagesVisited,
		"admitted", run.Admitted,
		"enriched", run.Enriched,
		"duration", run.FinishedAt.Sub(run.StartedAt))

	return result, nil
}
