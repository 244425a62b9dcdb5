package crawler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/maltedev/amazon-listing-scraper/internal/aggregate"
	"github.com/maltedev/amazon-listing-scraper/internal/fetch"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/parser"
	"github.com/maltedev/amazon-listing-scraper/internal/ratelimit"
)

// EnrichReport counts what happened to each summary during enrichment.
type EnrichReport struct {
	Attempted int  `json:"attempted"`
	Fetched   int  `json:"fetched"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Cancelled bool `json:"cancelled"`
}

// Enricher visits each listing's own page and merges the detail values.
type Enricher struct {
	fetcher    fetch.Fetcher
	details    parser.DetailParser
	pacer      ratelimit.Pacer
	maxDetails int
	logger     *slog.Logger
}

// NewEnricher builds an enricher. maxDetails caps the number of detail
// fetches; zero means no cap.
func NewEnricher(fetcher fetch.Fetcher, details parser.DetailParser, pacer ratelimit.Pacer, maxDetails int, logger *slog.Logger) *Enricher {
	if pacer == nil {
		pacer = ratelimit.NewJitterPacer(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		fetcher:    fetcher,
		details:    details,
		pacer:      pacer,
		maxDetails: maxDetails,
		logger:     logger.With("component", "enricher"),
	}
}

// Enrich returns one record per summary, in order. Summaries without a URL,
// past the detail cap, or left over after cancellation pass through as-is.
func (e *Enricher) Enrich(ctx context.Context, summaries []models.ListingSummary) ([]models.EnrichedRecord, EnrichReport) {
	records := make([]models.EnrichedRecord, 0, len(summaries))
	var report EnrichReport

	for i, summary := range summaries {
		if report.Cancelled || ctx.Err() != nil {
			report.Cancelled = true
			report.Skipped++
			records = append(records, aggregate.Merge(summary, models.ProductDetail{}))
			continue
		}

		if !summary.HasURL() || (e.maxDetails > 0 && report.Attempted >= e.maxDetails) {
			report.Skipped++
			records = append(records, aggregate.Merge(summary, models.ProductDetail{}))
			continue
		}

		if err := e.pacer.Wait(ctx); err != nil {
			report.Cancelled = true
			report.Skipped++
			records = append(records, aggregate.Merge(summary, models.ProductDetail{}))
			continue
		}

		report.Attempted++
		e.logger.Info("processing product",
			"index", i+1,
			"total", len(summaries),
			"title", summary.ShortTitle())

		detail, ok := e.fetchDetail(ctx, summary.ProductURL)
		record := aggregate.Merge(summary, detail)
		record.DetailFetched = ok
		records = append(records, record)

		if ok {
			report.Fetched++
		} else {
			report.Failed++
		}
		e.feedback(ok)
	}

	e.logger.Info("enrichment finished",
		"attempted", report.Attempted,
		"fetched", report.Fetched,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"cancelled", report.Cancelled)

	return records, report
}

// fetchDetail returns an empty detail and false on any failure.
func (e *Enricher) fetchDetail(ctx context.Context, productURL string) (models.ProductDetail, bool) {
	resp, err := e.fetcher.Fetch(ctx, productURL)
	if err != nil {
		e.logger.Warn("failed to retrieve product page", "url", productURL, "error", err)
		return models.ProductDetail{}, false
	}

	result := e.details.ExtractHTML(bytes.NewReader(resp.Body))
	if result.Err != nil {
		e.logger.Warn("error extracting product details", "url", productURL, "error", result.Err)
		return models.ProductDetail{}, false
	}

	return result.Detail, true
}

func (e *Enricher) feedback(ok bool) {
	fb, isFeedback := e.pacer.(ratelimit.Feedback)
	if !isFeedback {
		return
	}
	if ok {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}
