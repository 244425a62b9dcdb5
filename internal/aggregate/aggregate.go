package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/storage"
)

// Merge applies every non-empty detail field over the summary. Fields the
// detail page does not carry pass through unchanged.
func Merge(summary models.ListingSummary, detail models.ProductDetail) models.EnrichedRecord {
	record := models.EnrichedRecord{ListingSummary: summary}

	if detail.Brand != "" {
		record.Brand = detail.Brand
	}
	if detail.Rating != "" {
		record.Rating = detail.Rating
	}
	if detail.ReviewCount != "" {
		record.ReviewCount = detail.ReviewCount
	}

	return record
}

// Aggregator collects the raw and enriched output of one crawl and hands it
// to the configured sinks.
type Aggregator struct {
	mu      sync.Mutex
	raw     []models.ListingSummary
	records []models.EnrichedRecord
	sink    storage.Sink
	logger  *slog.Logger
}

func New(sink storage.Sink, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		sink:   sink,
		logger: logger.With("component", "aggregator"),
	}
}

func (a *Aggregator) AddRaw(listings ...models.ListingSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw = append(a.raw, listings...)
}

func (a *Aggregator) AddRecord(records ...models.EnrichedRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, records...)
}

// Raw returns a copy of the accumulated summaries.
func (a *Aggregator) Raw() []models.ListingSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ListingSummary(nil), a.raw...)
}

// Records returns a copy of the accumulated enriched records.
func (a *Aggregator) Records() []models.EnrichedRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.EnrichedRecord(nil), a.records...)
}

// Flush writes the raw table first and the detailed table second. Both are
// attempted even if the first fails.
func (a *Aggregator) Flush(ctx context.Context, run models.CrawlRun) error {
	if a.sink == nil {
		return nil
	}

	raw := a.Raw()
	records := a.Records()

	rawErr := a.sink.WriteRaw(ctx, run, raw)
	if rawErr != nil {
		a.logger.Error("failed to write raw listings", "run_id", run.ID, "error", rawErr)
	}

	detailedErr := a.sink.WriteDetailed(ctx, run, records)
	if detailedErr != nil {
		a.logger.Error("failed to write detailed records", "run_id", run.ID, "error", detailedErr)
	}

	switch {
	case rawErr != nil && detailedErr != nil:
		return fmt.Errorf("flush run %s: %w; %w", run.ID, rawErr, detailedErr)
	case rawErr != nil:
		return fmt.Errorf("flush raw listings for run %s: %w", run.ID, rawErr)
	case detailedErr != nil:
		return fmt.Errorf("flush detailed records for run %s: %w", run.ID, detailedErr)
	}

	a.logger.Info("results flushed",
		"run_id", run.ID,
		"sink", a.sink.Name(),
		"raw", len(raw),
		"detailed", len(records))
	return nil
}
