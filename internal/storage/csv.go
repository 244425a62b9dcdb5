package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

// Columns is the header row shared by the raw and detailed tables.
var Columns = []string{"Title", "Brand", "Rating", "Reviews", "Selling Price", "Product URL", "Image URL"}

// CSVSink writes amazon_<marketplace>_<term>_{raw,detailed}.csv into Dir.
type CSVSink struct {
	Dir         string
	Marketplace string
	logger      *slog.Logger
}

func NewCSVSink(dir, marketplace string, logger *slog.Logger) *CSVSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSink{
		Dir:         dir,
		Marketplace: marketplace,
		logger:      logger.With("component", "csv-sink"),
	}
}

func (s *CSVSink) Name() string {
	return "csv"
}

// Path returns the file for a run and a table kind ("raw" or "detailed").
// The result always lies directly inside Dir.
func (s *CSVSink) Path(run models.CrawlRun, kind string) (string, error) {
	return safeJoin(s.Dir, fmt.Sprintf("amazon_%s_%s_%s.csv", s.Marketplace, run.Slug(), kind))
}

// WriteRaw skips the file entirely when nothing was collected.
func (s *CSVSink) WriteRaw(_ context.Context, run models.CrawlRun, listings []models.ListingSummary) error {
	if len(listings) == 0 {
		s.logger.Warn("no listings to write", "query", run.Query)
		return nil
	}

	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		rows = append(rows, row(l))
	}
	path, err := s.Path(run, "raw")
	if err != nil {
		return err
	}
	return s.write(path, rows)
}

func (s *CSVSink) WriteDetailed(_ context.Context, run models.CrawlRun, records []models.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, row(r.ListingSummary))
	}
	path, err := s.Path(run, "detailed")
	if err != nil {
		return err
	}
	return s.write(path, rows)
}

func (s *CSVSink) write(path string, rows [][]string) error {
	err := writeAtomic(path, func(f *os.File) error {
		writer := csv.NewWriter(f)
		if err := writer.Write(Columns); err != nil {
			return err
		}
		if err := writer.WriteAll(rows); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("saved listings", "rows", len(rows), "path", path)
	return nil
}

func row(l models.ListingSummary) []string {
	return []string{l.Title, l.Brand, l.Rating, l.ReviewCount, l.Price, l.ProductURL, l.ImageURL}
}

var _ Sink = (*CSVSink)(nil)
