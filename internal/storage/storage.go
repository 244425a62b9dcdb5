package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

// Sink persists the output of one crawl.
type Sink interface {
	Name() string
	WriteRaw(ctx context.Context, run models.CrawlRun, listings []models.ListingSummary) error
	WriteDetailed(ctx context.Context, run models.CrawlRun, records []models.EnrichedRecord) error
}

// MultiSink fans out to every sink and joins their errors. A failing sink
// does not prevent the others from being written.
type MultiSink []Sink

func (m MultiSink) Name() string {
	return "multi"
}

// Names lists the wrapped sinks.
func (m MultiSink) Names() []string {
	names := make([]string, 0, len(m))
	for _, sink := range m {
		names = append(names, sink.Name())
	}
	return names
}

func (m MultiSink) WriteRaw(ctx context.Context, run models.CrawlRun, listings []models.ListingSummary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.WriteRaw(ctx, run, listings); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) WriteDetailed(ctx context.Context, run models.CrawlRun, records []models.EnrichedRecord) error {
	var errs []error
	for _, sink := range m {
		if err := sink.WriteDetailed(ctx, run, records); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ErrPathEscapes is returned when a file name would resolve outside the
// sink's directory.
var ErrPathEscapes = errors.New("path escapes output directory")

// safeJoin joins a single file name onto dir. Names carrying a separator
// or naming a directory are refused.
func safeJoin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, name)
	}
	return filepath.Join(dir, name), nil
}

// writeAtomic writes to a temp file first and renames it into place.
func writeAtomic(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close file: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}
