package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

// Snapshot is the JSON document written per run.
type Snapshot struct {
	Run      models.CrawlRun         `json:"run"`
	Listings []models.ListingSummary `json:"listings"`
	Records  []models.EnrichedRecord `json:"records,omitempty"`
}

// SnapshotSink keeps the complete result of a run, including fields the CSV
// tables omit (ASIN, bought info, sponsored flag), in one JSON file.
type SnapshotSink struct {
	mu     sync.Mutex
	dir    string
	cache  map[string]*Snapshot
	logger *slog.Logger
}

func NewSnapshotSink(dir string, logger *slog.Logger) *SnapshotSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotSink{
		dir:    dir,
		cache:  make(map[string]*Snapshot),
		logger: logger.With("component", "snapshot-sink"),
	}
}

func (s *SnapshotSink) Name() string {
	return "snapshot"
}

// Path returns the snapshot file of a run. Run ids that would leave the
// directory are refused.
func (s *SnapshotSink) Path(runID string) (string, error) {
	return safeJoin(s.dir, "run_"+runID+".json")
}

func (s *SnapshotSink) WriteRaw(_ context.Context, run models.CrawlRun, listings []models.ListingSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.entry(run)
	snap.Listings = listings
	return s.save(snap)
}

func (s *SnapshotSink) WriteDetailed(_ context.Context, run models.CrawlRun, records []models.EnrichedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.entry(run)
	snap.Records = records
	if err := s.save(snap); err != nil {
		return err
	}
	delete(s.cache, run.ID)
	return nil
}

// Load reads a previously written snapshot.
func (s *SnapshotSink) Load(runID string) (*Snapshot, error) {
	path, err := s.Path(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// RecordsForRun serves finished runs from disk. A run without a snapshot
// yields no records and no error.
func (s *SnapshotSink) RecordsForRun(_ context.Context, runID string) ([]models.EnrichedRecord, error) {
	snap, err := s.Load(runID)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrPathEscapes) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(snap.Records) > 0 {
		return snap.Records, nil
	}

	records := make([]models.EnrichedRecord, 0, len(snap.Listings))
	for _, l := range snap.Listings {
		records = append(records, models.EnrichedRecord{ListingSummary: l})
	}
	return records, nil
}

func (s *SnapshotSink) entry(run models.CrawlRun) *Snapshot {
	snap, ok := s.cache[run.ID]
	if !ok {
		snap = &Snapshot{}
		s.cache[run.ID] = snap
	}
	snap.Run = run
	return snap
}

func (s *SnapshotSink) save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	path, err := s.Path(snap.Run.ID)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	}); err != nil {
		return err
	}

	s.logger.Debug("snapshot written", "path", path)
	return nil
}

var _ Sink = (*SnapshotSink)(nil)
