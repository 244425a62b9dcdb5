package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-listing-scraper/internal/crawler"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/queue"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid job request")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one queued or executed crawl.
type Job struct {
	ID          string               `json:"id"`
	Query       string               `json:"query"`
	MaxPages    int                  `json:"max_pages"`
	Status      Status               `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Run         *models.CrawlRun     `json:"run,omitempty"`
	Report      *crawler.CrawlReport `json:"report,omitempty"`
	Error       string               `json:"error,omitempty"`

	records []models.EnrichedRecord
}

// Stats summarises the job store.
type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	PendingJobs   int `json:"pending_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	QueueSize     int `json:"queue_size"`
	TotalRecords  int `json:"total_records"`
}

// Runner executes one crawl under a given id.
type Runner interface {
	RunWithID(ctx context.Context, id, query string, maxPages int) (*crawler.Result, error)
}

// RecordStore serves records of runs that are no longer held in memory.
type RecordStore interface {
	RecordsForRun(ctx context.Context, runID string) ([]models.EnrichedRecord, error)
}

type Options struct {
	DefaultPages int
	MaxPages     int
}

// Manager keeps jobs in memory and executes them one at a time.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	queue  queue.Queue
	runner Runner
	store  RecordStore
	opts   Options
	logger *slog.Logger
}

func NewManager(runner Runner, q queue.Queue, opts Options, logger *slog.Logger) *Manager {
	if opts.DefaultPages <= 0 {
		opts.DefaultPages = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		queue:  q,
		runner: runner,
		opts:   opts,
		logger: logger.With("component", "job_manager"),
	}
}

// WithStore sets a fallback for records of jobs this process never ran.
func (m *Manager) WithStore(store RecordStore) *Manager {
	m.store = store
	return m
}

// CreateJob validates and enqueues a crawl.
func (m *Manager) CreateJob(_ context.Context, query string, maxPages int) (*Job, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if maxPages < 0 {
		return nil, fmt.Errorf("%w: max_pages must not be negative", ErrInvalidRequest)
	}
	if maxPages == 0 {
		maxPages = m.opts.DefaultPages
	}
	if m.opts.MaxPages > 0 && maxPages > m.opts.MaxPages {
		return nil, fmt.Errorf("%w: max_pages exceeds %d", ErrInvalidRequest, m.opts.MaxPages)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Query:     query,
		MaxPages:  maxPages,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if err := m.queue.Push(&queue.Task{ID: job.ID, Query: query, MaxPages: maxPages, CreatedAt: job.CreatedAt}); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "query", query, "max_pages", maxPages)
	return m.snapshot(job), nil
}

func (m *Manager) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return m.snapshot(job), nil
}

// ListJobs returns every job, newest first.
func (m *Manager) ListJobs(_ context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, m.snapshot(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Records returns the output of a finished job.
func (m *Manager) Records(ctx context.Context, id string) ([]models.EnrichedRecord, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	var records []models.EnrichedRecord
	if ok {
		records = job.records
	}
	m.mu.RUnlock()

	if ok {
		return records, nil
	}
	if m.store == nil {
		return nil, ErrJobNotFound
	}

	records, err := m.store.RecordsForRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrJobNotFound
	}
	return records, nil
}

func (m *Manager) Stats(_ context.Context) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalJobs: len(m.jobs), QueueSize: m.queue.Size()}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.TotalRecords += len(job.records)
	}
	return stats
}

// snapshot must be called with m.mu held.
func (m *Manager) snapshot(job *Job) *Job {
	cp := *job
	return &cp
}

func (m *Manager) update(id string, fn func(job *Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
	}
}
