package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/amazon-listing-scraper/internal/jobs"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

// JobService is the part of the job manager the HTTP layer needs.
type JobService interface {
	CreateJob(ctx context.Context, query string, maxPages int) (*jobs.Job, error)
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
	Records(ctx context.Context, id string) ([]models.EnrichedRecord, error)
	Stats(ctx context.Context) jobs.Stats
}

type Handlers struct {
	jobs   JobService
	logger *slog.Logger
}

func NewHandlers(jobs JobService, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		logger: logger,
	}
}

// CreateCrawlRequest represents a new crawl request
type CreateCrawlRequest struct {
	Query    string `json:"query"`
	MaxPages int    `json:"max_pages"`
}

// CreateCrawlResponse represents the crawl creation response
type CreateCrawlResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

// RecordsResponse wraps the records of one crawl.
type RecordsResponse struct {
	JobID   string                  `json:"job_id"`
	Count   int                     `json:"count"`
	Records []models.EnrichedRecord `json:"records"`
}

// CreateCrawl queues a crawl for the background worker.
func (h *Handlers) CreateCrawl(w http.ResponseWriter, r *http.Request) {
	var req CreateCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.Query, req.MaxPages)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidRequest) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateCrawlResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Crawl queued",
	})
}

func (h *Handlers) GetCrawl(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListCrawls(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

// GetCrawlRecords returns the merged records of a crawl.
func (h *Handlers) GetCrawlRecords(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	records, err := h.jobs.Records(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to get records", "error", err, "job_id", jobID)
		h.respondError(w, http.StatusInternalServerError, "failed to get records")
		return
	}
	if records == nil {
		records = []models.EnrichedRecord{}
	}

	h.respondJSON(w, http.StatusOK, RecordsResponse{
		JobID:   jobID,
		Count:   len(records),
		Records: records,
	})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.Stats(r.Context()))
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.jobs.Stats(r.Context())
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"queue_size": stats.QueueSize,
		"running":    stats.RunningJobs,
	})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
