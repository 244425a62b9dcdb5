package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/queue"
)

// StartWorker consumes the queue until ctx is done or the queue is closed.
// Jobs run strictly one after another.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				m.logger.Info("job worker stopping")
				return
			}
			m.logger.Error("failed to pop task", "error", err)
			continue
		}

		m.processJob(ctx, task)
	}
}

func (m *Manager) processJob(ctx context.Context, task *queue.Task) {
	started := time.Now().UTC()
	m.update(task.ID, func(job *Job) {
		job.Status = StatusRunning
		job.StartedAt = &started
	})
	m.logger.Info("processing job", "id", task.ID, "query", task.Query)

	result, err := m.runner.RunWithID(ctx, task.ID, task.Query, task.MaxPages)

	completed := time.Now().UTC()
	m.update(task.ID, func(job *Job) {
		job.CompletedAt = &completed
		if result != nil {
			run := result.Run
			report := result.Report
			job.Run = &run
			job.Report = &report
			job.records = recordsOf(result.Raw, result.Records)
		}

		switch {
		case err != nil:
			job.Status = StatusFailed
			job.Error = err.Error()
		case result != nil && result.Run.StopReason == models.StopCancelled:
			job.Status = StatusFailed
			job.Error = "crawl cancelled"
		default:
			job.Status = StatusCompleted
		}
	})

	if err != nil {
		m.logger.Error("job failed", "id", task.ID, "error", err)
		return
	}
	m.logger.Info("job completed", "id", task.ID, "duration", completed.Sub(started))
}

// recordsOf prefers enriched records and falls back to the raw summaries
// when enrichment did not run.
func recordsOf(raw []models.ListingSummary, enriched []models.EnrichedRecord) []models.EnrichedRecord {
	if len(enriched) > 0 || len(raw) == 0 {
		return enriched
	}
	records := make([]models.EnrichedRecord, 0, len(raw))
	for _, s := range raw {
		records = append(records, models.EnrichedRecord{ListingSummary: s})
	}
	return records
}
