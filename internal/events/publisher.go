package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/storage"
)

// DefaultStream receives one entry per enriched listing.
const DefaultStream = "stream:listings"

// EventType represents the type of event
type EventType string

const (
	EventTypeListingScraped EventType = "LISTING_SCRAPED"
	EventTypeCrawlCompleted EventType = "CRAWL_COMPLETED"
)

// RedisClient is the subset of the redis client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// ListingPayload is the JSON body of a LISTING_SCRAPED event.
type ListingPayload struct {
	EventID   string                `json:"event_id"`
	EventType EventType             `json:"event_type"`
	Timestamp time.Time             `json:"timestamp"`
	RunID     string                `json:"run_id"`
	Query     string                `json:"query"`
	Position  int                   `json:"position"`
	Record    models.EnrichedRecord `json:"record"`
	Source    string                `json:"source"`
}

// CrawlPayload is the JSON body of a CRAWL_COMPLETED event.
type CrawlPayload struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Run       models.CrawlRun `json:"run"`
	Source    string          `json:"source"`
}

// Publisher writes crawl output to a Redis stream.
type Publisher struct {
	client RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
	now    func() time.Time
}

type Options struct {
	Stream string
	// MaxLen trims the stream approximately; zero keeps everything.
	MaxLen int64
}

func NewPublisher(client RedisClient, opts Options, logger *slog.Logger) *Publisher {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		stream: opts.Stream,
		maxLen: opts.MaxLen,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

func (p *Publisher) Name() string {
	return "redis"
}

// WriteRaw publishes nothing; listings are published once enriched.
func (p *Publisher) WriteRaw(context.Context, models.CrawlRun, []models.ListingSummary) error {
	return nil
}

// WriteDetailed publishes one LISTING_SCRAPED entry per record followed by
// a CRAWL_COMPLETED entry for the run.
func (p *Publisher) WriteDetailed(ctx context.Context, run models.CrawlRun, records []models.EnrichedRecord) error {
	for i, rec := range records {
		payload := ListingPayload{
			EventID:   uuid.NewString(),
			EventType: EventTypeListingScraped,
			Timestamp: p.now().UTC(),
			RunID:     run.ID,
			Query:     run.Query,
			Position:  i,
			Record:    rec,
			Source:    "scraper",
		}
		if err := p.publish(ctx, payload.EventID, payload.EventType, run.ID, rec.ASIN, payload); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	summary := CrawlPayload{
		EventID:   uuid.NewString(),
		EventType: EventTypeCrawlCompleted,
		Timestamp: p.now().UTC(),
		Run:       run,
		Source:    "scraper",
	}
	if err := p.publish(ctx, summary.EventID, summary.EventType, run.ID, "", summary); err != nil {
		return err
	}

	p.logger.Info("events published",
		"run_id", run.ID,
		"stream", p.stream,
		"listings", len(records))
	return nil
}

func (p *Publisher) publish(ctx context.Context, eventID string, eventType EventType, runID, asin string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"type":      string(eventType),
			"event_id":  eventID,
			"run_id":    runID,
			"asin":      asin,
			"timestamp": fmt.Sprintf("%d", p.now().UnixNano()),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ storage.Sink = (*Publisher)(nil)
