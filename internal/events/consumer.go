package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamReader is the subset of the redis client a consumer group needs.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Event is one decoded stream entry.
type Event struct {
	MessageID string
	Type      EventType
	EventID   string
	RunID     string
	ASIN      string
	Data      []byte
}

func (e Event) Listing() (*ListingPayload, error) {
	if e.Type != EventTypeListingScraped {
		return nil, fmt.Errorf("event %s is %s, not %s", e.MessageID, e.Type, EventTypeListingScraped)
	}
	var p ListingPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return &p, nil
}

func (e Event) Crawl() (*CrawlPayload, error) {
	if e.Type != EventTypeCrawlCompleted {
		return nil, fmt.Errorf("event %s is %s, not %s", e.MessageID, e.Type, EventTypeCrawlCompleted)
	}
	var p CrawlPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return &p, nil
}

// Handler processes one event. A returned error leaves the entry pending.
type Handler func(ctx context.Context, ev Event) error

type ConsumerOptions struct {
	Stream string
	Group  string
	Name   string
	Count  int64
	Block  time.Duration
}

// Consumer reads the listing stream through a consumer group.
type Consumer struct {
	client  StreamReader
	opts    ConsumerOptions
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamReader, opts ConsumerOptions, handler Handler, logger *slog.Logger) *Consumer {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	if opts.Group == "" {
		opts.Group = "listing-consumer-group"
	}
	if opts.Name == "" {
		opts.Name = "consumer-1"
	}
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		opts:    opts,
		handler: handler,
		logger:  logger.With("component", "event_consumer"),
	}
}

// EnsureGroup creates the consumer group, tolerating one that already exists.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("starting consumer", "stream", c.opts.Stream, "group", c.opts.Group)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := c.ReadOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// ReadOnce reads one batch and returns the number of acknowledged entries.
func (c *Consumer) ReadOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.Name,
		Streams:  []string{c.opts.Stream, ">"},
		Count:    c.opts.Count,
		Block:    c.opts.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ev, err := decodeMessage(msg)
			if err != nil {
				c.logger.Error("failed to decode message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.handler(ctx, ev); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

func decodeMessage(msg redis.XMessage) (Event, error) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}

	data := str("data")
	if data == "" {
		return Event{}, fmt.Errorf("missing data in event")
	}
	eventType := EventType(str("type"))
	if eventType == "" {
		return Event{}, fmt.Errorf("missing type in event")
	}

	return Event{
		MessageID: msg.ID,
		Type:      eventType,
		EventID:   str("event_id"),
		RunID:     str("run_id"),
		ASIN:      str("asin"),
		Data:      []byte(data),
	}, nil
}
