package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-listing-scraper/internal/config"
	"github.com/maltedev/amazon-listing-scraper/internal/events"
	"github.com/maltedev/amazon-listing-scraper/pkg/logger"
)

// listing-consumer tails the listing stream and prints each scraped record
// as one JSON line on stdout.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	out := json.NewEncoder(os.Stdout)
	handler := func(_ context.Context, ev events.Event) error {
		switch ev.Type {
		case events.EventTypeListingScraped:
			p, err := ev.Listing()
			if err != nil {
				return err
			}
			return out.Encode(p.Record)
		case events.EventTypeCrawlCompleted:
			p, err := ev.Crawl()
			if err != nil {
				return err
			}
			logger.Info("crawl completed",
				"run_id", p.Run.ID,
				"query", p.Run.Query,
				"stop_reason", p.Run.StopReason,
				"admitted", p.Run.Admitted)
		}
		return nil
	}

	consumer := events.NewConsumer(rdb, events.ConsumerOptions{
		Stream: cfg.Redis.Stream,
		Group:  cfg.Redis.Group,
		Name:   cfg.Redis.Consumer,
	}, handler, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Consumer error: %v", err)
	}
}
