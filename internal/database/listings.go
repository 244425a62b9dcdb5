package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-listing-scraper/internal/dedup"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/storage"
)

// ErrRunNotFound is returned when a crawl run id is unknown.
var ErrRunNotFound = errors.New("crawl run not found")

const schema = `
CREATE TABLE IF NOT EXISTS crawl_runs (
	id            TEXT PRIMARY KEY,
	query         TEXT NOT NULL,
	max_pages     INTEGER NOT NULL,
	pages_visited INTEGER NOT NULL DEFAULT 0,
	stop_reason   TEXT NOT NULL DEFAULT '',
	admitted      INTEGER NOT NULL DEFAULT 0,
	enriched      INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS listings (
	run_id                TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
	listing_key           TEXT NOT NULL,
	position              INTEGER NOT NULL,
	asin                  TEXT NOT NULL DEFAULT '',
	title                 TEXT NOT NULL,
	brand                 TEXT NOT NULL,
	rating                TEXT NOT NULL,
	review_count          TEXT NOT NULL,
	price                 TEXT NOT NULL,
	product_url           TEXT NOT NULL,
	image_url             TEXT NOT NULL,
	bought_info           TEXT NOT NULL,
	is_sponsored          BOOLEAN NOT NULL DEFAULT FALSE,
	enriched_brand        TEXT,
	enriched_rating       TEXT,
	enriched_review_count TEXT,
	detail_fetched        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, listing_key)
);

CREATE INDEX IF NOT EXISTS idx_listings_asin ON listings (asin);
`

// ListingRepository stores crawl runs and their listings in Postgres.
type ListingRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewListingRepository(db *DB, logger *slog.Logger) *ListingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingRepository{
		db:     db,
		logger: logger.With("component", "listing-repository"),
	}
}

func (r *ListingRepository) Name() string {
	return "postgres"
}

// EnsureSchema creates the tables if they do not exist.
func (r *ListingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteRaw upserts the run and every summary in one transaction.
func (r *ListingRepository) WriteRaw(ctx context.Context, run models.CrawlRun, listings []models.ListingSummary) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := upsertRun(ctx, tx, run); err != nil {
			return err
		}
		if len(listings) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, l := range listings {
			batch.Queue(`
				INSERT INTO listings (
					run_id, listing_key, position, asin, title, brand, rating,
					review_count, price, product_url, image_url, bought_info, is_sponsored
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT (run_id, listing_key) DO UPDATE SET
					position = EXCLUDED.position,
					asin = EXCLUDED.asin,
					title = EXCLUDED.title,
					brand = EXCLUDED.brand,
					rating = EXCLUDED.rating,
					review_count = EXCLUDED.review_count,
					price = EXCLUDED.price,
					product_url = EXCLUDED.product_url,
					image_url = EXCLUDED.image_url,
					bought_info = EXCLUDED.bought_info,
					is_sponsored = EXCLUDED.is_sponsored,
					updated_at = CURRENT_TIMESTAMP`,
				run.ID, string(dedup.KeyOf(l)), i, l.ASIN, l.Title, l.Brand, l.Rating,
				l.ReviewCount, l.Price, l.ProductURL, l.ImageURL, l.BoughtInfo, l.IsSponsored,
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert listings: %w", err)
		}

		r.logger.Info("listings stored", "run_id", run.ID, "count", len(listings))
		return nil
	})
}

// WriteDetailed records the merged detail values against the stored rows
// and refreshes the run counters.
func (r *ListingRepository) WriteDetailed(ctx context.Context, run models.CrawlRun, records []models.EnrichedRecord) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := upsertRun(ctx, tx, run); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
				UPDATE listings SET
					enriched_brand = $3,
					enriched_rating = $4,
					enriched_review_count = $5,
					detail_fetched = $6,
					updated_at = CURRENT_TIMESTAMP
				WHERE run_id = $1 AND listing_key = $2`,
				run.ID, string(dedup.KeyOf(rec.ListingSummary)),
				rec.Brand, rec.Rating, rec.ReviewCount, rec.DetailFetched,
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to update enriched listings: %w", err)
		}

		r.logger.Info("enriched listings stored", "run_id", run.ID, "count", len(records))
		return nil
	})
}

func upsertRun(ctx context.Context, tx pgx.Tx, run models.CrawlRun) error {
	var finishedAt *time.Time
	if !run.FinishedAt.IsZero() {
		finishedAt = &run.FinishedAt
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO crawl_runs (
			id, query, max_pages, pages_visited, stop_reason,
			admitted, enriched, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			pages_visited = EXCLUDED.pages_visited,
			stop_reason = EXCLUDED.stop_reason,
			admitted = EXCLUDED.admitted,
			enriched = EXCLUDED.enriched,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`,
		run.ID, run.Query, run.MaxPages, run.PagesVisited, string(run.StopReason),
		run.Admitted, run.Enriched, run.Err, run.StartedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert crawl run: %w", err)
	}
	return nil
}

// GetRun loads one crawl run.
func (r *ListingRepository) GetRun(ctx context.Context, id string) (*models.CrawlRun, error) {
	var (
		run        models.CrawlRun
		stopReason string
		finishedAt *time.Time
	)

	err := r.db.QueryRow(ctx, `
		SELECT id, query, max_pages, pages_visited, stop_reason,
			admitted, enriched, error, started_at, finished_at
		FROM crawl_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Query, &run.MaxPages, &run.PagesVisited, &stopReason,
		&run.Admitted, &run.Enriched, &run.Err, &run.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	run.StopReason = models.StopReason(stopReason)
	if finishedAt != nil {
		run.FinishedAt = *finishedAt
	}
	return &run, nil
}

// RecordsForRun returns the stored records of a run in discovery order.
// Rows without enrichment come back with their summary values.
func (r *ListingRepository) RecordsForRun(ctx context.Context, runID string) ([]models.EnrichedRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asin, title,
			COALESCE(enriched_brand, brand),
			COALESCE(enriched_rating, rating),
			COALESCE(enriched_review_count, review_count),
			price, product_url, image_url, bought_info, is_sponsored, detail_fetched
		FROM listings
		WHERE run_id = $1
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var records []models.EnrichedRecord
	for rows.Next() {
		var rec models.EnrichedRecord
		if err := rows.Scan(
			&rec.ASIN, &rec.Title, &rec.Brand, &rec.Rating, &rec.ReviewCount,
			&rec.Price, &rec.ProductURL, &rec.ImageURL, &rec.BoughtInfo,
			&rec.IsSponsored, &rec.DetailFetched,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return records, nil
}

var _ storage.Sink = (*ListingRepository)(nil)
