package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter mounts the crawl API under /api/v1.
func NewRouter(h *Handlers, opts RouterOptions) chi.Router {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", h.CreateCrawl)
			r.Get("/", h.ListCrawls)
			r.Get("/{jobID}", h.GetCrawl)
			r.Get("/{jobID}/records", h.GetCrawlRecords)
		})

		r.Get("/stats", h.GetStats)
	})

	return r
}
