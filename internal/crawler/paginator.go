package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-listing-scraper/internal/dedup"
	"github.com/maltedev/amazon-listing-scraper/internal/fetch"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/parser"
	"github.com/maltedev/amazon-listing-scraper/internal/ratelimit"
)

// State is a pagination state. Every transition is logged.
type State string

const (
	StateFetching   State = "fetching"
	StateParsing    State = "parsing"
	StateContinuing State = "continuing"
	StateStopped    State = "stopped"
)

// CrawlReport summarises one pagination pass.
type CrawlReport struct {
	StopReason   models.StopReason `json:"stop_reason"`
	StopDetail   string            `json:"stop_detail,omitempty"`
	PagesVisited int               `json:"pages_visited"`
	EmptyPages   int               `json:"empty_pages"`
	Seen         int               `json:"seen"`
	Admitted     int               `json:"admitted"`
	Rejected     int               `json:"rejected"`
	Duplicates   int               `json:"duplicates"`
	Faulted      int               `json:"faulted"`
}

// SearchURL builds the results URL for one page of a query.
func SearchURL(site parser.Site, query string, page int) string {
	u := strings.TrimRight(site.BaseURL, "/") + "/s?k=" + url.QueryEscape(query)
	if page > 1 {
		u += "&page=" + strconv.Itoa(page)
	}
	return u
}

// Paginator walks the search-result pages of one query.
type Paginator struct {
	fetcher   fetch.Fetcher
	extractor parser.ListingParser
	site      parser.Site
	pacer     ratelimit.Pacer
	logger    *slog.Logger
}

func NewPaginator(fetcher fetch.Fetcher, extractor parser.ListingParser, site parser.Site, pacer ratelimit.Pacer, logger *slog.Logger) *Paginator {
	if pacer == nil {
		pacer = ratelimit.NewJitterPacer(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		fetcher:   fetcher,
		extractor: extractor,
		site:      site,
		pacer:     pacer,
		logger:    logger.With("component", "paginator"),
	}
}

// Crawl visits pages 1..maxPages and returns every admitted, de-duplicated
// listing in discovery order. It never fails: whatever stopped the walk is
// recorded in the report and the listings gathered so far are returned.
func (p *Paginator) Crawl(ctx context.Context, query string, maxPages int) ([]models.ListingSummary, CrawlReport) {
	var (
		listings []models.ListingSummary
		report   CrawlReport
		seen     = dedup.New()
	)

	stop := func(reason models.StopReason, detail string, page int) {
		report.StopReason = reason
		report.StopDetail = detail

		level := slog.LevelInfo
		if reason.Early() {
			level = slog.LevelWarn
		}
		p.logger.Log(ctx, level, "pagination state",
			"state", StateStopped,
			"page", page,
			"reason", reason,
			"detail", detail)
	}

	if maxPages < 1 {
		stop(models.StopPageLimit, "max pages below one", 0)
		return listings, report
	}

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			stop(models.StopCancelled, err.Error(), page)
			break
		}

		if page > 1 {
			if err := p.pacer.Wait(ctx); err != nil {
				stop(models.StopCancelled, err.Error(), page)
				break
			}
		}

		p.transition(StateFetching, page)
		target := SearchURL(p.site, query, page)
		resp, err := p.fetcher.Fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				stop(models.StopCancelled, ctx.Err().Error(), page)
			} else {
				stop(models.StopFetchFailure, err.Error(), page)
			}
			break
		}
		if !resp.OK() {
			detail := "empty response"
			if resp != nil {
				detail = fmt.Sprintf("status %d", resp.StatusCode)
			}
			stop(models.StopFetchFailure, detail, page)
			break
		}
		report.PagesVisited++

		p.transition(StateParsing, page)
		reason, detail := p.processPage(ctx, resp.Body, page, seen, &report, &listings)
		if reason != models.StopNone {
			stop(reason, detail, page)
			break
		}

		if page == maxPages {
			stop(models.StopPageLimit, fmt.Sprintf("reached page %d", maxPages), page)
			break
		}

		p.transition(StateContinuing, page, "admitted_total", report.Admitted)
	}

	p.logger.Info("pagination finished",
		"query", query,
		"stop_reason", report.StopReason,
		"pages_visited", report.PagesVisited,
		"seen", report.Seen,
		"admitted", report.Admitted,
		"rejected", report.Rejected,
		"duplicates", report.Duplicates,
		"faulted", report.Faulted)

	return listings, report
}

// processPage returns StopNone when pagination should move on.
func (p *Paginator) processPage(
	ctx context.Context,
	body []byte,
	page int,
	seen *dedup.Deduplicator,
	report *CrawlReport,
	listings *[]models.ListingSummary,
) (reason models.StopReason, detail string) {
	defer func() {
		if r := recover(); r != nil {
			reason = models.StopPageError
			detail = fmt.Sprintf("panic on page %d: %v", page, r)
		}
	}()

	doc, err := parser.ParseSearchPage(bytes.NewReader(body))
	if err != nil {
		return models.StopPageError, err.Error()
	}

	if doc.NoResults() {
		return models.StopEndOfResults, "no results banner"
	}

	nodes := doc.Listings()
	if nodes.Length() == 0 {
		if doc.Blocked() {
			p.logger.Warn("robot check detected", "page", page)
			return models.StopBlocked, "robot check page"
		}
		report.EmptyPages++
		p.logger.Warn("no listings on page", "page", page)
		return models.StopNone, ""
	}

	p.logger.Info("found listings", "page", page, "count", nodes.Length())

	for i := 0; i < nodes.Length(); i++ {
		if err := ctx.Err(); err != nil {
			return models.StopCancelled, err.Error()
		}

		report.Seen++
		result := p.extractor.Extract(nodes.Eq(i))

		switch result.Outcome {
		case parser.Faulted:
			report.Faulted++
			p.logger.Warn("listing fault", "page", page, "index", i, "reason", result.Reason)
		case parser.Rejected:
			report.Rejected++
			p.logger.Debug("listing rejected", "page", page, "index", i, "title", result.Summary.ShortTitle())
		case parser.Admitted:
			if !seen.Admit(result.Summary) {
				report.Duplicates++
				p.logger.Debug("duplicate listing", "page", page, "key", seen.Key(result.Summary))
				continue
			}
			report.Admitted++
			*listings = append(*listings, result.Summary)
			p.logger.Debug("listing admitted", "page", page, "title", result.Summary.ShortTitle())
		}
	}

	if !doc.HasNextPage() {
		return models.StopLastPage, "no enabled next control"
	}
	return models.StopNone, ""
}

func (p *Paginator) transition(state State, page int, attrs ...any) {
	p.logger.Debug("pagination state", append([]any{"state", state, "page", page}, attrs...)...)
}
