package models

import (
	"strings"
	"time"
	"unicode"
)

const (
	// Sentinel marks a field that could not be determined.
	Sentinel       = "N/A"
	UnknownBrand   = "Unknown"
	DefaultReviews = "0"
)

// ListingSummary is one search-result entry.
type ListingSummary struct {
	Title       string `json:"title"`
	Brand       string `json:"brand"`
	Rating      string `json:"rating"`
	ReviewCount string `json:"review_count"`
	Price       string `json:"price"`
	ProductURL  string `json:"product_url"`
	ImageURL    string `json:"image_url"`
	BoughtInfo  string `json:"bought_info"`
	ASIN        string `json:"asin,omitempty"`
	IsSponsored bool   `json:"is_sponsored"`
}

// NewListingSummary returns a summary with every field at its default.
func NewListingSummary() ListingSummary {
	return ListingSummary{
		Title:       Sentinel,
		Brand:       Sentinel,
		Rating:      Sentinel,
		ReviewCount: DefaultReviews,
		Price:       Sentinel,
		ProductURL:  Sentinel,
		ImageURL:    Sentinel,
		BoughtInfo:  Sentinel,
	}
}

// ShortTitle truncates the title for log lines.
func (l ListingSummary) ShortTitle() string {
	const max = 50
	runes := []rune(l.Title)
	if len(runes) <= max {
		return l.Title
	}
	return string(runes[:max]) + "..."
}

// HasURL reports whether the product URL was recovered.
func (l ListingSummary) HasURL() bool {
	return l.ProductURL != "" && l.ProductURL != Sentinel
}

// ProductDetail holds values read from a listing's own page. Empty fields
// are absent; the zero value is the result of a failed extraction.
type ProductDetail struct {
	Brand       string `json:"brand,omitempty"`
	Rating      string `json:"rating,omitempty"`
	ReviewCount string `json:"review_count,omitempty"`
}

func (d ProductDetail) IsEmpty() bool {
	return d.Brand == "" && d.Rating == "" && d.ReviewCount == ""
}

// EnrichedRecord is a summary with detail-page values applied.
type EnrichedRecord struct {
	ListingSummary
	DetailFetched bool `json:"detail_fetched"`
}

// StopReason explains why a crawl ended.
type StopReason string

const (
	StopNone         StopReason = ""
	StopFetchFailure StopReason = "fetch-failure"
	StopEndOfResults StopReason = "end-of-results"
	StopBlocked      StopReason = "blocked"
	StopLastPage     StopReason = "last-page"
	StopPageLimit    StopReason = "page-limit"
	StopPageError    StopReason = "page-error"
	StopCancelled    StopReason = "cancelled"
)

// Early reports whether the crawl ended before data ran out naturally.
func (r StopReason) Early() bool {
	switch r {
	case StopFetchFailure, StopBlocked, StopPageError, StopCancelled:
		return true
	}
	return false
}

// CrawlRun describes one crawl of a search term.
type CrawlRun struct {
	ID           string     `json:"id"`
	Query        string     `json:"query"`
	MaxPages     int        `json:"max_pages"`
	PagesVisited int        `json:"pages_visited"`
	StopReason   StopReason `json:"stop_reason"`
	Admitted     int        `json:"admitted"`
	Enriched     int        `json:"enriched"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at,omitempty"`
	Err          string     `json:"error,omitempty"`
}

// Slug turns the query into a file-name fragment ("soft toys" -> "soft_toys").
// Anything other than letters, digits, '-' and '_' becomes '_', so the result
// never contains a path separator or a dot.
func (r CrawlRun) Slug() string {
	return strings.Map(func(c rune) rune {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '-' || c == '_' {
			return c
		}
		return '_'
	}, strings.Join(strings.Fields(r.Query), "_"))
}
