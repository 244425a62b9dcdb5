package parser

import (
	"io"

	"github.com/PuerkitoBio/goquery"
)

// ListingParser extracts summaries from search-result containers.
type ListingParser interface {
	Extract(node *goquery.Selection) ListingResult
	Policy() AdmissionPolicy
}

// DetailParser extracts the enrichment fields from a product page.
type DetailParser interface {
	ExtractHTML(body io.Reader) DetailResult
}

var (
	_ ListingParser = (*ListingExtractor)(nil)
	_ DetailParser  = (*DetailExtractor)(nil)
)
