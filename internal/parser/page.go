package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	listingSelector   = "div[data-component-type='s-search-result']"
	noResultsSelector = "div.a-row[role='main']"
	nextPageSelector  = "a.s-pagination-next"
	captchaSelector   = "form[action*='validateCaptcha']"
	noResultsPhrase   = "No results for"
)

// SearchPage wraps a parsed search-result page.
type SearchPage struct {
	doc *goquery.Document
}

func ParseSearchPage(body io.Reader) (*SearchPage, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &SearchPage{doc: doc}, nil
}

func NewSearchPage(doc *goquery.Document) *SearchPage {
	return &SearchPage{doc: doc}
}

// NoResults reports the "No results for ..." banner in the results summary.
func (p *SearchPage) NoResults() bool {
	found := false
	p.doc.Find(noResultsSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.Contains(s.Text(), noResultsPhrase)
		return !found
	})
	return found
}

// Listings returns every listing container on the page.
func (p *SearchPage) Listings() *goquery.Selection {
	return p.doc.Find(listingSelector)
}

// Blocked reports a robot-check / captcha interstitial.
func (p *SearchPage) Blocked() bool {
	if p.doc.Find(captchaSelector).Length() > 0 {
		return true
	}
	text := p.doc.Text()
	return strings.Contains(text, "Sorry") && strings.Contains(text, "robot")
}

// HasNextPage reports whether an enabled "next" pagination control exists.
func (p *SearchPage) HasNextPage() bool {
	next := p.doc.Find(nextPageSelector).First()
	if next.Length() == 0 {
		return false
	}
	if next.HasClass("a-disabled") || next.HasClass("s-pagination-disabled") {
		return false
	}
	return next.AttrOr("aria-disabled", "") != "true"
}
