package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsePage(t *testing.T, html string) *SearchPage {
	t.Helper()
	page, err := ParseSearchPage(strings.NewReader(html))
	require.NoError(t, err)
	return page
}

func TestSearchPageMarkers(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		noResults bool
		blocked   bool
		hasNext   bool
		listings  int
	}{
		{
			name: "regular page",
			html: `<div data-component-type="s-search-result" data-asin="B0ABCDEF12"></div>
				<div data-component-type="s-search-result" data-asin="B0ABCDEF13"></div>
				<a class="s-pagination-item s-pagination-next" href="/s?k=toys&page=2">Next</a>`,
			hasNext:  true,
			listings: 2,
		},
		{
			name: "last page",
			html: `<div data-component-type="s-search-result"></div>
				<span class="s-pagination-item s-pagination-next s-pagination-disabled">Next</span>`,
			listings: 1,
		},
		{
			name:     "legacy disabled next",
			html:     `<div data-component-type="s-search-result"></div><a class="s-pagination-next a-disabled">Next</a>`,
			listings: 1,
		},
		{
			name:     "aria disabled next",
			html:     `<div data-component-type="s-search-result"></div><a class="s-pagination-next" aria-disabled="true">Next</a>`,
			listings: 1,
		},
		{
			name:      "no results banner",
			html:      `<div class="a-row" role="main"><span>No results for </span><span>zzqx</span></div>`,
			noResults: true,
		},
		{
			name:    "robot check",
			html:    `<p>Sorry, we just need to make sure you're not a robot.</p>`,
			blocked: true,
		},
		{
			name:    "captcha form",
			html:    `<form method="get" action="/errors/validateCaptcha"><input name="field-keywords"></form>`,
			blocked: true,
		},
		{
			name: "apology without robot is not a block",
			html: `<p>Sorry, something went wrong.</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := parsePage(t, "<html><body>"+tt.html+"</body></html>")
			assert.Equal(t, tt.noResults, page.NoResults())
			assert.Equal(t, tt.blocked, page.Blocked())
			assert.Equal(t, tt.hasNext, page.HasNextPage())
			assert.Equal(t, tt.listings, page.Listings().Length())
		})
	}
}
