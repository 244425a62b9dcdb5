package parser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

const sponsoredListing = `<div data-component-type="s-search-result" data-asin="B0ABCDEF12">
	<span class="puis-label-text">Sponsored</span>
	<h2><a class="a-link-normal s-underline-text" href="/Teddy/dp/B0ABCDEF12/ref=sr_1_1?keywords=toys">
		<span class="a-size-base-plus">Cuddly   Teddy Bear 30cm</span>
	</a></h2>
	<div class="a-row"><span class="a-size-base-plus">ToyCo</span></div>
	<span class="a-icon-alt">4.5 out of 5 stars</span>
	<a href="/Teddy/product-reviews/B0ABCDEF12#customerReviews"><span>1,234</span></a>
	<span class="a-price"><span class="a-price-whole">1,499.</span></span>
	<img class="s-image" src="https://m.media-amazon.com/images/I/teddy.jpg">
	<span class="a-color-secondary">500+ bought in past month</span>
</div>`

func listingNode(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	node := doc.Find("div[data-component-type='s-search-result']").First()
	require.Equal(t, 1, node.Length())
	return node
}

func TestListingExtractorFullListing(t *testing.T) {
	extractor := NewListingExtractor(DefaultSite(), SponsoredOnly)

	result := extractor.Extract(listingNode(t, sponsoredListing))

	require.Equal(t, Admitted, result.Outcome)
	summary := result.Summary
	assert.Equal(t, "Cuddly Teddy Bear 30cm", summary.Title)
	assert.Equal(t, "ToyCo", summary.Brand)
	assert.Equal(t, "4.5", summary.Rating)
	assert.Equal(t, "1234", summary.ReviewCount)
	assert.Equal(t, "₹1,499", summary.Price)
	assert.Equal(t, "https://www.amazon.in/dp/B0ABCDEF12", summary.ProductURL)
	assert.Equal(t, "https://m.media-amazon.com/images/I/teddy.jpg", summary.ImageURL)
	assert.Equal(t, "500+ bought in past month", summary.BoughtInfo)
	assert.Equal(t, "B0ABCDEF12", summary.ASIN)
	assert.True(t, summary.IsSponsored)
}

func TestListingExtractorAdmissionPolicy(t *testing.T) {
	organic := `<div data-component-type="s-search-result" data-asin="B0ORGANIC1">
		<h2><a href="/Plush/dp/B0ORGANIC1"><span>Plush Bunny</span></a></h2>
	</div>`

	tests := []struct {
		name     string
		policy   AdmissionPolicy
		html     string
		expected Outcome
	}{
		{name: "sponsored only keeps sponsored", policy: SponsoredOnly, html: sponsoredListing, expected: Admitted},
		{name: "sponsored only rejects organic", policy: SponsoredOnly, html: organic, expected: Rejected},
		{name: "all keeps organic", policy: AdmitAll, html: organic, expected: Admitted},
		{name: "organic only rejects sponsored", policy: OrganicOnly, html: sponsoredListing, expected: Rejected},
		{name: "organic only keeps organic", policy: OrganicOnly, html: organic, expected: Admitted},
		{name: "empty policy defaults to sponsored only", policy: "", html: organic, expected: Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := NewListingExtractor(DefaultSite(), tt.policy)
			result := extractor.Extract(listingNode(t, tt.html))
			assert.Equal(t, tt.expected, result.Outcome)
		})
	}
}

func TestListingExtractorMissingFields(t *testing.T) {
	html := `<div data-component-type="s-search-result">
		<span>Sponsored</span>
	</div>`
	extractor := NewListingExtractor(DefaultSite(), SponsoredOnly)

	result := extractor.Extract(listingNode(t, html))

	require.Equal(t, Admitted, result.Outcome)
	summary := result.Summary
	assert.Equal(t, models.Sentinel, summary.Title)
	assert.Equal(t, models.Sentinel, summary.Brand)
	assert.Equal(t, models.Sentinel, summary.Rating)
	assert.Equal(t, models.DefaultReviews, summary.ReviewCount)
	assert.Equal(t, models.Sentinel, summary.Price)
	assert.Equal(t, models.Sentinel, summary.ProductURL)
	assert.Equal(t, models.Sentinel, summary.ImageURL)
	assert.Equal(t, models.Sentinel, summary.BoughtInfo)
	assert.Empty(t, summary.ASIN)
}

func TestListingExtractorEmptyNodeFaults(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div></div>`))
	require.NoError(t, err)

	extractor := NewListingExtractor(DefaultSite(), SponsoredOnly)
	result := extractor.Extract(doc.Find("section.missing"))

	assert.Equal(t, Faulted, result.Outcome)
	assert.NotEmpty(t, result.Reason)
}

func TestListingExtractorRatingStrategies(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		expected string
	}{
		{name: "icon alt text", fragment: `<span class="a-icon-alt">3.9 out of 5 stars</span>`, expected: "3.9"},
		{name: "fixed point star class", fragment: `<i class="a-icon a-icon-star-small a-star-small-45"></i>`, expected: "4.5"},
		{name: "hyphenated star class", fragment: `<i class="a-icon a-icon-star-small a-star-small-4-5"></i>`, expected: "4.5"},
		{name: "mini star class", fragment: `<i class="a-icon a-icon-star-mini a-star-mini-40"></i>`, expected: "4.0"},
		{name: "plain star class", fragment: `<i class="a-icon a-icon-star a-star-3-5"></i>`, expected: "3.5"},
		{name: "alt text wins over class", fragment: `<span class="a-icon-alt">4.1 out of 5</span><i class="a-icon-star-small a-star-small-45"></i>`, expected: "4.1"},
		{name: "no marker", fragment: `<span>great</span>`, expected: models.Sentinel},
	}

	extractor := NewListingExtractor(DefaultSite(), AdmitAll)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<div data-component-type="s-search-result">` + tt.fragment + `</div>`
			summary := extractor.Summarize(listingNode(t, html))
			assert.Equal(t, tt.expected, summary.Rating)
		})
	}
}

func TestListingExtractorReviewStrategies(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		expected string
		source   int
	}{
		{
			name:     "review link",
			fragment: `<a href="/x/product-reviews/B0ABCDEF12#customerReviews">1,234</a>`,
			expected: "1234",
			source:   0,
		},
		{
			name:     "underlined link",
			fragment: `<a class="a-link-normal s-underline-text" href="/x">1,234</a>`,
			expected: "1234",
			source:   0,
		},
		{
			name:     "secondary text span",
			fragment: `<span class="a-size-base" dir="auto">1,234</span>`,
			expected: "1234",
			source:   1,
		},
		{
			name:     "aria label",
			fragment: `<span aria-label="1,234 ratings"></span>`,
			expected: "1234",
			source:   2,
		},
		{
			name:     "zero link falls through",
			fragment: `<a href="#customerReviews">0</a><span aria-label="56 Reviews"></span>`,
			expected: "56",
			source:   2,
		},
		{
			name:     "heading digits are not counts",
			fragment: `<h2><a class="s-underline-text" href="/x">Bear 30cm</a></h2>`,
			expected: models.DefaultReviews,
			source:   -1,
		},
	}

	extractor := NewListingExtractor(DefaultSite(), AdmitAll)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<div data-component-type="s-search-result">` + tt.fragment + `</div>`
			node := listingNode(t, html)
			assert.Equal(t, tt.expected, extractor.Summarize(node).ReviewCount)
			assert.Equal(t, tt.source, extractor.reviews.Source(node))
		})
	}
}

func TestListingExtractorBrandIgnoresHeading(t *testing.T) {
	html := `<div data-component-type="s-search-result">
		<h2><span class="a-size-base-plus">Title Only</span></h2>
	</div>`
	extractor := NewListingExtractor(DefaultSite(), AdmitAll)

	summary := extractor.Summarize(listingNode(t, html))

	assert.Equal(t, "Title Only", summary.Title)
	assert.Equal(t, models.Sentinel, summary.Brand)
}

func TestListingExtractorBrandLineClamp(t *testing.T) {
	html := `<div data-component-type="s-search-result">
		<div class="a-section s-line-clamp-1"><span class="a-size-base s-size-override-12">FluffyCo</span></div>
	</div>`
	extractor := NewListingExtractor(DefaultSite(), AdmitAll)

	assert.Equal(t, "FluffyCo", extractor.Summarize(listingNode(t, html)).Brand)
}

func TestListingExtractorBoughtInfoScansAllSecondarySpans(t *testing.T) {
	html := `<div data-component-type="s-search-result">
		<span class="a-color-secondary">Ages: 3 years and up</span>
		<span class="a-color-secondary">1K+ bought in past month</span>
	</div>`
	extractor := NewListingExtractor(DefaultSite(), AdmitAll)

	assert.Equal(t, "1K+ bought in past month", extractor.Summarize(listingNode(t, html)).BoughtInfo)
}

func TestParseAdmissionPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected AdmissionPolicy
		hasError bool
	}{
		{input: "", expected: SponsoredOnly},
		{input: "sponsored-only", expected: SponsoredOnly},
		{input: " ALL ", expected: AdmitAll},
		{input: "organic-only", expected: OrganicOnly},
		{input: "whatever", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			policy, err := ParseAdmissionPolicy(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, policy)
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "admitted", Admitted.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "faulted", Faulted.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
