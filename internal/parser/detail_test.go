package parser

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

func TestDetailExtractorBrandChain(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name: "detail bullets table",
			html: `<table id="productDetails_detailBullets_sections1">
				<tr><th>Manufacturer</th><td>Big Factory Ltd</td></tr>
				<tr><th class="a-color-secondary"> Brand </th><td> ToyCo </td></tr>
			</table>`,
			expected: "ToyCo",
		},
		{
			name: "marketplace row does not count as brand",
			html: `<table id="productDetails_detailBullets_sections1">
				<tr><th>Marketplace</th><td>Amazon.in</td></tr>
				<tr><th>Markenname</th><td>Kuschelwerk</td></tr>
			</table>`,
			expected: "Kuschelwerk",
		},
		{
			name: "brand name header",
			html: `<table id="productDetails_detailBullets_sections1">
				<tr><th>Sub-brand of</th><td>Parent Co</td></tr>
				<tr><th>Brand Name</th><td>ToyCo</td></tr>
			</table>`,
			expected: "ToyCo",
		},
		{
			name: "tech spec section",
			html: `<div id="productDetails_techSpec_section_1"><table>
				<tr><th>Marke</th><td>Kuschelwerk</td></tr>
			</table></div>`,
			expected: "Kuschelwerk",
		},
		{
			name:     "byline brand prefix",
			html:     `<a id="bylineInfo" href="/stores/ToyCo">Brand: ToyCo</a>`,
			expected: "ToyCo",
		},
		{
			name:     "byline store link",
			html:     `<a id="bylineInfo" href="/stores/ToyCo">Visit the ToyCo Store</a>`,
			expected: "ToyCo",
		},
		{
			name:     "german byline prefix",
			html:     `<a id="bylineInfo">Marke: Kuschelwerk</a>`,
			expected: "Kuschelwerk",
		},
		{
			name:     "german store link",
			html:     `<a id="bylineInfo">Besuchen Sie den Kuschelwerk-Store</a>`,
			expected: "Kuschelwerk",
		},
		{
			name: "table wins over byline",
			html: `<table id="productDetails_detailBullets_sections1"><tr><th>Brand</th><td>ToyCo</td></tr></table>
				<a id="bylineInfo">Visit the Other Store</a>`,
			expected: "ToyCo",
		},
		{
			name:     "unrecognised byline",
			html:     `<a id="bylineInfo">by Jane Doe</a>`,
			expected: models.UnknownBrand,
		},
		{
			name:     "no brand sources",
			html:     `<div id="productTitle">Teddy</div>`,
			expected: models.UnknownBrand,
		},
	}

	extractor := NewDetailExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractor.ExtractHTML(strings.NewReader("<html><body>" + tt.html + "</body></html>"))
			require.NoError(t, result.Err)
			assert.Equal(t, tt.expected, result.Detail.Brand)
		})
	}
}

func TestDetailExtractorRatingAndReviews(t *testing.T) {
	html := `<html><body>
		<span id="acrPopover" title="4.3 out of 5 stars"><span>4.3</span></span>
		<span id="acrCustomerReviewText">2,345 ratings</span>
	</body></html>`

	result := NewDetailExtractor().ExtractHTML(strings.NewReader(html))

	require.NoError(t, result.Err)
	assert.Equal(t, models.UnknownBrand, result.Detail.Brand)
	assert.Equal(t, "4.3", result.Detail.Rating)
	assert.Equal(t, "2345", result.Detail.ReviewCount)
}

func TestDetailExtractorDefaults(t *testing.T) {
	result := NewDetailExtractor().ExtractHTML(strings.NewReader(`<html><body><p>nothing</p></body></html>`))

	require.NoError(t, result.Err)
	assert.Equal(t, models.ProductDetail{
		Brand:       models.UnknownBrand,
		Rating:      models.Sentinel,
		ReviewCount: models.DefaultReviews,
	}, result.Detail)
}

func TestDetailExtractorReadError(t *testing.T) {
	result := NewDetailExtractor().ExtractHTML(iotest.ErrReader(errors.New("connection reset")))

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "failed to parse HTML")
	assert.True(t, result.Detail.IsEmpty())
}

func TestDetailExtractorNilPage(t *testing.T) {
	result := NewDetailExtractor().Extract(nil)

	require.Error(t, result.Err)
	assert.True(t, result.Detail.IsEmpty())
}
