package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewListingSummaryDefaults(t *testing.T) {
	s := NewListingSummary()

	assert.Equal(t, Sentinel, s.Title)
	assert.Equal(t, Sentinel, s.ProductURL)
	assert.Equal(t, DefaultReviews, s.ReviewCount)
	assert.False(t, s.HasURL())
	assert.False(t, s.IsSponsored)
}

func TestShortTitle(t *testing.T) {
	s := ListingSummary{Title: strings.Repeat("a", 60)}
	assert.Equal(t, strings.Repeat("a", 50)+"...", s.ShortTitle())

	s.Title = "Teddy"
	assert.Equal(t, "Teddy", s.ShortTitle())
}

func TestStopReasonEarly(t *testing.T) {
	assert.True(t, StopBlocked.Early())
	assert.True(t, StopFetchFailure.Early())
	assert.False(t, StopEndOfResults.Early())
	assert.False(t, StopLastPage.Early())
	assert.False(t, StopPageLimit.Early())
}

func TestCrawlRunSlug(t *testing.T) {
	assert.Equal(t, "soft_toys", CrawlRun{Query: " soft  toys "}.Slug())
	assert.Equal(t, "x_______escaped", CrawlRun{Query: "x/../../escaped"}.Slug())
	assert.Equal(t, "Plüschtier_3-pack", CrawlRun{Query: "Plüschtier 3-pack"}.Slug())
	assert.NotContains(t, CrawlRun{Query: `..\..\win.ini`}.Slug(), ".")
}

func TestProductDetailIsEmpty(t *testing.T) {
	assert.True(t, ProductDetail{}.IsEmpty())
	assert.False(t, ProductDetail{Rating: "4.2"}.IsEmpty())
}
