package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-listing-scraper/internal/fetch"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/parser"
	"github.com/maltedev/amazon-listing-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-listing-scraper/pkg/logger"
)

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	status map[string]int
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, status: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	code := http.StatusOK
	if c, ok := f.status[url]; ok {
		code = c
	}
	resp := &fetch.Response{StatusCode: code, Body: []byte(body), URL: url}
	if !resp.OK() {
		return resp, fmt.Errorf("%w %d for %s", fetch.ErrStatus, code, url)
	}
	return resp, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingPacer struct {
	waits int
}

func (c *countingPacer) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

func listingHTML(asin, title string, sponsored bool) string {
	label := ""
	if sponsored {
		label = `<span class="puis-label-text">Sponsored</span>`
	}
	return fmt.Sprintf(`<div data-component-type="s-search-result" data-asin="%s">
		%s
		<h2><a href="/x/dp/%s/ref=sr_1_1"><span>%s</span></a></h2>
		<span class="a-price-whole">499.</span>
	</div>`, asin, label, asin, title)
}

func pageHTML(next bool, listings ...string) string {
	control := `<span class="s-pagination-next s-pagination-disabled">Next</span>`
	if next {
		control = `<a class="s-pagination-next" href="/s?k=toys&page=2">Next</a>`
	}
	return "<html><body>" + strings.Join(listings, "\n") + control + "</body></html>"
}

func asin(n int) string {
	return fmt.Sprintf("B0TEST%04d", n)
}

func sponsored(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, listingHTML(asin(i), fmt.Sprintf("Toy %d", i), true))
	}
	return out
}

func newTestPaginator(f fetch.Fetcher, pacer ratelimit.Pacer) *Paginator {
	site := parser.DefaultSite()
	return NewPaginator(f, parser.NewListingExtractor(site, parser.SponsoredOnly), site, pacer, logger.Discard())
}

func TestSearchURL(t *testing.T) {
	site := parser.DefaultSite()

	assert.Equal(t, "https://www.amazon.in/s?k=soft+toys", SearchURL(site, "soft toys", 1))
	assert.Equal(t, "https://www.amazon.in/s?k=soft+toys&page=3", SearchURL(site, "soft toys", 3))
	assert.Equal(t, "https://www.amazon.in/s?k=a%26b", SearchURL(site, "a&b", 1))
}

func TestPaginatorDeduplicatesAcrossPages(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	f.pages[SearchURL(site, "toys", 1)] = pageHTML(true, sponsored(1, 5)...)
	page2 := append(sponsored(1, 2), sponsored(6, 8)...)
	f.pages[SearchURL(site, "toys", 2)] = pageHTML(false, page2...)

	pacer := &countingPacer{}
	listings, report := newTestPaginator(f, pacer).Crawl(context.Background(), "toys", 20)

	require.Len(t, listings, 8)
	for i, l := range listings {
		assert.Equal(t, asin(i+1), l.ASIN)
	}
	assert.Equal(t, models.StopLastPage, report.StopReason)
	assert.Equal(t, 2, report.PagesVisited)
	assert.Equal(t, 10, report.Seen)
	assert.Equal(t, 8, report.Admitted)
	assert.Equal(t, 2, report.Duplicates)
	assert.Equal(t, 1, pacer.waits)
}

func TestPaginatorStopReasons(t *testing.T) {
	tests := []struct {
		name     string
		page1    string
		expected models.StopReason
	}{
		{
			name:     "robot check is blocked",
			page1:    `<html><body><p>Sorry, we just need to make sure you're not a robot.</p></body></html>`,
			expected: models.StopBlocked,
		},
		{
			name:     "captcha form is blocked",
			page1:    `<html><body><form action="/errors/validateCaptcha"></form></body></html>`,
			expected: models.StopBlocked,
		},
		{
			name:     "no results banner",
			page1:    `<html><body><div class="a-row" role="main">No results for zzqx.</div></body></html>`,
			expected: models.StopEndOfResults,
		},
		{
			name:     "single page",
			page1:    pageHTML(false, sponsored(1, 2)...),
			expected: models.StopLastPage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := parser.DefaultSite()
			f := newFakeFetcher()
			f.pages[SearchURL(site, "toys", 1)] = tt.page1

			_, report := newTestPaginator(f, nil).Crawl(context.Background(), "toys", 5)

			assert.Equal(t, tt.expected, report.StopReason)
			assert.Equal(t, 1, report.PagesVisited)
			assert.Len(t, f.Calls(), 1)
		})
	}
}

func TestPaginatorFetchFailureKeepsPartialResults(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	f.pages[SearchURL(site, "toys", 1)] = pageHTML(true, sponsored(1, 5)...)

	listings, report := newTestPaginator(f, nil).Crawl(context.Background(), "toys", 5)

	assert.Len(t, listings, 5)
	assert.Equal(t, models.StopFetchFailure, report.StopReason)
	assert.Equal(t, 1, report.PagesVisited)
	assert.True(t, report.StopReason.Early())
}

func TestPaginatorNonSuccessStatusIsFetchFailure(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	url := SearchURL(site, "toys", 1)
	f.pages[url] = pageHTML(true, sponsored(1, 5)...)
	f.status[url] = 503

	listings, report := newTestPaginator(f, nil).Crawl(context.Background(), "toys", 5)

	assert.Empty(t, listings)
	assert.Equal(t, models.StopFetchFailure, report.StopReason)
	assert.Equal(t, 0, report.PagesVisited)
}

// fetcherFunc lets a test hand back a response without the error that the
// real fetcher attaches to non-2xx statuses.
type fetcherFunc func(ctx context.Context, url string) (*fetch.Response, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (*fetch.Response, error) {
	return f(ctx, url)
}

func TestPaginatorRejectsUnusableResponses(t *testing.T) {
	tests := []struct {
		name   string
		resp   *fetch.Response
		detail string
	}{
		{
			name:   "not found without error",
			resp:   &fetch.Response{StatusCode: http.StatusNotFound, Body: []byte(pageHTML(true, sponsored(1, 5)...))},
			detail: "status 404",
		},
		{
			name:   "nil response without error",
			resp:   nil,
			detail: "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fetcherFunc(func(context.Context, string) (*fetch.Response, error) {
				return tt.resp, nil
			})

			var (
				listings []models.ListingSummary
				report   CrawlReport
			)
			require.NotPanics(t, func() {
				listings, report = newTestPaginator(f, nil).Crawl(context.Background(), "toys", 3)
			})

			assert.Empty(t, listings)
			assert.Equal(t, models.StopFetchFailure, report.StopReason)
			assert.Equal(t, tt.detail, report.StopDetail)
			assert.Equal(t, 0, report.PagesVisited)
		})
	}
}

func TestPaginatorEmptyPageContinues(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	f.pages[SearchURL(site, "toys", 1)] = `<html><body><p>Nothing to see here</p></body></html>`
	f.pages[SearchURL(site, "toys", 2)] = pageHTML(false, sponsored(1, 3)...)

	listings, report := newTestPaginator(f, nil).Crawl(context.Background(), "toys", 5)

	assert.Len(t, listings, 3)
	assert.Equal(t, 1, report.EmptyPages)
	assert.Equal(t, 2, report.PagesVisited)
	assert.Equal(t, models.StopLastPage, report.StopReason)
}

func TestPaginatorPageLimit(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	f.pages[SearchURL(site, "toys", 1)] = pageHTML(true, sponsored(1, 2)...)
	f.pages[SearchURL(site, "toys", 2)] = pageHTML(true, sponsored(3, 4)...)

	listings, report := newTestPaginator(f, nil).Crawl(context.Background(), "toys", 2)

	assert.Len(t, listings, 4)
	assert.Equal(t, models.StopPageLimit, report.StopReason)
	assert.False(t, report.StopReason.Early())
	assert.Len(t, f.Calls(), 2)
}

func TestPaginatorRejectsOrganicListings(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	f.pages[SearchURL(site, "toys", 1)] = pageHTML(false,
		listingHTML(asin(1), "Organic", false),
		listingHTML(asin(2), "Sponsored toy", true),
	)

	listings, report := newTestPaginator(f, nil).Crawl(context.Background(), "toys", 1)

	require.Len(t, listings, 1)
	assert.Equal(t, asin(2), listings[0].ASIN)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Admitted)
}

func TestPaginatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFakeFetcher()
	listings, report := newTestPaginator(f, nil).Crawl(ctx, "toys", 5)

	assert.Empty(t, listings)
	assert.Equal(t, models.StopCancelled, report.StopReason)
	assert.Empty(t, f.Calls())
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(*goquery.Selection) parser.ListingResult {
	panic("malformed tree")
}

func (panickingExtractor) Policy() parser.AdmissionPolicy {
	return parser.AdmitAll
}

func TestPaginatorPageErrorKeepsEarlierPages(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	f.pages[SearchURL(site, "toys", 1)] = pageHTML(true, sponsored(1, 2)...)

	p := NewPaginator(f, panickingExtractor{}, site, nil, logger.Discard())
	listings, report := p.Crawl(context.Background(), "toys", 3)

	assert.Empty(t, listings)
	assert.Equal(t, models.StopPageError, report.StopReason)
	assert.Contains(t, report.StopDetail, "malformed tree")
}

func TestPaginatorZeroPages(t *testing.T) {
	f := newFakeFetcher()
	_, report := newTestPaginator(f, nil).Crawl(context.Background(), "toys", 0)

	assert.Equal(t, models.StopPageLimit, report.StopReason)
	assert.Empty(t, f.Calls())
}

func TestPaginatorPacerUsesJitterRange(t *testing.T) {
	site := parser.DefaultSite()
	f := newFakeFetcher()
	f.pages[SearchURL(site, "toys", 1)] = pageHTML(true, sponsored(1, 1)...)
	f.pages[SearchURL(site, "toys", 2)] = pageHTML(true, sponsored(2, 2)...)
	f.pages[SearchURL(site, "toys", 3)] = pageHTML(false, sponsored(3, 3)...)

	var delays []time.Duration
	pacer := ratelimit.NewJitterPacer(3*time.Second, 7*time.Second).
		WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		})

	_, report := newTestPaginator(f, pacer).Crawl(context.Background(), "toys", 3)

	assert.Equal(t, models.StopLastPage, report.StopReason)
	require.Len(t, delays, 2)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.Less(t, d, 7*time.Second)
	}
}
