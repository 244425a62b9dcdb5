package dedup

import (
	"strings"
	"sync"

	"github.com/maltedev/amazon-listing-scraper/internal/models"
	"github.com/maltedev/amazon-listing-scraper/internal/parser"
)

// ListingKey identifies a listing across pages of one crawl.
type ListingKey string

// KeyOf returns the catalog identifier in the product URL or, failing that,
// the whitespace-collapsed title.
func KeyOf(summary models.ListingSummary) ListingKey {
	if asin := summary.ASIN; parser.ValidIdentifier(asin) {
		return ListingKey(asin)
	}
	if asin := parser.IdentifierFromURL(summary.ProductURL); asin != "" {
		return ListingKey(asin)
	}
	return ListingKey(strings.Join(strings.Fields(summary.Title), " "))
}

// Deduplicator remembers every key it has admitted.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[ListingKey]struct{}
}

func New() *Deduplicator {
	return &Deduplicator{seen: make(map[ListingKey]struct{})}
}

func (d *Deduplicator) Key(summary models.ListingSummary) ListingKey {
	return KeyOf(summary)
}

// Admit returns true the first time a key is seen and false afterwards.
func (d *Deduplicator) Admit(summary models.ListingSummary) bool {
	key := KeyOf(summary)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
