package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

const canonicalPathMarker = "/dp/"

var (
	identifierPattern = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
	identifierToken   = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	trackingPattern   = regexp.MustCompile(`(/ref=.*|\?.*)`)
)

// Site is the marketplace a page was fetched from.
type Site struct {
	BaseURL        string
	CurrencySymbol string
}

func DefaultSite() Site {
	return Site{BaseURL: "https://www.amazon.in", CurrencySymbol: "₹"}
}

// CanonicalURL builds the detail URL for a catalog identifier.
func (s Site) CanonicalURL(asin string) string {
	return strings.TrimRight(s.BaseURL, "/") + canonicalPathMarker + asin
}

// Resolve joins href against the site's base URL.
func (s Site) Resolve(href string) (string, bool) {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// ValidIdentifier reports whether v looks like a catalog identifier.
func ValidIdentifier(v string) bool {
	return identifierToken.MatchString(v)
}

// IdentifierFromURL extracts the catalog identifier embedded in a /dp/ path.
// Sponsored links carry the target path URL-encoded, so the unescaped form
// is tried as well.
func IdentifierFromURL(raw string) string {
	if m := identifierPattern.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}
	if unescaped, err := url.QueryUnescape(raw); err == nil && unescaped != raw {
		if m := identifierPattern.FindStringSubmatch(unescaped); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// StripTracking removes "/ref=..." suffixes and query strings.
func StripTracking(u string) string {
	return trackingPattern.ReplaceAllString(u, "")
}

// HasCanonicalPath reports whether u already points at a detail page.
func HasCanonicalPath(u string) bool {
	return strings.Contains(u, canonicalPathMarker)
}

// URLStrategy derives a product URL from a listing node. It returns ""
// when it cannot.
type URLStrategy func(node *goquery.Selection, site Site) string

// ProductURLStrategies is the ordered chain used by the listing extractor.
var ProductURLStrategies = []URLStrategy{
	fromIdentifierAttribute,
	fromHeadingHref,
}

func fromIdentifierAttribute(node *goquery.Selection, site Site) string {
	asin, _ := node.Attr("data-asin")
	asin = strings.TrimSpace(asin)
	if !ValidIdentifier(asin) {
		return ""
	}
	return site.CanonicalURL(asin)
}

func fromHeadingHref(node *goquery.Selection, site Site) string {
	href, ok := node.Find("h2 a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return NormalizeHref(site, href)
}

// NormalizeHref resolves href, strips tracking, and falls back to rebuilding
// the canonical URL from an identifier found in the original href.
func NormalizeHref(site Site, href string) string {
	resolved, ok := site.Resolve(href)
	if ok {
		cleaned := StripTracking(resolved)
		if HasCanonicalPath(cleaned) {
			return cleaned
		}
	}
	if asin := IdentifierFromURL(href); asin != "" {
		return site.CanonicalURL(asin)
	}
	return ""
}

// ProductURL runs the strategy chain and returns the URL or the sentinel.
func ProductURL(node *goquery.Selection, site Site) string {
	for _, strategy := range ProductURLStrategies {
		if u := strategy(node, site); u != "" {
			return u
		}
	}
	return models.Sentinel
}
