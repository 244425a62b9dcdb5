package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

var sponsoredPattern = regexp.MustCompile(`(?i)sponsored`)

const boughtMarker = "bought in past month"

// Outcome is the result of extracting one listing.
type Outcome int

const (
	Admitted Outcome = iota
	Rejected
	Faulted
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ListingResult carries a summary only when Outcome is Admitted.
type ListingResult struct {
	Summary models.ListingSummary
	Outcome Outcome
	Reason  string
}

// AdmissionPolicy decides which listings become records.
type AdmissionPolicy string

const (
	// SponsoredOnly keeps only listings carrying a "Sponsored" label. This
	// is the historical behaviour and the default.
	SponsoredOnly AdmissionPolicy = "sponsored-only"
	AdmitAll      AdmissionPolicy = "all"
	OrganicOnly   AdmissionPolicy = "organic-only"
)

func ParseAdmissionPolicy(s string) (AdmissionPolicy, error) {
	switch p := AdmissionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SponsoredOnly, nil
	case SponsoredOnly, AdmitAll, OrganicOnly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown admission policy %q", s)
	}
}

func (p AdmissionPolicy) Admits(sponsored bool) bool {
	switch p {
	case AdmitAll:
		return true
	case OrganicOnly:
		return !sponsored
	default:
		return sponsored
	}
}

type starIcon struct {
	selector string
	prefix   string
}

var starIcons = []starIcon{
	{selector: "i.a-icon-star-small", prefix: "a-star-small-"},
	{selector: "i.a-icon-star-mini", prefix: "a-star-mini-"},
	{selector: "i.a-icon-star", prefix: "a-star-"},
}

// ListingExtractor turns one search-result container into a summary.
type ListingExtractor struct {
	site   Site
	policy AdmissionPolicy

	title   Chain
	brand   Chain
	rating  Chain
	reviews Chain
	price   Chain
	image   Chain
	bought  Chain
}

func NewListingExtractor(site Site, policy AdmissionPolicy) *ListingExtractor {
	if policy == "" {
		policy = SponsoredOnly
	}

	return &ListingExtractor{
		site:   site,
		policy: policy,
		title: Chain{
			textProbe("h2"),
		},
		brand: Chain{
			outsideHeading("span.a-size-base-plus", selectionText),
			textProbe("[class*='s-line-clamp'] .s-size-override-12"),
		},
		rating: Chain{
			iconAltRating,
			starClassRating,
		},
		reviews: Chain{
			reviewLinkCount,
			secondaryTextCount,
			ariaLabelCount,
		},
		price: Chain{
			wholePrice(site.CurrencySymbol),
		},
		image: Chain{
			attrProbe("img.s-image", "src"),
		},
		bought: Chain{
			boughtInfo,
		},
	}
}

// Policy returns the admission policy in use.
func (e *ListingExtractor) Policy() AdmissionPolicy {
	return e.policy
}

// Extract never panics; a structural fault in one listing is reported as
// Faulted so the page loop can keep going.
func (e *ListingExtractor) Extract(node *goquery.Selection) (result ListingResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ListingResult{Outcome: Faulted, Reason: fmt.Sprintf("extraction panic: %v", r)}
		}
	}()

	if node == nil || node.Length() == 0 {
		return ListingResult{Outcome: Faulted, Reason: "empty listing node"}
	}

	summary := e.Summarize(node)
	if !e.policy.Admits(summary.IsSponsored) {
		return ListingResult{Summary: summary, Outcome: Rejected, Reason: string(e.policy)}
	}

	return ListingResult{Summary: summary, Outcome: Admitted}
}

// Summarize runs every field chain without applying the admission policy.
func (e *ListingExtractor) Summarize(node *goquery.Selection) models.ListingSummary {
	summary := models.NewListingSummary()

	summary.Title = e.title.Resolve(node, models.Sentinel)
	summary.ProductURL = ProductURL(node, e.site)
	summary.ASIN = IdentifierFromURL(summary.ProductURL)
	summary.Brand = e.brand.Resolve(node, models.Sentinel)
	summary.Rating = e.rating.Resolve(node, models.Sentinel)
	summary.ReviewCount = e.reviews.Resolve(node, models.DefaultReviews)
	summary.Price = e.price.Resolve(node, models.Sentinel)
	summary.ImageURL = e.image.Resolve(node, models.Sentinel)
	summary.BoughtInfo = e.bought.Resolve(node, models.Sentinel)
	summary.IsSponsored = isSponsored(node)

	return summary
}

func iconAltRating(sel *goquery.Selection) string {
	return parseDecimal(sel.Find("span.a-icon-alt").First().Text())
}

func starClassRating(sel *goquery.Selection) string {
	for _, icon := range starIcons {
		el := sel.Find(icon.selector).First()
		if el.Length() == 0 {
			continue
		}
		class, _ := el.Attr("class")
		for _, token := range strings.Fields(class) {
			if !strings.HasPrefix(token, icon.prefix) {
				continue
			}
			if v := decodeStarToken(strings.TrimPrefix(token, icon.prefix)); v != "" {
				return v
			}
		}
	}
	return ""
}

func reviewLinkCount(sel *goquery.Selection) string {
	return outsideHeading("a[href*='customerReviews'], a.s-underline-text", func(link *goquery.Selection) string {
		return parseNonZeroCount(link.Text())
	})(sel)
}

func secondaryTextCount(sel *goquery.Selection) string {
	return parseNonZeroCount(sel.Find("span.a-size-base[dir='auto']").First().Text())
}

func ariaLabelCount(sel *goquery.Selection) string {
	var count string
	sel.Find("[aria-label]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		label := strings.ToLower(el.AttrOr("aria-label", ""))
		if !strings.Contains(label, "rating") && !strings.Contains(label, "review") {
			return true
		}
		count = parseNonZeroCount(label)
		return count == ""
	})
	return count
}

func wholePrice(symbol string) Probe {
	return func(sel *goquery.Selection) string {
		whole := selectionText(sel.Find("span.a-price-whole"))
		whole = strings.TrimSuffix(whole, ".")
		if whole == "" {
			return ""
		}
		return symbol + whole
	}
}

func boughtInfo(sel *goquery.Selection) string {
	var info string
	sel.Find("span.a-color-secondary").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := cleanText(el.Text())
		if strings.Contains(text, boughtMarker) {
			info = text
			return false
		}
		return true
	})
	return info
}

func isSponsored(sel *goquery.Selection) bool {
	return sel.Find("span").FilterFunction(func(_ int, el *goquery.Selection) bool {
		return sponsoredPattern.MatchString(el.Text())
	}).Length() > 0
}
