package parser

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/amazon-listing-scraper/internal/models"
)

var brandHeader = regexp.MustCompile(`(?i)^\s*(brand|marke|markenname)\b`)

// DetailResult is the outcome of reading one detail page. Detail is the
// zero value whenever Err is set.
type DetailResult struct {
	Detail models.ProductDetail
	Err    error
}

// BylineTemplate pulls a brand out of the byline credit text. It returns ""
// when the text does not follow its template.
type BylineTemplate func(text string) string

// DefaultBylineTemplates covers the English and German storefront bylines.
var DefaultBylineTemplates = []BylineTemplate{
	afterMarker("Brand:"),
	afterMarker("Marke:"),
	storeTemplate("Visit the", "Store"),
	storeTemplate("Besuchen Sie den", "-Store"),
}

func afterMarker(marker string) BylineTemplate {
	return func(text string) string {
		_, after, ok := strings.Cut(text, marker)
		if !ok {
			return ""
		}
		return cleanText(after)
	}
}

func storeTemplate(prefix, suffix string) BylineTemplate {
	return func(text string) string {
		if !strings.Contains(text, prefix) {
			return ""
		}
		brand := strings.ReplaceAll(text, prefix, "")
		brand = strings.ReplaceAll(brand, suffix, "")
		return cleanText(brand)
	}
}

// DetailExtractor reads brand, rating and review count from a product page.
type DetailExtractor struct {
	brand   Chain
	rating  Chain
	reviews Chain
}

func NewDetailExtractor() *DetailExtractor {
	return &DetailExtractor{
		brand: Chain{
			keyedTableValue("table#productDetails_detailBullets_sections1"),
			keyedTableValue("#productDetails_techSpec_section_1"),
			bylineBrand(DefaultBylineTemplates),
		},
		rating: Chain{
			func(sel *goquery.Selection) string {
				title, _ := sel.Find("span#acrPopover").First().Attr("title")
				return parseDecimal(title)
			},
		},
		reviews: Chain{
			func(sel *goquery.Selection) string {
				return parseCount(sel.Find("span#acrCustomerReviewText").First().Text())
			},
		},
	}
}

// ExtractHTML parses body and extracts from the resulting document.
func (e *DetailExtractor) ExtractHTML(body io.Reader) DetailResult {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return DetailResult{Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}
	return e.Extract(doc.Selection)
}

// Extract never panics. A fault yields an empty detail and an error.
func (e *DetailExtractor) Extract(page *goquery.Selection) (result DetailResult) {
	defer func() {
		if r := recover(); r != nil {
			result = DetailResult{Err: fmt.Errorf("detail extraction panic: %v", r)}
		}
	}()

	if page == nil {
		return DetailResult{Err: fmt.Errorf("nil detail page")}
	}

	return DetailResult{
		Detail: models.ProductDetail{
			Brand:       e.brand.Resolve(page, models.UnknownBrand),
			Rating:      e.rating.Resolve(page, models.Sentinel),
			ReviewCount: e.reviews.Resolve(page, models.DefaultReviews),
		},
	}
}

// keyedTableValue finds the th labelled Brand inside region and returns the
// text of the cell that follows it.
func keyedTableValue(region string) Probe {
	return func(sel *goquery.Selection) string {
		header := sel.Find(region + " th").FilterFunction(func(_ int, th *goquery.Selection) bool {
			return brandHeader.MatchString(th.Text())
		}).First()
		if header.Length() == 0 {
			return ""
		}

		cell := header.NextAllFiltered("td").First()
		if cell.Length() == 0 {
			cell = header.Parent().Find("td").First()
		}
		return selectionText(cell)
	}
}

func bylineBrand(templates []BylineTemplate) Probe {
	return func(sel *goquery.Selection) string {
		byline := sel.Find("a#bylineInfo").First()
		if byline.Length() == 0 {
			return ""
		}
		text := strings.TrimSpace(byline.Text())
		for _, tpl := range templates {
			if brand := tpl(text); brand != "" {
				return brand
			}
		}
		return ""
	}
}
