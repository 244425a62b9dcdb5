package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maltedev/amazon-listing-scraper/internal/parser"
)

// Marketplace describes one regional storefront.
type Marketplace struct {
	Code           string
	Label          string
	Host           string
	CurrencySymbol string
	AcceptLanguage string
	Locale         string
	TimezoneID     string
}

var marketplaces = map[string]Marketplace{
	"IN": {Code: "IN", Label: "india", Host: "www.amazon.in", CurrencySymbol: "₹", AcceptLanguage: "en-IN,en;q=0.9", Locale: "en-IN", TimezoneID: "Asia/Kolkata"},
	"US": {Code: "US", Label: "usa", Host: "www.amazon.com", CurrencySymbol: "$", AcceptLanguage: "en-US,en;q=0.9", Locale: "en-US", TimezoneID: "America/New_York"},
	"CA": {Code: "CA", Label: "canada", Host: "www.amazon.ca", CurrencySymbol: "$", AcceptLanguage: "en-CA,en;q=0.9", Locale: "en-CA", TimezoneID: "America/Toronto"},
	"GB": {Code: "GB", Label: "uk", Host: "www.amazon.co.uk", CurrencySymbol: "£", AcceptLanguage: "en-GB,en;q=0.9", Locale: "en-GB", TimezoneID: "Europe/London"},
	"DE": {Code: "DE", Label: "germany", Host: "www.amazon.de", CurrencySymbol: "€", AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8", Locale: "de-DE", TimezoneID: "Europe/Berlin"},
	"FR": {Code: "FR", Label: "france", Host: "www.amazon.fr", CurrencySymbol: "€", AcceptLanguage: "fr-FR,fr;q=0.9,en;q=0.8", Locale: "fr-FR", TimezoneID: "Europe/Paris"},
	"IT": {Code: "IT", Label: "italy", Host: "www.amazon.it", CurrencySymbol: "€", AcceptLanguage: "it-IT,it;q=0.9,en;q=0.8", Locale: "it-IT", TimezoneID: "Europe/Rome"},
	"ES": {Code: "ES", Label: "spain", Host: "www.amazon.es", CurrencySymbol: "€", AcceptLanguage: "es-ES,es;q=0.9,en;q=0.8", Locale: "es-ES", TimezoneID: "Europe/Madrid"},
	"JP": {Code: "JP", Label: "japan", Host: "www.amazon.co.jp", CurrencySymbol: "￥", AcceptLanguage: "ja-JP,ja;q=0.9,en;q=0.8", Locale: "ja-JP", TimezoneID: "Asia/Tokyo"},
	"AU": {Code: "AU", Label: "australia", Host: "www.amazon.com.au", CurrencySymbol: "$", AcceptLanguage: "en-AU,en;q=0.9", Locale: "en-AU", TimezoneID: "Australia/Sydney"},
}

var marketplaceAlias = map[string]string{
	"UK": "GB",
}

// MarketplaceFor looks up a storefront by its two-letter code.
func MarketplaceFor(code string) (Marketplace, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if canonical, ok := marketplaceAlias[normalized]; ok {
		normalized = canonical
	}
	m, ok := marketplaces[normalized]
	if !ok {
		return Marketplace{}, fmt.Errorf("unsupported marketplace %q (supported: %s)", code, strings.Join(Marketplaces(), ", "))
	}
	return m, nil
}

// Marketplaces returns the supported codes in sorted order.
func Marketplaces() []string {
	codes := make([]string, 0, len(marketplaces))
	for code := range marketplaces {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (m Marketplace) BaseURL() string {
	return "https://" + m.Host
}

func (m Marketplace) Site() parser.Site {
	return parser.Site{BaseURL: m.BaseURL(), CurrencySymbol: m.CurrencySymbol}
}

// Slug names the storefront in output files ("amazon_india_...").
func (m Marketplace) Slug() string {
	if m.Label != "" {
		return m.Label
	}
	return strings.ToLower(m.Code)
}
