package parser

import (
	"github.com/PuerkitoBio/goquery"
)

// Probe reads one candidate value from a node. It returns "" when its
// marker is absent so the chain can move on.
type Probe func(sel *goquery.Selection) string

// Chain is an ordered list of probes for a single field.
type Chain []Probe

// Resolve returns the first non-empty probe result, or fallback.
func (c Chain) Resolve(sel *goquery.Selection, fallback string) string {
	if v, idx := c.resolve(sel); idx >= 0 {
		return v
	}
	return fallback
}

// Source returns the index of the probe that produced the value, or -1.
func (c Chain) Source(sel *goquery.Selection) int {
	_, idx := c.resolve(sel)
	return idx
}

func (c Chain) resolve(sel *goquery.Selection) (string, int) {
	for i, probe := range c {
		if v := probe(sel); v != "" {
			return v, i
		}
	}
	return "", -1
}

// textProbe reads the collapsed text of the first match of selector.
func textProbe(selector string) Probe {
	return func(sel *goquery.Selection) string {
		return selectionText(sel.Find(selector))
	}
}

// attrProbe reads an attribute of the first match of selector.
func attrProbe(selector, attr string) Probe {
	return func(sel *goquery.Selection) string {
		v, _ := sel.Find(selector).First().Attr(attr)
		return v
	}
}

// outsideHeading narrows a probe to elements that are not part of the
// primary heading.
func outsideHeading(selector string, read func(*goquery.Selection) string) Probe {
	return func(sel *goquery.Selection) string {
		match := sel.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Closest("h2").Length() == 0
		})
		if match.Length() == 0 {
			return ""
		}
		return read(match.First())
	}
}
