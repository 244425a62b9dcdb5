package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	decimalPattern   = regexp.MustCompile(`(\d+\.\d+)`)
	countPattern     = regexp.MustCompile(`(\d+(?:,\d+)*)`)
	starValuePattern = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func selectionText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return cleanText(sel.First().Text())
}

// parseDecimal returns the first "d.d" number in s, or "".
func parseDecimal(s string) string {
	m := decimalPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// parseCount returns the first integer in s with thousands separators
// removed ("1,234 ratings" -> "1234"), or "".
func parseCount(s string) string {
	m := countPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.ReplaceAll(m[1], ",", "")
}

// parseNonZeroCount is parseCount that treats "0" as a miss so a later
// strategy in the chain still gets a chance.
func parseNonZeroCount(s string) string {
	c := parseCount(s)
	if strings.Trim(c, "0") == "" {
		return ""
	}
	return c
}

// decodeStarToken turns the value part of a star icon class into a rating.
// Fixed-point tokens ("45") are divided by ten, hyphenated tokens ("4-5")
// become "4.5".
func decodeStarToken(v string) string {
	if v == "" {
		return ""
	}
	if isDigits(v) {
		if n, err := strconv.Atoi(v); err == nil {
			return strconv.FormatFloat(float64(n)/10, 'f', 1, 64)
		}
		return ""
	}
	if strings.Contains(v, "-") {
		candidate := strings.ReplaceAll(v, "-", ".")
		if starValuePattern.MatchString(candidate) {
			return candidate
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
