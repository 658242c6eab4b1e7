// Package titles extracts band, venue and date from free-form recording titles such as
// "Thou @ Siberia (New Orleans, LA) on 01.20.12".
//
// Every extractor tries an ordered pattern list and returns the first acceptable match. The order is
// load-bearing: both query generation and candidate scoring depend on it.
package titles

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var bandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^([^@]+?)\s*@`),
	regexp.MustCompile(`^(.+?)\s+on\s+\d`),
	regexp.MustCompile(`^(.+?)\s+in\s+\d`),
	regexp.MustCompile(`^(.+?)\s+-\s+`),
}

var venuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)@\s+([^(]+?)\s*\(`),
	regexp.MustCompile(`(?i)@\s+(.+?)(?:\s+on\s|\s+\[|\s+\d{4}|$)`),
	regexp.MustCompile(`(?i)\bat\s+([^(]+?)\s*\(`),
	regexp.MustCompile(`(?i)\bat\s+(.+?)(?:\s+on\s|\s+\[|\s+\d{4}|$)`),
	regexp.MustCompile(`(?i)live\s+at\s+([^(]+?)\s*\(`),
	regexp.MustCompile(`(?i)live\s+at\s+(.+?)(?:\s+on\s|\s+\[|\s+\d{4}|$)`),
	regexp.MustCompile(`\s-\s+([^-]+?)\s+\d{1,2}[./-]\d{1,2}[./-]\d{2,4}`),
}

var (
	parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)
	spaces        = regexp.MustCompile(`\s+`)
)

// words that look like a band name to the patterns but never are one
var notBands = map[string]bool{
	"live":        true,
	"show":        true,
	"concert":     true,
	"performance": true,
}

// Parsed holds everything extracted from one title.
type Parsed struct {
	Band  string `json:"band,omitempty"`
	Venue string `json:"venue,omitempty"`
	Date  string `json:"date,omitempty"`
}

// Parse runs every extractor over title.
func Parse(title string) Parsed {
	return Parsed{
		Band:  ParseBand(title),
		Venue: ParseVenue(title),
		Date:  ExtractDate(title),
	}
}

// ParseBand returns the text before the first separator marker, or "".
func ParseBand(title string) string {
	title = strings.TrimSpace(title)
	for _, re := range bandPatterns {
		m := re.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		band := strings.TrimSpace(m[1])
		if len(band) > 2 && !notBands[strings.ToLower(band)] {
			return band
		}
	}
	return ""
}

// ParseVenue returns the text between the separator and the next marker, without parentheticals.
func ParseVenue(title string) string {
	for _, re := range venuePatterns {
		m := re.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		venue := parenthetical.ReplaceAllString(m[1], "")
		venue = strings.Trim(strings.TrimSpace(venue), ",-")
		venue = strings.TrimSpace(venue)
		if len(venue) > 2 {
			return venue
		}
	}
	return ""
}

// Fold lowercases s, strips diacritics and collapses whitespace, for substring comparisons.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	// chains carry buffers, so each call builds its own
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(chain, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	return strings.TrimSpace(spaces.ReplaceAllString(folded, " "))
}

// Contains reports whether needle appears in haystack after folding both. An empty needle never matches.
func Contains(haystack, needle string) bool {
	n := Fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Fold(haystack), n)
}
