package titles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayout describes how one pattern's groups map to year, month and day.
type dateLayout struct {
	re               *regexp.Regexp
	year, month, day int // submatch indexes; day 0 means the pattern has no day
}

// full dates, month before day, most specific first
var fullDatePatterns = []dateLayout{
	{re: regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), year: 1, month: 2, day: 3},
	{re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`), year: 3, month: 1, day: 2},
	{re: regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`), year: 3, month: 1, day: 2},
	{re: regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2})\b`), year: 3, month: 1, day: 2},
	{re: regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{2})\b`), year: 3, month: 1, day: 2},
	{re: regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{2})\b`), year: 3, month: 1, day: 2},
}

var yearOnly = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

var identifierPatterns = []dateLayout{
	{re: regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2})_`), year: 3, month: 1, day: 2},
	{re: regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[-_.]`), year: 1, month: 2, day: 3},
	{re: regexp.MustCompile(`^[A-Za-z]+(\d{4})-(\d{2})-(\d{2})`), year: 1, month: 2, day: 3},
}

var canonicalDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// expandYear maps a two-digit year onto 1969-2068.
func expandYear(y int) int {
	if y >= 100 {
		return y
	}
	if y >= 69 {
		return 1900 + y
	}
	return 2000 + y
}

func buildDate(year, month, day int) (string, bool) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

func (l dateLayout) convert(m []string) (string, bool) {
	year, _ := strconv.Atoi(m[l.year])
	month, _ := strconv.Atoi(m[l.month])
	day, _ := strconv.Atoi(m[l.day])
	return buildDate(expandYear(year), month, day)
}

func firstDate(s string, layouts []dateLayout) string {
	for _, l := range layouts {
		for _, m := range l.re.FindAllStringSubmatch(s, -1) {
			if d, ok := l.convert(m); ok {
				return d
			}
		}
	}
	return ""
}

// ExtractFullDate returns the first complete calendar date in s as YYYY-MM-DD, or "".
func ExtractFullDate(s string) string {
	return firstDate(s, fullDatePatterns)
}

// ExtractDate is [ExtractFullDate] falling back to a bare year, which becomes YYYY-01-01.
func ExtractDate(s string) string {
	if d := ExtractFullDate(s); d != "" {
		return d
	}
	if m := yearOnly.FindStringSubmatch(s); m != nil {
		return m[1] + "-01-01"
	}
	return ""
}

// StandardizeDate rewrites a date string in any recognised format to YYYY-MM-DD.
//
// Timestamps are truncated to their date. The whole input must be a date; embedded dates are
// left to [ExtractDate].
func StandardizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == 'T' {
		s = s[:10]
	}

	for _, l := range fullDatePatterns {
		m := l.re.FindStringSubmatch(s)
		if m != nil && m[0] == s {
			return l.convert(m)
		}
	}
	if m := yearOnly.FindStringSubmatch(s); m != nil && m[0] == s {
		return s + "-01-01", true
	}
	return "", false
}

// IsCanonical reports whether s is already a valid YYYY-MM-DD date.
func IsCanonical(s string) bool {
	if !canonicalDate.MatchString(s) {
		return false
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// AlternateDate renders a canonical date in the MM.DD.YY form common in recording titles.
func AlternateDate(iso string) string {
	t, err := time.Parse(time.DateOnly, iso)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%02d.%02d.%02d", int(t.Month()), t.Day(), t.Year()%100)
}

// DateFromIdentifier reads the recording date some uploaders encode in the item identifier,
// e.g. "01.20.12_Thou" or "gd1977-05-08.sbd".
func DateFromIdentifier(id string) string {
	return firstDate(id, identifierPatterns)
}
