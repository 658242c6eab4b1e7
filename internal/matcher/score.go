package matcher

import (
	"strings"
	"unicode"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/titles"
)

// Score weights.
const (
	BandPoints    = 15
	VenuePoints   = 10
	DatePoints    = 20
	KeywordPoints = 5

	// AcceptScore is the minimum score for a candidate to be selected outright.
	AcceptScore = 15
)

// venue-type words worth a bonus when both the venue and the candidate mention them
var venueKeywords = []string{
	"cafe", "club", "theater", "theatre", "hall", "bar", "lounge", "ballroom", "tavern", "pub",
	"house", "church", "center", "gallery", "warehouse", "room", "garage", "arena",
}

// Target is what a candidate title is scored against.
type Target struct {
	Band      string
	Venue     string
	Date      string // YYYY-MM-DD
	Alternate string // MM.DD.YY
}

// NewTarget parses title and normalizes date. When date is empty or unreadable the title's own date is used.
func NewTarget(title, date string) Target {
	t := Target{
		Band:  titles.ParseBand(title),
		Venue: titles.ParseVenue(title),
	}

	if d, ok := titles.StandardizeDate(date); ok {
		t.Date = d
	} else if d := titles.ExtractFullDate(date); d != "" {
		t.Date = d
	} else {
		t.Date = titles.ExtractFullDate(title)
	}

	if t.Date != "" {
		t.Alternate = titles.AlternateDate(t.Date)
	}
	return t
}

// venueNeedle drops a leading article so "The Fillmore" matches "Fillmore".
func venueNeedle(venue string) string {
	v := titles.Fold(venue)
	return strings.TrimPrefix(v, "the ")
}

func words(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.FieldsFunc(titles.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = true
	}
	return set
}

// Score rates how well a candidate title matches target. The result depends only on its inputs.
func Score(candidate models.Candidate, target Target) int {
	title := titles.Fold(candidate.Title)
	score := 0

	contains := func(needle string) bool {
		return needle != "" && strings.Contains(title, needle)
	}

	if contains(titles.Fold(target.Band)) {
		score += BandPoints
	}
	if contains(venueNeedle(target.Venue)) {
		score += VenuePoints
	}
	if contains(target.Date) {
		score += DatePoints
	}
	if contains(target.Alternate) {
		score += DatePoints
	}

	if target.Venue != "" {
		venueWords, titleWords := words(target.Venue), words(candidate.Title)
		for _, kw := range venueKeywords {
			if venueWords[kw] && titleWords[kw] {
				score += KeywordPoints
			}
		}
	}
	return score
}

// Queries lists search strings from most to least specific, deduplicated, without blanks.
//
// A combination is only emitted when all of its parts are known. Dates use the MM.DD.YY form
// most channel uploads put in their titles.
func Queries(target Target, title string) []string {
	date := target.Alternate
	combos := [][]string{
		{target.Band, target.Venue, date},
		{target.Band, target.Venue},
		{target.Band, date},
		{target.Band},
	}

	seen := map[string]bool{}
	var out []string
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, q)
	}

	for _, parts := range combos {
		complete := true
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				complete = false
				break
			}
		}
		if complete {
			add(strings.Join(parts, " "))
		}
	}
	add(title)
	return out
}
