package tasks

import (
	"strings"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/titles"
)

// dateAcceptable reports whether an existing date is already canonical. Search listings return
// timestamps such as 2012-01-20T00:00:00Z for canonical dates.
func dateAcceptable(date string) bool {
	if len(date) > 10 && date[10] == 'T' {
		date = date[:10]
	}
	return titles.IsCanonical(date)
}

func normalizedDate(date string) string {
	if len(date) > 10 && date[10] == 'T' {
		return date[:10]
	}
	return date
}

// yearOnly reports whether std, a standardized date, only carries a year.
func yearOnly(std string) bool {
	return strings.HasSuffix(std, "-01-01")
}

// Analyze finds items whose band, venue or date metadata is missing or malformed.
//
// The title is the source of truth: a suggested date comes from the title first, then from the
// identifier. Band suggestions go to the band field, leaving creator to the uploader. When the
// date field is empty the item's publicdate is checked instead. Items with nothing to report
// are left out.
func Analyze(items []models.Item) []models.Suggestion {
	var out []models.Suggestion
	for _, item := range items {
		s := models.Suggestion{Identifier: item.Identifier, Title: item.Title}
		parsed := titles.Parse(item.Title)

		if parsed.Band == "" && parsed.Venue == "" {
			s.Issues = append(s.Issues, models.IssueUnparsedTitle)
		}

		if strings.TrimSpace(item.Band) == "" {
			s.Issues = append(s.Issues, models.IssueMissingBand)
			if parsed.Band != "" {
				s.Updates = append(s.Updates, models.FieldUpdate{Field: "band", Value: parsed.Band})
			}
		}

		if strings.TrimSpace(item.Venue) == "" {
			s.Issues = append(s.Issues, models.IssueMissingVenue)
			if parsed.Venue != "" {
				s.Updates = append(s.Updates, models.FieldUpdate{Field: "venue", Value: parsed.Venue})
			}
		}

		titleDate := titles.ExtractFullDate(item.Title)
		suggested := titleDate
		if suggested == "" {
			suggested = titles.DateFromIdentifier(item.Identifier)
		}

		date := strings.TrimSpace(item.Date)
		current := date
		if current == "" {
			current = strings.TrimSpace(item.PublicDate)
		}
		std, stdOK := titles.StandardizeDate(current)

		switch {
		case current == "":
			s.Issues = append(s.Issues, models.IssueMissingDate)
			if suggested != "" {
				s.Updates = append(s.Updates, models.FieldUpdate{Field: "date", Value: suggested})
			}
		case titleDate != "" && stdOK && yearOnly(std) && !yearOnly(titleDate):
			s.Issues = append(s.Issues, models.IssueBadDateFormat)
			s.Updates = append(s.Updates, models.FieldUpdate{Field: "date", Value: titleDate})
		case date == "":
			s.Issues = append(s.Issues, models.IssueMissingDate)
			switch {
			case suggested != "":
				s.Updates = append(s.Updates, models.FieldUpdate{Field: "date", Value: suggested})
			case stdOK:
				s.Updates = append(s.Updates, models.FieldUpdate{Field: "date", Value: std})
			}
		case !dateAcceptable(date):
			s.Issues = append(s.Issues, models.IssueBadDateFormat)
			if stdOK {
				s.Updates = append(s.Updates, models.FieldUpdate{Field: "date", Value: std})
			} else if suggested != "" {
				s.Updates = append(s.Updates, models.FieldUpdate{Field: "date", Value: suggested})
			}
		case titleDate != "" && normalizedDate(date) != titleDate:
			s.Issues = append(s.Issues, models.IssueDateMismatch)
			s.Updates = append(s.Updates, models.FieldUpdate{Field: "date", Value: titleDate, Operation: models.OpReplace})
		}

		if len(s.Issues) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Requests groups suggestions with identical updates into update requests, in first-seen order.
// Suggestions without updates are dropped.
func Requests(suggestions []models.Suggestion) []models.UpdateRequest {
	var (
		out   []models.UpdateRequest
		index = map[string]int{}
	)
	for _, s := range suggestions {
		if len(s.Updates) == 0 {
			continue
		}
		key := updatesKey(s.Updates)
		if i, ok := index[key]; ok {
			out[i].Items = append(out[i].Items, s.Identifier)
			continue
		}
		index[key] = len(out)
		out = append(out, models.UpdateRequest{
			Items:   []string{s.Identifier},
			Updates: append([]models.FieldUpdate(nil), s.Updates...),
		})
	}
	return out
}

func updatesKey(updates []models.FieldUpdate) string {
	var b strings.Builder
	for _, u := range updates {
		b.WriteString(u.Field)
		b.WriteByte(0)
		b.WriteString(u.Value)
		b.WriteByte(0)
		b.WriteString(string(u.Op()))
		b.WriteByte(0)
	}
	return b.String()
}

// Mismatch is an item whose identifier date disagrees with its title date.
type Mismatch struct {
	Identifier     string `json:"identifier"`
	Title          string `json:"title"`
	IdentifierDate string `json:"identifierDate"`
	TitleDate      string `json:"titleDate"`
	MetadataDate   string `json:"metadataDate,omitempty"`
	Suggested      string `json:"suggested"`
}

// Audit compares the date encoded in each identifier with the date in its title. The title date is
// suggested as the correction.
func Audit(items []models.Item) []Mismatch {
	var out []Mismatch
	for _, item := range items {
		idDate := titles.DateFromIdentifier(item.Identifier)
		titleDate := titles.ExtractFullDate(item.Title)
		if idDate == "" || titleDate == "" || idDate == titleDate {
			continue
		}
		out = append(out, Mismatch{
			Identifier:     item.Identifier,
			Title:          item.Title,
			IdentifierDate: idDate,
			TitleDate:      titleDate,
			MetadataDate:   normalizedDate(item.Date),
			Suggested:      titleDate,
		})
	}
	return out
}
