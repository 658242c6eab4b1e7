package models

import (
	"fmt"
	"strings"
	"time"
)

// Operation is a metadata patch operation.
type Operation string

const (
	OpAdd     Operation = "add"
	OpReplace Operation = "replace"
	OpRemove  Operation = "remove"
)

// FieldUpdate is one requested change to a metadata field.
//
// Operation is advisory: the engine tries add before replace regardless of what the caller asked for.
type FieldUpdate struct {
	Field     string    `json:"field" validate:"required,metafield"`
	Value     string    `json:"value"`
	Operation Operation `json:"operation,omitempty" validate:"omitempty,oneof=add replace remove"`
}

// Op returns the requested operation, add when unset.
func (u FieldUpdate) Op() Operation {
	if u.Operation == "" {
		return OpAdd
	}
	return u.Operation
}

// UpdateRequest is a batch of field updates applied to every listed item, in order.
type UpdateRequest struct {
	Items   []string      `json:"items" validate:"required,min=1,unique,dive,identifier"`
	Updates []FieldUpdate `json:"updates" validate:"required,min=1,dive"`
}

// Validate checks the request shape before any network call is made.
func (r *UpdateRequest) Validate() error {
	return Validate(r)
}

// MatchRequest asks for a video matching an archive title.
type MatchRequest struct {
	Title      string `json:"title" validate:"required,max=500"`
	Date       string `json:"date,omitempty" validate:"max=40"`
	Identifier string `json:"identifier,omitempty" validate:"omitempty,identifier"`
	Force      bool   `json:"force,omitempty"`
}

// Validate checks the lookup parameters.
func (r *MatchRequest) Validate() error {
	return Validate(r)
}

// Snapshot is the metadata map of one archive item.
type Snapshot map[string]any

// Value returns the comparable value of field.
//
// Lists compare by their first element; an empty list counts as absent.
func (s Snapshot) Value(field string) (string, bool) {
	raw, ok := s[field]
	if !ok || raw == nil {
		return "", false
	}

	switch v := raw.(type) {
	case string:
		return v, true
	case []any:
		if len(v) == 0 {
			return "", false
		}
		return fmt.Sprint(v[0]), true
	case []string:
		if len(v) == 0 {
			return "", false
		}
		return v[0], true
	default:
		return fmt.Sprint(v), true
	}
}

// Set stores value under field, replacing any list.
func (s Snapshot) Set(field, value string) {
	s[field] = value
}

// Item is one archive item from an uploader listing.
type Item struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Date       string `json:"date,omitempty"`
	Creator    string `json:"creator,omitempty"`
	Band       string `json:"band,omitempty"`
	PublicDate string `json:"publicdate,omitempty"`
	Venue      string `json:"venue,omitempty"`
	Mediatype  string `json:"mediatype,omitempty"`
}

// Candidate is one video returned by a catalog search.
type Candidate struct {
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	ChannelID   string `json:"channelId,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
}

// URL returns the watch URL for the candidate.
func (c Candidate) URL() string {
	return "https://www.youtube.com/watch?v=" + c.VideoID
}

// MatchResult is an accepted candidate plus the fields parsed from its title.
type MatchResult struct {
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Band        string `json:"band,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Date        string `json:"date,omitempty"`
	Score       int    `json:"score"`
	Query       string `json:"query"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// CachedMatch is the cache payload for a lookup. A nil Match is a confirmed miss.
type CachedMatch struct {
	Match     *MatchResult `json:"match"`
	LookedUp  time.Time    `json:"lookedUp"`
	QueryUsed []string     `json:"queries,omitempty"`
}

// QuotaStatus reports the daily search budget.
type QuotaStatus struct {
	Day        string    `json:"day"`
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	Exhausted  bool      `json:"exhausted"`
	Percentage float64   `json:"percentage"`
	NextReset  time.Time `json:"nextReset"`
}

// IssueKind classifies a metadata problem found by analysis.
type IssueKind string

const (
	IssueMissingBand   IssueKind = "missing_band"
	IssueMissingVenue  IssueKind = "missing_venue"
	IssueMissingDate   IssueKind = "missing_date"
	IssueBadDateFormat IssueKind = "bad_date_format"
	IssueDateMismatch  IssueKind = "date_mismatch"
	IssueUnparsedTitle IssueKind = "unparsed_title"
)

// Suggestion is a proposed set of updates for one item.
type Suggestion struct {
	Identifier string        `json:"identifier"`
	Title      string        `json:"title"`
	Issues     []IssueKind   `json:"issues"`
	Updates    []FieldUpdate `json:"updates"`
}

// HasIssue reports whether kind was found.
func (s Suggestion) HasIssue(kind IssueKind) bool {
	for _, k := range s.Issues {
		if k == kind {
			return true
		}
	}
	return false
}

// String renders a one-line description.
func (s Suggestion) String() string {
	kinds := make([]string, len(s.Issues))
	for i, k := range s.Issues {
		kinds[i] = string(k)
	}
	return fmt.Sprintf("%s [%s] %d update(s)", s.Identifier, strings.Join(kinds, ","), len(s.Updates))
}
