package tasks

import (
	"fmt"
	"time"
)

// FieldState is a node of the per-field write state machine.
type FieldState int

const (
	StateInitial FieldState = iota
	StateAttemptAdd
	StateAttemptReplace
	StateSkip
	StateUpdated
	StateAbort
	StateFailed
)

func (s FieldState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAttemptAdd:
		return "attempt_add"
	case StateAttemptReplace:
		return "attempt_replace"
	case StateSkip:
		return "skipped"
	case StateUpdated:
		return "updated"
	case StateAbort:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return ""
	}
}

// MarshalText encodes the state by name.
func (s FieldState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the machine stops in s.
func (s FieldState) Terminal() bool {
	return s >= StateSkip
}

// SkipReason separates skips found before writing from skips reported by the archive.
type SkipReason string

const (
	SkipUnchanged SkipReason = "unchanged" // plan found the value already set
	SkipNoop      SkipReason = "noop"      // archive answered "no changes"
)

// FieldResult is the outcome of one field update.
type FieldResult struct {
	Field    string     `json:"field"`
	Value    string     `json:"value"`
	Intent   Intent     `json:"intent,omitempty"`
	State    FieldState `json:"state"`
	Reason   SkipReason `json:"reason,omitempty"`
	Attempts []string   `json:"attempts,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// ItemResult is the outcome of one item.
type ItemResult struct {
	Identifier       string        `json:"identifier"`
	Success          bool          `json:"success"`
	Updated          int           `json:"updated"`
	Skipped          int           `json:"skipped"`
	SkippedUnchanged int           `json:"skippedUnchanged"`
	SkippedNoop      int           `json:"skippedNoop"`
	Failed           int           `json:"failed"`
	Aborted          bool          `json:"aborted,omitempty"`
	Message          string        `json:"message"`
	Fields           []FieldResult `json:"fields"`
}

func (r *ItemResult) record(f FieldResult) {
	r.Fields = append(r.Fields, f)
	switch f.State {
	case StateUpdated:
		r.Updated++
	case StateSkip:
		r.Skipped++
		if f.Reason == SkipNoop {
			r.SkippedNoop++
		} else {
			r.SkippedUnchanged++
		}
	case StateFailed:
		r.Failed++
	case StateAbort:
		r.Aborted = true
	}
}

// finish sets Success and Message once every field has been recorded.
func (r *ItemResult) finish() {
	r.Success = !r.Aborted && r.Failed == 0

	switch {
	case r.Aborted:
		r.Message = fmt.Sprintf("editing restricted, aborted after %d updated, %d skipped", r.Updated, r.Skipped)
	case r.Updated == 0 && r.Failed == 0:
		r.Message = fmt.Sprintf("all %d field(s) skipped, nothing to change", r.Skipped)
	case r.Updated > 0 && r.Skipped > 0:
		r.Message = fmt.Sprintf("%d updated, %d skipped", r.Updated, r.Skipped)
	case r.Updated > 0:
		r.Message = fmt.Sprintf("%d updated", r.Updated)
	default:
		r.Message = fmt.Sprintf("%d updated, %d skipped", r.Updated, r.Skipped)
	}
	if r.Failed > 0 {
		r.Message += fmt.Sprintf(", %d failed", r.Failed)
	}
}

// Summary aggregates a batch.
type Summary struct {
	BatchID           string        `json:"batchId"`
	Total             int           `json:"total"`
	SuccessCount      int           `json:"successCount"`
	FailureCount      int           `json:"failureCount"`
	TotalUpdated      int           `json:"totalUpdated"`
	TotalSkipped      int           `json:"totalSkipped"`
	SkippedUnchanged  int           `json:"skippedUnchanged"`
	SkippedNoop       int           `json:"skippedNoop"`
	FullySkippedItems int           `json:"fullySkippedItems"`
	Results           []*ItemResult `json:"results"`
	StartedAt         time.Time     `json:"startedAt"`
	FinishedAt        time.Time     `json:"finishedAt"`
}

func (s *Summary) add(r *ItemResult) {
	s.Results = append(s.Results, r)
	if r.Success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.TotalUpdated += r.Updated
	s.TotalSkipped += r.Skipped
	s.SkippedUnchanged += r.SkippedUnchanged
	s.SkippedNoop += r.SkippedNoop
	if r.Success && r.Updated == 0 && r.Skipped == len(r.Fields) && r.Skipped > 0 {
		s.FullySkippedItems++
	}
}

// Duration returns how long the batch ran.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
