package tasks

import (
	"fmt"
	"time"
)

// EventType identifies a progress event.
type EventType int

const (
	EventStart EventType = iota
	EventProcessing
	EventSuccess
	EventError
	EventComplete
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventProcessing:
		return "processing"
	case EventSuccess:
		return "success"
	case EventError:
		return "error"
	case EventComplete:
		return "complete"
	default:
		return ""
	}
}

// MarshalText encodes the type by name.
func (t EventType) MarshalText() ([]byte, error) {
	s := t.String()
	if s == "" {
		return nil, fmt.Errorf("unknown event type %d", int(t))
	}
	return []byte(s), nil
}

// Event is one progress report from a batch.
//
// Counters are running totals at the time the event was sent.
type Event struct {
	Type         EventType   `json:"type"`
	BatchID      string      `json:"batchId,omitempty"`
	Identifier   string      `json:"identifier,omitempty"`
	Index        int         `json:"index"`
	Total        int         `json:"total"`
	Processed    int         `json:"processed"`
	SuccessCount int         `json:"successCount"`
	FailureCount int         `json:"failureCount"`
	Result       *ItemResult `json:"result,omitempty"`
	Summary      *Summary    `json:"summary,omitempty"`
	Message      string      `json:"message,omitempty"`
	Fatal        bool        `json:"fatal,omitempty"`
	Time         time.Time   `json:"time"`
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Fatal
}

func startEvent(s *Summary) Event {
	return Event{
		Type:    EventStart,
		BatchID: s.BatchID,
		Total:   s.Total,
		Message: fmt.Sprintf("Starting batch of %d item(s)", s.Total),
	}
}

func processingEvent(s *Summary, index int, id string) Event {
	return Event{
		Type:         EventProcessing,
		BatchID:      s.BatchID,
		Identifier:   id,
		Index:        index,
		Total:        s.Total,
		Processed:    index,
		SuccessCount: s.SuccessCount,
		FailureCount: s.FailureCount,
		Message:      fmt.Sprintf("[%d/%d] %s", index+1, s.Total, id),
	}
}

func itemEvent(s *Summary, index int, res *ItemResult) Event {
	typ := EventSuccess
	if !res.Success {
		typ = EventError
	}
	return Event{
		Type:         typ,
		BatchID:      s.BatchID,
		Identifier:   res.Identifier,
		Index:        index,
		Total:        s.Total,
		Processed:    index + 1,
		SuccessCount: s.SuccessCount,
		FailureCount: s.FailureCount,
		Result:       res,
		Message:      res.Message,
	}
}

func completeEvent(s *Summary) Event {
	return Event{
		Type:         EventComplete,
		BatchID:      s.BatchID,
		Total:        s.Total,
		Processed:    len(s.Results),
		SuccessCount: s.SuccessCount,
		FailureCount: s.FailureCount,
		Summary:      s,
		Message: fmt.Sprintf("Completed: %d succeeded, %d failed, %d updated, %d skipped",
			s.SuccessCount, s.FailureCount, s.TotalUpdated, s.TotalSkipped),
	}
}

func fatalEvent(batchID string, err error) Event {
	return Event{
		Type:    EventError,
		BatchID: batchID,
		Fatal:   true,
		Message: err.Error(),
	}
}
