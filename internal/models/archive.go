package models

import "strings"

// PatchOp is one JSON-patch style metadata operation.
type PatchOp struct {
	Op    Operation `json:"op"`
	Path  string    `json:"path"`
	Value any       `json:"value,omitempty"`
}

// NewPatchOp builds an operation on a top-level metadata field.
func NewPatchOp(op Operation, field, value string) PatchOp {
	p := PatchOp{Op: op, Path: "/" + field}
	if op != OpRemove {
		p.Value = value
	}
	return p
}

// WriteResult is the body returned by a metadata write.
type WriteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	TaskID  int64  `json:"task_id,omitempty"`
	Log     string `json:"log,omitempty"`
}

// Signal is the engine-relevant meaning of a [WriteResult].
type Signal int

const (
	SignalOK Signal = iota
	SignalNoChanges
	SignalAlreadySet
	SignalRestricted
	SignalFailed
)

func (s Signal) String() string {
	switch s {
	case SignalOK:
		return "ok"
	case SignalNoChanges:
		return "no_changes"
	case SignalAlreadySet:
		return "already_set"
	case SignalRestricted:
		return "restricted"
	case SignalFailed:
		return "failed"
	default:
		return ""
	}
}

// Signal classifies the result. A "no changes" message wins over the success flag because the
// archive reports it both ways.
func (r WriteResult) Signal() Signal {
	msg := strings.ToLower(r.Error + " " + r.Log)
	switch {
	case strings.Contains(msg, "no changes"):
		return SignalNoChanges
	case r.Success:
		return SignalOK
	case strings.Contains(msg, "already set"), strings.Contains(msg, "already exists"):
		return SignalAlreadySet
	case strings.Contains(msg, "restricted"), strings.Contains(msg, "not permitted to edit"):
		return SignalRestricted
	default:
		return SignalFailed
	}
}
