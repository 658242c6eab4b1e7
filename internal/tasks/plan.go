package tasks

import "github.com/desertthunder/iasync/internal/models"

// Intent labels why a field is being written. It only affects logging.
type Intent string

const (
	IntentCreate    Intent = "create"
	IntentTransform Intent = "transform"
	IntentRemove    Intent = "remove"
)

// Step is one planned field update.
type Step struct {
	Update  models.FieldUpdate `json:"update"`
	Current string             `json:"current,omitempty"`
	Exists  bool               `json:"exists"`
	Skip    bool               `json:"skip"`
	Intent  Intent             `json:"intent,omitempty"`
}

// Plan is the ordered list of steps for one item.
type Plan struct {
	Steps []Step `json:"steps"`
}

// ToApply returns the steps that need a write.
func (p Plan) ToApply() []Step {
	var out []Step
	for _, s := range p.Steps {
		if !s.Skip {
			out = append(out, s)
		}
	}
	return out
}

// ToSkip returns the steps already satisfied by the current metadata.
func (p Plan) ToSkip() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Skip {
			out = append(out, s)
		}
	}
	return out
}

// NewPlan compares each update with current.
//
// A set is skipped when the current value (the first element of a list) equals the target. A
// remove is skipped when the field is already absent.
func NewPlan(current models.Snapshot, updates []models.FieldUpdate) Plan {
	plan := Plan{Steps: make([]Step, 0, len(updates))}
	for _, u := range updates {
		value, exists := current.Value(u.Field)
		step := Step{Update: u, Current: value, Exists: exists}

		switch {
		case u.Op() == models.OpRemove:
			step.Skip = !exists
			step.Intent = IntentRemove
		case exists && value == u.Value:
			step.Skip = true
		case exists:
			step.Intent = IntentTransform
		default:
			step.Intent = IntentCreate
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}
