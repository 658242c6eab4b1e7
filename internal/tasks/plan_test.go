package tasks

import (
	"testing"

	"github.com/desertthunder/iasync/internal/models"
)

func TestNewPlan(t *testing.T) {
	current := models.Snapshot{
		"title":   "Same Title",
		"creator": "Thou",
		"subject": []any{"live", "sludge"},
		"venue":   "",
	}

	tt := []struct {
		name   string
		update models.FieldUpdate
		skip   bool
		intent Intent
	}{
		{"equal value skips", models.FieldUpdate{Field: "title", Value: "Same Title", Operation: models.OpReplace}, true, ""},
		{"different value transforms", models.FieldUpdate{Field: "creator", Value: "Thou & Friends"}, false, IntentTransform},
		{"absent field creates", models.FieldUpdate{Field: "date", Value: "2012-01-20"}, false, IntentCreate},
		{"list compares first element", models.FieldUpdate{Field: "subject", Value: "live"}, true, ""},
		{"list differing first element", models.FieldUpdate{Field: "subject", Value: "sludge"}, false, IntentTransform},
		{"empty string equals empty target", models.FieldUpdate{Field: "venue", Value: ""}, true, ""},
		{"remove present field", models.FieldUpdate{Field: "creator", Operation: models.OpRemove}, false, IntentRemove},
		{"remove absent field skips", models.FieldUpdate{Field: "coverage", Operation: models.OpRemove}, true, IntentRemove},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			plan := NewPlan(current, []models.FieldUpdate{tc.update})
			if len(plan.Steps) != 1 {
				t.Fatalf("expected 1 step, got %d", len(plan.Steps))
			}
			step := plan.Steps[0]
			if step.Skip != tc.skip {
				t.Errorf("expected skip=%v, got %v", tc.skip, step.Skip)
			}
			if step.Intent != tc.intent {
				t.Errorf("expected intent %q, got %q", tc.intent, step.Intent)
			}
		})
	}

	t.Run("keeps order and splits", func(t *testing.T) {
		plan := NewPlan(current, []models.FieldUpdate{
			{Field: "date", Value: "2012-01-20"},
			{Field: "title", Value: "Same Title"},
			{Field: "creator", Value: "Other"},
		})
		if got := plan.ToApply(); len(got) != 2 || got[0].Update.Field != "date" || got[1].Update.Field != "creator" {
			t.Errorf("unexpected apply steps %+v", got)
		}
		if got := plan.ToSkip(); len(got) != 1 || got[0].Update.Field != "title" {
			t.Errorf("unexpected skip steps %+v", got)
		}
	})

	t.Run("nil snapshot presumes absent", func(t *testing.T) {
		plan := NewPlan(nil, []models.FieldUpdate{{Field: "title", Value: "x"}})
		if plan.Steps[0].Skip || plan.Steps[0].Intent != IntentCreate {
			t.Errorf("expected create step, got %+v", plan.Steps[0])
		}
	})
}
