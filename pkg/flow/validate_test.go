package flow

import (
	"strings"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
)

func sampleDoc() *Document {
	return &Document{
		ID:           "coaching-intake",
		EntryNodeIDs: []string{"welcome"},
		PrimaryGoal:  "BOOKING",
		Nodes: []domain.Moment{
			{ID: "welcome", Kind: domain.KindExplanation},
			{ID: "pick-goal", Kind: domain.KindGoalDefinition, LensID: "weight-loss"},
			{
				ID:   "capture-baseline",
				Kind: domain.KindBaselineCapture,
				Requires: domain.Requirements{
					Facts: []domain.FactID{"goal.kind"},
				},
			},
			{
				ID:        "make-contact",
				Kind:      domain.KindReflectiveQuestion,
				Satisfies: domain.Effects{Gates: []domain.GateID{domain.GateContact}},
			},
			{
				ID:       "book-session",
				Kind:     domain.KindActionBooking,
				Requires: domain.Requirements{Gates: []domain.GateID{domain.GateContact}},
				Satisfies: domain.Effects{
					Gates: []domain.GateID{domain.GateBooking},
					Facts: []domain.FactID{"booking.slot"},
				},
			},
		},
		GateDefinitions: map[domain.GateID]domain.GateRule{
			domain.GateContact: {StatesAll: []domain.StateID{"contact_made"}},
		},
		FactAliases: map[string]domain.FactID{
			"weight": "baseline.weight_kg",
		},
		Lenses: []domain.GoalLens{
			{
				ID:                "weight-loss",
				BaselineMetrics:   []domain.FactID{"weight", "baseline.activity?"},
				TargetMetrics:     []domain.FactID{"target.weight_kg"},
				DeadlinePrecision: domain.PrecisionExactDate,
				Narrowing:         domain.NarrowImmediate,
			},
		},
	}
}

func TestValidateCleanDocument(t *testing.T) {
	warnings, err := Validate(sampleDoc())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestValidateAggregatesDefects(t *testing.T) {
	doc := sampleDoc()
	doc.EntryNodeIDs = []string{"ghost"}
	doc.Nodes = append(doc.Nodes, domain.Moment{ID: "welcome", Kind: domain.KindExplanation}) // duplicate
	doc.Nodes = append(doc.Nodes, domain.Moment{ID: "odd", Kind: "telepathy"})

	_, err := Validate(doc)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	errs := ValidationErrors(err)
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), err)
	}
}

func TestValidateGoalDefinitionNeedsLens(t *testing.T) {
	doc := sampleDoc()
	doc.Nodes[1].LensID = "missing-lens"

	_, err := Validate(doc)
	if err == nil || !strings.Contains(err.Error(), "unknown lens") {
		t.Fatalf("got %v, want unknown lens error", err)
	}
}

func TestValidateBookingEntailmentWarning(t *testing.T) {
	doc := sampleDoc()
	doc.Nodes = append(doc.Nodes, domain.Moment{
		ID:       "premature-handoff",
		Kind:     domain.KindHandoff,
		Requires: domain.Requirements{Gates: []domain.GateID{domain.GateBooking}},
	})

	warnings, err := Validate(doc)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 1 || warnings[0].MomentID != "premature-handoff" {
		t.Fatalf("warnings = %v, want one for premature-handoff", warnings)
	}
}

func TestCanonicalizeResolvesAliases(t *testing.T) {
	doc := sampleDoc()
	doc.Canonicalize()

	lens := doc.Lens("weight-loss")
	if lens.BaselineMetrics[0] != "baseline.weight_kg" {
		t.Fatalf("alias not resolved: %v", lens.BaselineMetrics)
	}
	// Optionality suffix survives resolution.
	if lens.BaselineMetrics[1] != "baseline.activity?" {
		t.Fatalf("optional metric mangled: %v", lens.BaselineMetrics)
	}
}
