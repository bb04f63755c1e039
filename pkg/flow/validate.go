package flow

import (
	"fmt"

	"github.com/aretw0/espalier/pkg/domain"
)

// Validate checks the structural integrity of an authored document. It
// returns every hard defect found (as an AggregateError) plus
// warning-grade findings that do not block simulation.
//
// BOOKING-without-CONTACT is deliberately a warning, not an error: lane
// resolution already privileges the stronger requirement, and existing
// flows rely on the implicit entailment.
func Validate(doc *Document) ([]Warning, error) {
	var errs []error
	var warnings []Warning

	if len(doc.EntryNodeIDs) == 0 {
		errs = append(errs, &ValidationError{Reason: "no entryNodeIds declared"})
	}

	seen := make(map[string]bool, len(doc.Nodes))
	for i := range doc.Nodes {
		m := &doc.Nodes[i]

		if m.ID == "" {
			errs = append(errs, &ValidationError{Reason: fmt.Sprintf("node %d has no id", i)})
			continue
		}
		if seen[m.ID] {
			errs = append(errs, &ValidationError{MomentID: m.ID, Reason: "duplicate id"})
			continue
		}
		seen[m.ID] = true

		if !m.Kind.Known() {
			errs = append(errs, &ValidationError{MomentID: m.ID,
				Reason: fmt.Sprintf("unknown kind %q", m.Kind)})
		}

		if m.Kind == domain.KindGoalDefinition {
			if m.LensID == "" {
				errs = append(errs, &ValidationError{MomentID: m.ID,
					Reason: "goal_definition requires lens_id"})
			} else if doc.Lens(m.LensID) == nil {
				errs = append(errs, &ValidationError{MomentID: m.ID,
					Reason: fmt.Sprintf("unknown lens %q", m.LensID)})
			}
		}

		for _, g := range m.Requires.Gates {
			if !gateKnown(doc, g) {
				errs = append(errs, &ValidationError{MomentID: m.ID,
					Reason: fmt.Sprintf("requires undefined gate %q", g)})
			}
		}
		for _, g := range m.Satisfies.Gates {
			if !gateKnown(doc, g) {
				errs = append(errs, &ValidationError{MomentID: m.ID,
					Reason: fmt.Sprintf("satisfies undefined gate %q", g)})
			}
		}

		if requiresGate(m, domain.GateBooking) && !requiresGate(m, domain.GateContact) {
			warnings = append(warnings, Warning{MomentID: m.ID,
				Reason: "requires BOOKING without CONTACT (entailment is implicit)"})
		}
	}

	for _, entry := range doc.EntryNodeIDs {
		if !seen[entry] {
			errs = append(errs, &ValidationError{
				Reason: fmt.Sprintf("entry node %q not defined", entry)})
		}
	}

	for gate, rule := range doc.GateDefinitions {
		if rule.Empty() {
			errs = append(errs, &ValidationError{
				Reason: fmt.Sprintf("gate %q has an empty satisfaction rule", gate)})
		}
	}

	if len(errs) > 0 {
		return warnings, &AggregateError{Errors: errs}
	}
	return warnings, nil
}

// gateKnown accepts gates with an authored rule and the well-known lane
// gates, which may be satisfied directly by a moment's effects.
func gateKnown(doc *Document, g domain.GateID) bool {
	if _, ok := doc.GateDefinitions[g]; ok {
		return true
	}
	switch g {
	case domain.GateContact, domain.GateBooking, domain.GateHandoff:
		return true
	}
	return false
}

func requiresGate(m *domain.Moment, g domain.GateID) bool {
	for _, have := range m.Requires.Gates {
		if have == g {
			return true
		}
	}
	return false
}
