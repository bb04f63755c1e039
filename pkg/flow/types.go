package flow

import (
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// Document is the authored flow graph.
type Document struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// EntryNodeIDs are the moments a run may start from.
	EntryNodeIDs []string `json:"entryNodeIds" yaml:"entryNodeIds"`

	// PrimaryGoal names the gate (or state) whose satisfaction counts as
	// overall completion of the conversation.
	PrimaryGoal string `json:"primaryGoal,omitempty" yaml:"primaryGoal,omitempty"`

	Nodes []domain.Moment `json:"nodes" yaml:"nodes"`

	// GateDefinitions maps a gate to its satisfaction rule. Gates and
	// their rules are static: never mutated at runtime.
	GateDefinitions map[domain.GateID]domain.GateRule `json:"gateDefinitions,omitempty" yaml:"gateDefinitions,omitempty"`

	// FactAliases maps authoring shorthand to canonical fact IDs.
	FactAliases map[string]domain.FactID `json:"factAliases,omitempty" yaml:"factAliases,omitempty"`

	Lenses []domain.GoalLens `json:"lenses,omitempty" yaml:"lenses,omitempty"`
}

// Moment returns the authored moment by ID, or nil.
func (d *Document) Moment(id string) *domain.Moment {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Lens returns the goal lens by ID, or nil.
func (d *Document) Lens(id string) *domain.GoalLens {
	for i := range d.Lenses {
		if d.Lenses[i].ID == id {
			return &d.Lenses[i]
		}
	}
	return nil
}

// CanonicalFact resolves an authored fact name through the alias table.
// A '?' optionality suffix survives resolution.
func (d *Document) CanonicalFact(name domain.FactID) domain.FactID {
	raw := string(name)
	optional := strings.HasSuffix(raw, "?")
	key := strings.TrimSuffix(raw, "?")
	if canonical, ok := d.FactAliases[key]; ok {
		if optional {
			return canonical + "?"
		}
		return canonical
	}
	return name
}

// Canonicalize rewrites every aliased fact reference in moments, gate
// rules and lenses to its canonical ID. Safe to call repeatedly.
func (d *Document) Canonicalize() {
	if len(d.FactAliases) == 0 {
		return
	}
	resolve := func(facts []domain.FactID) {
		for i, f := range facts {
			facts[i] = d.CanonicalFact(f)
		}
	}
	for i := range d.Nodes {
		resolve(d.Nodes[i].Requires.Facts)
		resolve(d.Nodes[i].Satisfies.Facts)
	}
	for gate, rule := range d.GateDefinitions {
		resolve(rule.MetricsAll)
		resolve(rule.MetricsAny)
		d.GateDefinitions[gate] = rule
	}
	for i := range d.Lenses {
		resolve(d.Lenses[i].BaselineMetrics)
		resolve(d.Lenses[i].TargetMetrics)
	}
}
