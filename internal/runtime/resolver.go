package runtime

import (
	"sort"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
)

// Resolver answers eligibility questions over a static flow document.
// All methods are pure: state comes in as a ledger and goes out as a new
// ledger, so replays are deterministic per branch.
type Resolver struct {
	doc *flow.Document
}

// NewResolver creates a resolver for the given document.
func NewResolver(doc *flow.Document) *Resolver {
	return &Resolver{doc: doc}
}

// LaneOf returns the eligibility lane of a moment. Resolution order
// (first match wins): satisfies CONTACT → contact gate lane; requires
// BOOKING → after-booking; requires CONTACT → after-contact; otherwise
// before-contact. The order privileges the strongest downstream
// requirement — booking lanes are a strict subset of after-contact lanes
// in practice.
func (r *Resolver) LaneOf(m *domain.Moment) (domain.Lane, error) {
	if !m.Kind.Known() {
		return "", &domain.UnresolvableLaneError{MomentID: m.ID, Kind: m.Kind}
	}
	switch {
	case satisfiesGate(m, domain.GateContact):
		return domain.LaneContactGate, nil
	case requiresGate(m, domain.GateBooking):
		return domain.LaneAfterBooking, nil
	case requiresGate(m, domain.GateContact):
		return domain.LaneAfterContact, nil
	default:
		return domain.LaneBeforeContact, nil
	}
}

// IsEligible reports whether every required gate and fact is present in
// the ledger. Requirements are conjunctive; empty requirements are
// vacuously eligible. Absence never raises — it is simply false.
func (r *Resolver) IsEligible(m *domain.Moment, ledger domain.Ledger) bool {
	gates, facts := r.Missing(m, ledger)
	return len(gates) == 0 && len(facts) == 0
}

// Missing returns the required gates and facts the ledger does not yet
// hold, in declaration order. Both empty means eligible.
func (r *Resolver) Missing(m *domain.Moment, ledger domain.Ledger) ([]domain.GateID, []domain.FactID) {
	var gates []domain.GateID
	for _, g := range m.Requires.Gates {
		if !ledger.HasGate(g) {
			gates = append(gates, g)
		}
	}
	var facts []domain.FactID
	for _, f := range m.Requires.Facts {
		if !ledger.HasFact(f) {
			facts = append(facts, f)
		}
	}
	return gates, facts
}

// ApplyTurn returns a new ledger with the turn's contribution unioned in,
// then promotes every gate whose authored rule now holds. Gate rules
// reference only facts and states, never other gates, so one promotion
// pass suffices.
func (r *Resolver) ApplyTurn(ledger domain.Ledger, turn *domain.Turn) domain.Ledger {
	next := ledger.Grant(turn.Satisfied)
	next = next.Grant(domain.Effects{
		Facts:  turn.Decision.NewFacts,
		States: turn.Decision.NewStates,
	})

	for gate, rule := range r.doc.GateDefinitions {
		if !next.HasGate(gate) && ruleSatisfied(rule, next) {
			next.Gates[gate] = true
		}
	}
	return next
}

// Replay folds ApplyTurn over an ordered turn sequence starting from an
// empty ledger.
func (r *Resolver) Replay(turns []*domain.Turn) domain.Ledger {
	ledger := domain.NewLedger()
	for _, t := range turns {
		ledger = r.ApplyTurn(ledger, t)
	}
	return ledger
}

// MomentStatus is one moment's standing at a point in the conversation.
type MomentStatus struct {
	Moment       *domain.Moment
	Lane         domain.Lane
	Eligible     bool
	MissingGates []domain.GateID
	MissingFacts []domain.FactID
}

// Statuses resolves every authored moment against the ledger, ordered by
// lane (before-contact first) and then by ID. An unresolvable kind
// aborts the whole resolution: that is a configuration defect, not a
// runtime condition.
func (r *Resolver) Statuses(ledger domain.Ledger) ([]MomentStatus, error) {
	statuses := make([]MomentStatus, 0, len(r.doc.Nodes))
	for i := range r.doc.Nodes {
		m := &r.doc.Nodes[i]
		lane, err := r.LaneOf(m)
		if err != nil {
			return nil, err
		}
		gates, facts := r.Missing(m, ledger)
		statuses = append(statuses, MomentStatus{
			Moment:       m,
			Lane:         lane,
			Eligible:     len(gates) == 0 && len(facts) == 0,
			MissingGates: gates,
			MissingFacts: facts,
		})
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		li, lj := laneRank(statuses[i].Lane), laneRank(statuses[j].Lane)
		if li != lj {
			return li < lj
		}
		return statuses[i].Moment.ID < statuses[j].Moment.ID
	})
	return statuses, nil
}

func laneRank(l domain.Lane) int {
	switch l {
	case domain.LaneBeforeContact:
		return 0
	case domain.LaneContactGate:
		return 1
	case domain.LaneAfterContact:
		return 2
	case domain.LaneAfterBooking:
		return 3
	}
	return 4
}

// ruleSatisfied evaluates a gate rule against the ledger. Optional
// ('?'-suffixed) metrics in metricsAll are skipped: optional facts never
// block a gate.
func ruleSatisfied(rule domain.GateRule, ledger domain.Ledger) bool {
	if rule.Empty() {
		return false
	}
	for _, f := range rule.MetricsAll {
		id, optional := splitOptional(f)
		if optional {
			continue
		}
		if !ledger.HasFact(id) {
			return false
		}
	}
	if len(rule.MetricsAny) > 0 {
		any := false
		for _, f := range rule.MetricsAny {
			id, _ := splitOptional(f)
			if ledger.HasFact(id) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	for _, s := range rule.StatesAll {
		if !ledger.HasState(s) {
			return false
		}
	}
	return true
}

func splitOptional(f domain.FactID) (domain.FactID, bool) {
	raw := string(f)
	if strings.HasSuffix(raw, "?") {
		return domain.FactID(strings.TrimSuffix(raw, "?")), true
	}
	return f, false
}

func satisfiesGate(m *domain.Moment, g domain.GateID) bool {
	for _, have := range m.Satisfies.Gates {
		if have == g {
			return true
		}
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
