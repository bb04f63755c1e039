package domain

import "sort"

// Ledger is the accumulated knowledge of a branch position: which gates,
// facts and states are known as of a given turn. It is pure data — no
// satisfaction rules live here — and it is always recomputed by replaying
// turns from the branch root, never memoized on the turn itself, so two
// branches sharing a prefix always agree on history.
type Ledger struct {
	Gates  map[GateID]bool  `json:"gates,omitempty"`
	Facts  map[FactID]bool  `json:"facts,omitempty"`
	States map[StateID]bool `json:"states,omitempty"`
}

// NewLedger returns an empty ledger.
func NewLedger() Ledger {
	return Ledger{
		Gates:  make(map[GateID]bool),
		Facts:  make(map[FactID]bool),
		States: make(map[StateID]bool),
	}
}

// HasGate reports whether the gate is known.
func (l Ledger) HasGate(g GateID) bool { return l.Gates[g] }

// HasFact reports whether the fact is known.
func (l Ledger) HasFact(f FactID) bool { return l.Facts[f] }

// HasState reports whether the state is known.
func (l Ledger) HasState(s StateID) bool { return l.States[s] }

// Grant returns a new ledger with the effects unioned in. The receiver is
// left untouched; accumulation is the only operation a ledger supports.
func (l Ledger) Grant(e Effects) Ledger {
	next := l.Clone()
	for _, g := range e.Gates {
		next.Gates[g] = true
	}
	for _, f := range e.Facts {
		next.Facts[f] = true
	}
	for _, s := range e.States {
		next.States[s] = true
	}
	return next
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	next := NewLedger()
	for g := range l.Gates {
		next.Gates[g] = true
	}
	for f := range l.Facts {
		next.Facts[f] = true
	}
	for s := range l.States {
		next.States[s] = true
	}
	return next
}

// GateList returns the known gates in stable order (for rendering/tests).
func (l Ledger) GateList() []GateID {
	out := make([]GateID, 0, len(l.Gates))
	for g := range l.Gates {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FactList returns the known facts in stable order.
func (l Ledger) FactList() []FactID {
	out := make([]FactID, 0, len(l.Facts))
	for f := range l.Facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StateList returns the known states in stable order.
func (l Ledger) StateList() []StateID {
	out := make([]StateID, 0, len(l.States))
	for s := range l.States {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
