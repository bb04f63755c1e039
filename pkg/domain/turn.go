package domain

import "time"

// TurnDecision is the verbatim answer of the simulated backend for one
// appended turn: a decision tag, free-text reasoning, the facts/states it
// newly established, and affect/readiness scalars. The simulator performs
// no interpretation of the reasoning text.
type TurnDecision struct {
	Decision  Decision  `json:"decision"`
	Reasoning string    `json:"reasoning,omitempty"`
	NewFacts  []FactID  `json:"new_facts,omitempty"`
	NewStates []StateID `json:"new_states,omitempty"`
	Affect    float64   `json:"affect,omitempty"`
	Readiness float64   `json:"readiness,omitempty"`
}

// Turn is one executed step of the simulated conversation: a node of the
// branching execution tree. Turns are created exactly once and never
// mutated; ParentID, Number and BranchID are fixed at creation.
type Turn struct {
	ID       string `json:"id"`
	BranchID string `json:"branch_id"`

	// ParentID is the exclusive parent turn; empty only for the root of
	// the run's initial branch.
	ParentID string `json:"parent_id,omitempty"`

	// Number is the 1-based position along the parent chain. Strictly
	// increasing on every branch walk.
	Number int `json:"number"`

	MomentID string     `json:"moment_id"`
	Kind     MomentKind `json:"kind"`

	UserMessage  string `json:"user_message,omitempty"`
	AgentMessage string `json:"agent_message,omitempty"`

	Decision TurnDecision `json:"decision"`

	// Satisfied is the incremental contribution of this turn to the
	// ledger: the moment's declared effects plus whatever the decision
	// newly established.
	Satisfied Effects `json:"satisfied,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TurnSeed is the caller-supplied material for a new turn. Linkage
// (branch, parent, number) is assigned by the Run, never by the caller.
type TurnSeed struct {
	ID           string
	MomentID     string
	Kind         MomentKind
	UserMessage  string
	AgentMessage string
	Decision     TurnDecision
	Satisfied    Effects
	CreatedAt    time.Time
}

// Branch is a named path through the execution tree: every turn reachable
// by walking parent links from the run root to the branch tip. Branches
// may share a prefix (up to their fork point) but never a suffix.
type Branch struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`

	// RootTurnID is the first turn owned by this branch (the turn created
	// by the fork, or the run's very first turn for the initial branch).
	RootTurnID string `json:"root_turn_id"`

	// TipTurnID is the designated tip; ordinary continuation only ever
	// appends here.
	TipTurnID string `json:"tip_turn_id"`

	// ForkedFromID is the turn (on another branch) this branch was forked
	// from; empty for the initial branch.
	ForkedFromID string `json:"forked_from_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
