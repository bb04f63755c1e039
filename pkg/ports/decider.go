package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// DecisionRequest is everything the simulated backend sees for one
// prospective turn.
type DecisionRequest struct {
	RunID  string
	Moment *domain.Moment

	// Lens is the run's active goal lens, nil before goal definition.
	Lens *domain.GoalLens

	// Ledger is the replayed knowledge as of the parent turn.
	Ledger domain.Ledger

	UserMessage string

	// Forking is true when this turn will root a new branch.
	Forking bool
}

// DecisionResponse is the backend's verdict. The simulator stores it
// verbatim on the turn.
type DecisionResponse struct {
	Decision     domain.TurnDecision
	AgentMessage string
}

// DecisionProvider produces the execution decision for a turn. The real
// implementation talks to the coaching backend; simulations use the
// scripted provider in pkg/decider. Retry policy belongs to the
// implementation, never to the core.
type DecisionProvider interface {
	Decide(ctx context.Context, req DecisionRequest) (DecisionResponse, error)
}
