package domain

import (
	"context"
	"time"
)

// EventType categorizes lifecycle events emitted by the playback driver.
type EventType string

const (
	EventTurnAppended EventType = "turn_appended"
	EventBranchForked EventType = "branch_forked"
	EventDecision     EventType = "decision"
)

// EventBase carries the fields common to all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// TurnEvent is emitted after a turn is linked into the tree.
type TurnEvent struct {
	EventBase
	BranchID string     `json:"branch_id"`
	TurnID   string     `json:"turn_id"`
	MomentID string     `json:"moment_id"`
	Kind     MomentKind `json:"kind"`
	Decision Decision   `json:"decision"`
	Forked   bool       `json:"forked,omitempty"`
}

// ForkEvent is emitted when a new branch is created.
type ForkEvent struct {
	EventBase
	BranchID     string `json:"branch_id"`
	Label        string `json:"label,omitempty"`
	ForkedFromID string `json:"forked_from_id"`
}

// DecisionEvent is emitted when the decision provider answers, before the
// turn is linked. Duration covers the provider round-trip.
type DecisionEvent struct {
	EventBase
	MomentID string        `json:"moment_id"`
	Decision Decision      `json:"decision"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines observability callbacks. All hooks are optional
// and must not mutate the run.
type LifecycleHooks struct {
	OnTurnAppended func(context.Context, *TurnEvent)
	OnBranchForked func(context.Context, *ForkEvent)
	OnDecision     func(context.Context, *DecisionEvent)
}
