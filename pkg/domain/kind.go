package domain

// FactID identifies a canonical fact/metric (e.g. "baseline.weekly_sessions").
type FactID string

// StateID identifies a named conversation state (e.g. "handoff_accepted").
type StateID string

// GateID identifies a named boolean milestone of the conversation.
type GateID string

// Well-known gates. Gate satisfaction rules live in the authored flow
// document; these constants only fix the identifiers the lane resolver
// keys on.
const (
	GateContact GateID = "CONTACT"
	GateBooking GateID = "BOOKING"
	GateHandoff GateID = "HANDOFF"
)

// MomentKind is the closed set of authored node variants.
// Adding a kind means touching the resolver's exhaustive switch, which is
// intentional: an unrecognized kind is a configuration defect, not data.
type MomentKind string

const (
	KindExplanation        MomentKind = "explanation"
	KindReflectiveQuestion MomentKind = "reflective_question"
	KindGoalDefinition     MomentKind = "goal_definition"
	KindBaselineCapture    MomentKind = "baseline_capture"
	KindDeadlineCapture    MomentKind = "deadline_capture"
	KindActionBooking      MomentKind = "action_booking"
	KindHandoff            MomentKind = "handoff"
)

// Known reports whether k is part of the closed kind set.
func (k MomentKind) Known() bool {
	switch k {
	case KindExplanation, KindReflectiveQuestion, KindGoalDefinition,
		KindBaselineCapture, KindDeadlineCapture, KindActionBooking, KindHandoff:
		return true
	}
	return false
}

// Lane is the eligibility phase a moment belongs to. It is derived purely
// from the moment's declarations, never from runtime state.
type Lane string

const (
	LaneContactGate   Lane = "contact_gate"
	LaneAfterBooking  Lane = "after_booking"
	LaneAfterContact  Lane = "after_contact"
	LaneBeforeContact Lane = "before_contact"
)

// Decision is the execution decision tag emitted by the simulated backend
// for a turn. The simulator stores it verbatim and never interprets it.
type Decision string

const (
	DecisionAdvance   Decision = "ADVANCE"
	DecisionStall     Decision = "STALL"
	DecisionExplain   Decision = "EXPLAIN"
	DecisionFastTrack Decision = "FAST_TRACK"
	DecisionHandoff   Decision = "HANDOFF"
)

// DeadlinePrecision is a goal lens's policy for user-supplied deadlines.
type DeadlinePrecision string

const (
	PrecisionExactDate  DeadlinePrecision = "EXACT_DATE"
	PrecisionRangeOK    DeadlinePrecision = "RANGE_OK"
	PrecisionDurationOK DeadlinePrecision = "DURATION_OK"
)

// Narrowing is the strategy for pushing back on an imprecise deadline:
// reject it in the same turn, or accept it and schedule a follow-up.
type Narrowing string

const (
	NarrowImmediate Narrowing = "IMMEDIATE"
	NarrowFollowUp  Narrowing = "FOLLOW_UP"
)
