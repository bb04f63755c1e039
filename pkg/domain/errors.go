package domain

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned by run stores when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// ErrRunAlreadyStarted is returned by Run.Start when the run has turns.
var ErrRunAlreadyStarted = errors.New("run already started")

// ErrMissingTurnID is returned when a turn seed carries no ID.
var ErrMissingTurnID = errors.New("turn seed requires an id")

// NotALeafError reports an ordinary continuation attempted on a turn that
// already has children. The caller must fork instead; this is a
// programming error on the caller's side, never retried.
type NotALeafError struct {
	TurnID string
}

func (e *NotALeafError) Error() string {
	return fmt.Sprintf("turn %q is not a branch tip: fork a new branch to continue from it", e.TurnID)
}

// UnknownTurnError reports a turn ID absent from the run.
type UnknownTurnError struct {
	TurnID string
}

func (e *UnknownTurnError) Error() string {
	return fmt.Sprintf("unknown turn %q", e.TurnID)
}

// UnknownBranchError reports a branch ID absent from the run. A known
// branch without turns is not an error; see Run.TurnsForBranch.
type UnknownBranchError struct {
	BranchID string
}

func (e *UnknownBranchError) Error() string {
	return fmt.Sprintf("unknown branch %q", e.BranchID)
}

// DuplicateIDError reports an identity collision when minting a turn or
// branch.
type DuplicateIDError struct {
	Kind string // "turn" or "branch"
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate %s id %q", e.Kind, e.ID)
}

// UnresolvableLaneError reports a moment whose kind the resolver does not
// recognize. This is a configuration defect in the authored flow,
// surfaced to the caller rather than swallowed.
type UnresolvableLaneError struct {
	MomentID string
	Kind     MomentKind
}

func (e *UnresolvableLaneError) Error() string {
	return fmt.Sprintf("moment %q has unresolvable kind %q", e.MomentID, e.Kind)
}

// IneligibleMomentError reports an attempted execution of a moment whose
// requirements are unmet. This is an expected, recoverable condition: the
// missing sets tell the caller what to prompt for next.
type IneligibleMomentError struct {
	MomentID     string
	MissingGates []GateID
	MissingFacts []FactID
}

func (e *IneligibleMomentError) Error() string {
	return fmt.Sprintf("moment %q is not eligible: missing gates %v, facts %v",
		e.MomentID, e.MissingGates, e.MissingFacts)
}

// IsIneligible reports whether err is an eligibility failure (as opposed
// to a structural violation).
func IsIneligible(err error) bool {
	var ie *IneligibleMomentError
	return errors.As(err, &ie)
}
