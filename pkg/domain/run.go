package domain

import (
	"sort"
	"time"
)

// Run is the root aggregate of one simulation session: every turn across
// every branch, plus the current selection. A Run is owned by exactly one
// session; there is no cross-run sharing.
type Run struct {
	ID     string `json:"id"`
	FlowID string `json:"flow_id,omitempty"`

	Turns    map[string]*Turn   `json:"turns"`
	Branches map[string]*Branch `json:"branches"`

	ActiveBranchID string `json:"active_branch_id,omitempty"`
	SelectedTurnID string `json:"selected_turn_id,omitempty"`

	// ActiveLensID is set by the first goal_definition turn on the
	// selected path; replayed, not cached, by the playback driver. Stored
	// here only as the last-rendered value for UI convenience.
	ActiveLensID string `json:"active_lens_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRun creates an empty run.
func NewRun(id string) *Run {
	return &Run{
		ID:        id,
		Turns:     make(map[string]*Turn),
		Branches:  make(map[string]*Branch),
		CreatedAt: time.Now().UTC(),
	}
}

// Turn returns the turn by ID.
func (r *Run) Turn(id string) (*Turn, error) {
	t, ok := r.Turns[id]
	if !ok {
		return nil, &UnknownTurnError{TurnID: id}
	}
	return t, nil
}

// Branch returns the branch by ID.
func (r *Run) Branch(id string) (*Branch, error) {
	b, ok := r.Branches[id]
	if !ok {
		return nil, &UnknownBranchError{BranchID: id}
	}
	return b, nil
}

// IsLeaf reports whether no other turn declares turnID as its parent.
// This is the single source of truth callers use to choose between
// ordinary continuation and forking. It is recomputed from the live turn
// set on every call — children are only ever added, so the answer is
// monotonic within a run, and scanning avoids a cached index that could
// go stale.
func (r *Run) IsLeaf(turnID string) (bool, error) {
	if _, ok := r.Turns[turnID]; !ok {
		return false, &UnknownTurnError{TurnID: turnID}
	}
	for _, t := range r.Turns {
		if t.ParentID == turnID {
			return false, nil
		}
	}
	return true, nil
}

// Children returns the turns whose parent is turnID, discovered by scan
// and ordered deterministically (turn number, then ID).
func (r *Run) Children(turnID string) []*Turn {
	var kids []*Turn
	for _, t := range r.Turns {
		if t.ParentID == turnID && turnID != "" {
			kids = append(kids, t)
		}
	}
	sort.Slice(kids, func(i, j int) bool {
		if kids[i].Number != kids[j].Number {
			return kids[i].Number < kids[j].Number
		}
		return kids[i].ID < kids[j].ID
	})
	return kids
}

// Roots returns the parentless turns (branch roots of the initial
// branch), ordered like Children.
func (r *Run) Roots() []*Turn {
	var roots []*Turn
	for _, t := range r.Turns {
		if t.ParentID == "" {
			roots = append(roots, t)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		if roots[i].Number != roots[j].Number {
			return roots[i].Number < roots[j].Number
		}
		return roots[i].ID < roots[j].ID
	})
	return roots
}

// Start creates the initial branch with its root turn. It fails once the
// run already has any turn; later entry points are forks.
func (r *Run) Start(branchID, label string, seed TurnSeed) (*Branch, *Turn, error) {
	if len(r.Turns) > 0 {
		return nil, nil, ErrRunAlreadyStarted
	}
	turn, err := r.mint(seed, branchID, "", 1)
	if err != nil {
		return nil, nil, err
	}
	branch := &Branch{
		ID:         branchID,
		Label:      label,
		RootTurnID: turn.ID,
		TipTurnID:  turn.ID,
		CreatedAt:  turn.CreatedAt,
	}
	r.Branches[branchID] = branch
	r.Turns[turn.ID] = turn
	r.ActiveBranchID = branchID
	r.SelectedTurnID = turn.ID
	return branch, turn, nil
}

// Append continues a branch at its tip. It fails with NotALeafError when
// parentTurnID already has a child: the caller must fork instead. On
// success the new turn carries the parent's branch and number+1, and the
// branch tip advances.
func (r *Run) Append(parentTurnID string, seed TurnSeed) (*Turn, error) {
	parent, ok := r.Turns[parentTurnID]
	if !ok {
		return nil, &UnknownTurnError{TurnID: parentTurnID}
	}
	leaf, err := r.IsLeaf(parentTurnID)
	if err != nil {
		return nil, err
	}
	if !leaf {
		return nil, &NotALeafError{TurnID: parentTurnID}
	}

	turn, err := r.mint(seed, parent.BranchID, parent.ID, parent.Number+1)
	if err != nil {
		return nil, err
	}

	// Link only after the turn is fully built: no partially-appended state.
	r.Turns[turn.ID] = turn
	r.Branches[parent.BranchID].TipTurnID = turn.ID
	r.SelectedTurnID = turn.ID
	r.ActiveBranchID = parent.BranchID
	return turn, nil
}

// Fork creates a new branch rooted at a new turn parented at fromTurnID.
// Unlike Append it is permitted from any existing turn, leaf or not, and
// always succeeds as long as fromTurnID exists. Branch and turn are
// created atomically; on error nothing changes.
func (r *Run) Fork(fromTurnID, branchID, label string, seed TurnSeed) (*Branch, *Turn, error) {
	from, ok := r.Turns[fromTurnID]
	if !ok {
		return nil, nil, &UnknownTurnError{TurnID: fromTurnID}
	}
	if _, exists := r.Branches[branchID]; exists {
		return nil, nil, &DuplicateIDError{Kind: "branch", ID: branchID}
	}

	turn, err := r.mint(seed, branchID, from.ID, from.Number+1)
	if err != nil {
		return nil, nil, err
	}
	branch := &Branch{
		ID:           branchID,
		Label:        label,
		RootTurnID:   turn.ID,
		TipTurnID:    turn.ID,
		ForkedFromID: from.ID,
		CreatedAt:    turn.CreatedAt,
	}

	r.Branches[branchID] = branch
	r.Turns[turn.ID] = turn
	r.ActiveBranchID = branchID
	r.SelectedTurnID = turn.ID
	return branch, turn, nil
}

// TurnsForBranch returns the branch's turns ordered root→tip, obtained by
// walking parent links from the tip and reversing. Shared prefixes are
// included: two branches through the same fork point agree on everything
// up to it. A known branch with no tip yields an empty (non-nil error
// free) sequence; an unknown ID is UnknownBranchError.
func (r *Run) TurnsForBranch(branchID string) ([]*Turn, error) {
	branch, ok := r.Branches[branchID]
	if !ok {
		return nil, &UnknownBranchError{BranchID: branchID}
	}
	if branch.TipTurnID == "" {
		return []*Turn{}, nil
	}
	return r.PathToRoot(branch.TipTurnID)
}

// PathToRoot returns the turns from the run root down to turnID
// inclusive, ordered root-first.
func (r *Run) PathToRoot(turnID string) ([]*Turn, error) {
	var rev []*Turn
	id := turnID
	for id != "" {
		t, ok := r.Turns[id]
		if !ok {
			return nil, &UnknownTurnError{TurnID: id}
		}
		rev = append(rev, t)
		id = t.ParentID
	}
	path := make([]*Turn, len(rev))
	for i, t := range rev {
		path[len(rev)-1-i] = t
	}
	return path, nil
}

// Select moves the selection to turnID and activates its owning branch.
func (r *Run) Select(turnID string) error {
	t, ok := r.Turns[turnID]
	if !ok {
		return &UnknownTurnError{TurnID: turnID}
	}
	r.SelectedTurnID = t.ID
	r.ActiveBranchID = t.BranchID
	return nil
}

// Clone deep-copies the run so stores can hand out isolated snapshots.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Turns = make(map[string]*Turn, len(r.Turns))
	for id, t := range r.Turns {
		tc := *t
		cp.Turns[id] = &tc
	}
	cp.Branches = make(map[string]*Branch, len(r.Branches))
	for id, b := range r.Branches {
		bc := *b
		cp.Branches[id] = &bc
	}
	return &cp
}

// mint builds a turn off to the side without touching the run.
func (r *Run) mint(seed TurnSeed, branchID, parentID string, number int) (*Turn, error) {
	if seed.ID == "" {
		return nil, ErrMissingTurnID
	}
	if _, exists := r.Turns[seed.ID]; exists {
		return nil, &DuplicateIDError{Kind: "turn", ID: seed.ID}
	}
	created := seed.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &Turn{
		ID:           seed.ID,
		BranchID:     branchID,
		ParentID:     parentID,
		Number:       number,
		MomentID:     seed.MomentID,
		Kind:         seed.Kind,
		UserMessage:  seed.UserMessage,
		AgentMessage: seed.AgentMessage,
		Decision:     seed.Decision,
		Satisfied:    seed.Satisfied,
		CreatedAt:    created,
	}, nil
}
