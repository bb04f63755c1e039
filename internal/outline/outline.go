// Package outline computes the renderable disclosure projection of a
// run's branching turn tree: divergences that can collapse and long
// linear runs that fold down to their edges. The projection is pure —
// it is recomputed from (turn set, selection, collapse set) on every
// call and owns no state of its own.
package outline

import (
	"fmt"

	"github.com/aretw0/espalier/pkg/domain"
)

// Config tunes the folding policy.
type Config struct {
	// FoldThreshold is the linear-run length above which the middle is
	// folded away.
	FoldThreshold int
	// EdgeShow is how many turns stay visible at each end of a folded
	// linear run.
	EdgeShow int
	// CollapseDepth is the divergence nesting depth below which
	// divergences start collapsed.
	CollapseDepth int
}

// DefaultConfig returns the standard policy: fold runs longer than 6
// showing 2 turns per edge, auto-collapse divergences nested deeper
// than 2.
func DefaultConfig() Config {
	return Config{FoldThreshold: 6, EdgeShow: 2, CollapseDepth: 2}
}

// Key is an opaque collapse-set entry.
type Key string

// DivergenceKey is the collapse key of a turn with multiple children.
func DivergenceKey(turnID string) Key {
	return Key(fmt.Sprintf("divergence:%s", turnID))
}

// LinearRunKey is the fold key of a linear run, identified by its first
// turn.
func LinearRunKey(startTurnID string) Key {
	return Key(fmt.Sprintf("linearRun:%s", startTurnID))
}

// CollapseSet is the set of currently collapsed/folded keys. It is
// presentation state, disjoint from the tree data.
type CollapseSet map[Key]bool

// NewCollapseSet creates an empty set.
func NewCollapseSet() CollapseSet { return CollapseSet{} }

// Has reports membership.
func (s CollapseSet) Has(k Key) bool { return s[k] }

// Clone copies the set.
func (s CollapseSet) Clone() CollapseSet {
	cp := make(CollapseSet, len(s))
	for k := range s {
		cp[k] = true
	}
	return cp
}

// Toggle returns a new set with k flipped. The receiver is untouched, so
// undoing a toggle restores the prior set exactly.
func (s CollapseSet) Toggle(k Key) CollapseSet {
	cp := s.Clone()
	if cp[k] {
		delete(cp, k)
	} else {
		cp[k] = true
	}
	return cp
}

// Item is one rendered row of a segment: either a turn or a fold marker
// standing in for the hidden middle of a linear run.
type Item struct {
	Turn     *domain.Turn `json:"turn,omitempty"`
	Selected bool         `json:"selected,omitempty"`
	Fold     *Fold        `json:"fold,omitempty"`
}

// Fold describes a folded linear-run middle.
type Fold struct {
	Key         Key    `json:"key"`
	StartTurnID string `json:"start_turn_id"`
	Hidden      int    `json:"hidden"`
	FromNumber  int    `json:"from_number"`
	ToNumber    int    `json:"to_number"`
}

// Segment is a maximal linear chain of turns, bounded by a divergence or
// a leaf. When the chain's last turn has multiple children the segment
// ends in a Divergence whose arms are themselves segments.
type Segment struct {
	Items []*Item `json:"items"`

	// FoldKey is set when the chain is long enough to fold, whether or
	// not it currently is. UIs attach the re-collapse control to the
	// first item via this key.
	FoldKey Key  `json:"fold_key,omitempty"`
	Folded  bool `json:"folded,omitempty"`

	Divergence *Divergence `json:"divergence,omitempty"`
}

// Divergence is a turn with more than one child, which happens only
// through forking.
type Divergence struct {
	TurnID    string `json:"turn_id"`
	Key       Key    `json:"key"`
	Collapsed bool   `json:"collapsed,omitempty"`

	// Arms are the child segments in deterministic order. Present even
	// when collapsed so UIs can show arm counts; renderers skip them
	// while Collapsed.
	Arms []*Segment `json:"arms,omitempty"`

	// HiddenTurns counts every turn beneath the divergence, for the
	// collapsed summary row.
	HiddenTurns int `json:"hidden_turns,omitempty"`
}

// Outline is the disclosure projection of one run.
type Outline struct {
	RunID    string      `json:"run_id"`
	Selected string      `json:"selected,omitempty"`
	Roots    []*Segment  `json:"roots"`
	Collapse CollapseSet `json:"collapse,omitempty"`
}

// Engine computes outlines under a fixed policy.
type Engine struct {
	cfg Config
}

// New creates an engine; zero config fields fall back to defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.FoldThreshold <= 0 {
		cfg.FoldThreshold = def.FoldThreshold
	}
	if cfg.EdgeShow <= 0 {
		cfg.EdgeShow = def.EdgeShow
	}
	if cfg.CollapseDepth <= 0 {
		cfg.CollapseDepth = def.CollapseDepth
	}
	return &Engine{cfg: cfg}
}

// Build computes the outline of a run under the given collapse set. The
// selection invariant is applied first: ancestor divergences of the
// selected turn render open even if the set still carries their keys,
// and a fold hiding the selected turn renders open.
func (e *Engine) Build(run *domain.Run, set CollapseSet) *Outline {
	set = e.RevealSelection(run, set, run.SelectedTurnID)
	out := &Outline{
		RunID:    run.ID,
		Selected: run.SelectedTurnID,
		Collapse: set,
	}
	for _, root := range run.Roots() {
		out.Roots = append(out.Roots, e.segment(run, root, set))
	}
	return out
}

// DefaultCollapse computes the initial collapse set for a fresh render:
// every over-threshold linear run folded and every divergence nested
// deeper than the depth policy collapsed, minus whatever the selection
// invariant forces open.
func (e *Engine) DefaultCollapse(run *domain.Run) CollapseSet {
	set := NewCollapseSet()
	for _, root := range run.Roots() {
		e.seed(run, root, 0, set)
	}
	return e.RevealSelection(run, set, run.SelectedTurnID)
}

// ExpandAll clears the collapse set entirely.
func ExpandAll() CollapseSet { return NewCollapseSet() }

// CollapseAll repopulates the set for every divergence and over-threshold
// linear run, except those on the path to the current selection.
func (e *Engine) CollapseAll(run *domain.Run) CollapseSet {
	set := NewCollapseSet()
	for _, root := range run.Roots() {
		e.collapseAll(run, root, set)
	}
	return e.RevealSelection(run, set, run.SelectedTurnID)
}

// RevealSelection enforces the visibility invariant: every divergence on
// the path from the run root to the selected turn is forced open, and a
// folded linear run whose hidden middle contains the selection unfolds.
// A selection sitting on a visible edge leaves the fold alone. Returns a
// new set; the input is untouched.
func (e *Engine) RevealSelection(run *domain.Run, set CollapseSet, selectedTurnID string) CollapseSet {
	out := set.Clone()
	if selectedTurnID == "" {
		return out
	}
	path, err := run.PathToRoot(selectedTurnID)
	if err != nil {
		return out
	}
	for _, t := range path {
		if len(run.Children(t.ID)) > 1 {
			delete(out, DivergenceKey(t.ID))
		}
	}
	// Linear runs start at a root or right after a divergence; walk the
	// path tracking the chain start and the selection's offset within it.
	start, idx := "", 0
	for _, t := range path {
		if start == "" {
			start, idx = t.ID, 0
		}
		if t.ID == selectedTurnID {
			key := LinearRunKey(start)
			if out.Has(key) {
				n := len(chain(run, run.Turns[start]))
				if idx >= e.cfg.EdgeShow && idx < n-e.cfg.EdgeShow {
					delete(out, key)
				}
			}
			break
		}
		idx++
		if len(run.Children(t.ID)) > 1 {
			start = ""
		}
	}
	return out
}

// chain collects the maximal linear run starting at turn: the turn and
// every single-child descendant, stopping at (and including) the first
// divergence or leaf.
func chain(run *domain.Run, turn *domain.Turn) []*domain.Turn {
	turns := []*domain.Turn{turn}
	cur := turn
	for {
		kids := run.Children(cur.ID)
		if len(kids) != 1 {
			return turns
		}
		cur = kids[0]
		turns = append(turns, cur)
	}
}

func (e *Engine) segment(run *domain.Run, start *domain.Turn, set CollapseSet) *Segment {
	turns := chain(run, start)
	seg := &Segment{}

	// Folding needs a non-empty middle between the shown edges.
	foldable := len(turns) > e.cfg.FoldThreshold && len(turns) > 2*e.cfg.EdgeShow
	if foldable {
		seg.FoldKey = LinearRunKey(start.ID)
		seg.Folded = set.Has(seg.FoldKey)
	}

	if seg.Folded {
		k := e.cfg.EdgeShow
		for _, t := range turns[:k] {
			seg.Items = append(seg.Items, e.item(run, t))
		}
		hidden := turns[k : len(turns)-k]
		seg.Items = append(seg.Items, &Item{Fold: &Fold{
			Key:         seg.FoldKey,
			StartTurnID: start.ID,
			Hidden:      len(hidden),
			FromNumber:  hidden[0].Number,
			ToNumber:    hidden[len(hidden)-1].Number,
		}})
		for _, t := range turns[len(turns)-k:] {
			seg.Items = append(seg.Items, e.item(run, t))
		}
	} else {
		for _, t := range turns {
			seg.Items = append(seg.Items, e.item(run, t))
		}
	}

	last := turns[len(turns)-1]
	kids := run.Children(last.ID)
	if len(kids) > 1 {
		key := DivergenceKey(last.ID)
		div := &Divergence{
			TurnID:    last.ID,
			Key:       key,
			Collapsed: set.Has(key),
		}
		for _, kid := range kids {
			div.Arms = append(div.Arms, e.segment(run, kid, set))
			div.HiddenTurns += subtreeSize(run, kid)
		}
		seg.Divergence = div
	}
	return seg
}

func (e *Engine) item(run *domain.Run, t *domain.Turn) *Item {
	return &Item{Turn: t, Selected: t.ID == run.SelectedTurnID}
}

// seed applies the default policy. depth counts enclosing divergences.
func (e *Engine) seed(run *domain.Run, start *domain.Turn, depth int, set CollapseSet) {
	turns := chain(run, start)
	if len(turns) > e.cfg.FoldThreshold {
		set[LinearRunKey(start.ID)] = true
	}
	last := turns[len(turns)-1]
	kids := run.Children(last.ID)
	if len(kids) > 1 {
		if depth+1 > e.cfg.CollapseDepth {
			set[DivergenceKey(last.ID)] = true
		}
		for _, kid := range kids {
			e.seed(run, kid, depth+1, set)
		}
	}
}

func (e *Engine) collapseAll(run *domain.Run, start *domain.Turn, set CollapseSet) {
	turns := chain(run, start)
	if len(turns) > e.cfg.FoldThreshold {
		set[LinearRunKey(start.ID)] = true
	}
	last := turns[len(turns)-1]
	kids := run.Children(last.ID)
	if len(kids) > 1 {
		set[DivergenceKey(last.ID)] = true
		for _, kid := range kids {
			e.collapseAll(run, kid, set)
		}
	}
}

func subtreeSize(run *domain.Run, t *domain.Turn) int {
	n := 1
	for _, kid := range run.Children(t.ID) {
		n += subtreeSize(run, kid)
	}
	return n
}
