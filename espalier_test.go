package espalier

import (
	"context"
	"testing"

	"github.com/aretw0/espalier/internal/outline"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intakeDoc() *flow.Document {
	return &flow.Document{
		ID:           "coaching-intake",
		EntryNodeIDs: []string{"welcome"},
		Nodes: []domain.Moment{
			{ID: "welcome", Kind: domain.KindExplanation, Prompt: "Welcome!"},
			{ID: "pick-goal", Kind: domain.KindGoalDefinition, LensID: "weight-loss"},
			{
				ID: "make-contact", Kind: domain.KindReflectiveQuestion,
				Satisfies: domain.Effects{Gates: []domain.GateID{domain.GateContact}},
			},
			{
				ID: "book-session", Kind: domain.KindActionBooking,
				Requires:  domain.Requirements{Gates: []domain.GateID{domain.GateContact}},
				Satisfies: domain.Effects{Gates: []domain.GateID{domain.GateBooking}},
			},
		},
		Lenses: []domain.GoalLens{{ID: "weight-loss"}},
	}
}

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	sim, err := New("", WithLoader(memory.NewLoader(intakeDoc())))
	require.NoError(t, err)
	return sim
}

func TestNew_RequiresPathOrLoader(t *testing.T) {
	_, err := New("")
	assert.ErrorContains(t, err, "repoPath is required")
}

func TestSimulator_StartContinueFork(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator(t)

	run, err := sim.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)
	require.Len(t, run.Turns, 1)

	contact, err := sim.Continue(ctx, "run-1", run.SelectedTurnID, "make-contact", "call me")
	require.NoError(t, err)

	// The root already has a child, so continuing from it must fail and
	// forking must succeed.
	_, err = sim.Continue(ctx, "run-1", run.SelectedTurnID, "make-contact", "email me")
	var notLeaf *domain.NotALeafError
	require.ErrorAs(t, err, &notLeaf)

	branch, alt, err := sim.Fork(ctx, "run-1", run.SelectedTurnID, "What if", "make-contact", "email me")
	require.NoError(t, err)
	assert.Equal(t, "What if", branch.Label)
	assert.NotEqual(t, contact.ID, alt.ID)

	// Both tips replay the same gate from their shared effect.
	ledger, err := sim.LedgerAt(ctx, "run-1", alt.ID)
	require.NoError(t, err)
	assert.True(t, ledger.HasGate(domain.GateContact))
}

func TestSimulator_MutationsArePersisted(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator(t)

	run, err := sim.StartRun(ctx, "", "welcome", "hi")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	turn, err := sim.Continue(ctx, run.ID, run.SelectedTurnID, "make-contact", "call me")
	require.NoError(t, err)

	loaded, err := sim.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Turns, 2)
	assert.Equal(t, turn.ID, loaded.SelectedTurnID)

	ids, err := sim.Runs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, run.ID)

	require.NoError(t, sim.DeleteRun(ctx, run.ID))
	_, err = sim.Run(ctx, run.ID)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestSimulator_SelectMovesTheCursor(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator(t)

	run, err := sim.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)
	root := run.SelectedTurnID
	_, err = sim.Continue(ctx, "run-1", root, "make-contact", "call me")
	require.NoError(t, err)

	moved, err := sim.Select(ctx, "run-1", root)
	require.NoError(t, err)
	assert.Equal(t, root, moved.SelectedTurnID)

	_, err = sim.Select(ctx, "run-1", "nope")
	assert.Error(t, err)
}

func TestSimulator_EligibleTracksTheLedger(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator(t)

	run, err := sim.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)

	statuses, err := sim.Eligible(ctx, "run-1", run.SelectedTurnID)
	require.NoError(t, err)
	byID := map[string]bool{}
	for _, s := range statuses {
		byID[s.Moment.ID] = s.Eligible
	}
	assert.True(t, byID["make-contact"])
	assert.False(t, byID["book-session"], "CONTACT not yet granted")

	contact, err := sim.Continue(ctx, "run-1", run.SelectedTurnID, "make-contact", "call me")
	require.NoError(t, err)
	statuses, err = sim.Eligible(ctx, "run-1", contact.ID)
	require.NoError(t, err)
	for _, s := range statuses {
		if s.Moment.ID == "book-session" {
			assert.True(t, s.Eligible)
		}
	}
}

func TestSimulator_OutlineViewStateSurvivesToggles(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator(t)

	run, err := sim.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)
	root := run.SelectedTurnID
	_, err = sim.Continue(ctx, "run-1", root, "make-contact", "call me")
	require.NoError(t, err)
	_, _, err = sim.Fork(ctx, "run-1", root, "alt", "make-contact", "email me")
	require.NoError(t, err)

	o, err := sim.Outline(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, o.Roots, 1)
	div := o.Roots[0].Divergence
	require.NotNil(t, div)
	assert.False(t, div.Collapsed, "shallow divergence starts open")

	o, err = sim.ToggleOutline(ctx, "run-1", outline.DivergenceKey(root))
	require.NoError(t, err)
	assert.True(t, o.Roots[0].Divergence.Collapsed)

	// The toggle sticks across plain rebuilds.
	o, err = sim.Outline(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, o.Roots[0].Divergence.Collapsed)

	o, err = sim.ExpandOutline(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, o.Roots[0].Divergence.Collapsed)
}

func TestSimulator_ReloadPicksUpSwappedFlow(t *testing.T) {
	ctx := context.Background()
	loader := memory.NewLoader(intakeDoc())
	sim, err := New("", WithLoader(loader))
	require.NoError(t, err)

	doc, err := sim.Flow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "coaching-intake", doc.ID)

	next := intakeDoc()
	next.ID = "coaching-intake-v2"
	loader.Swap(next)

	// Cached until Reload.
	doc, err = sim.Flow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "coaching-intake", doc.ID)

	require.NoError(t, sim.Reload(ctx))
	doc, err = sim.Flow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "coaching-intake-v2", doc.ID)
}
