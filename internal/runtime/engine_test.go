package runtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLoader struct {
	doc   *flow.Document
	loads int
}

func (l *staticLoader) Load(ctx context.Context) (*flow.Document, error) {
	l.loads++
	return l.doc, nil
}

// scriptedDecider answers ADVANCE for every moment and counts calls.
type scriptedDecider struct {
	calls     int
	responses map[string]ports.DecisionResponse
}

func (d *scriptedDecider) Decide(ctx context.Context, req ports.DecisionRequest) (ports.DecisionResponse, error) {
	d.calls++
	if resp, ok := d.responses[req.Moment.ID]; ok {
		return resp, nil
	}
	return ports.DecisionResponse{
		Decision:     domain.TurnDecision{Decision: domain.DecisionAdvance},
		AgentMessage: "ok: " + req.Moment.ID,
	}, nil
}

func engineDoc() *flow.Document {
	doc := resolverDoc()
	doc.EntryNodeIDs = []string{"welcome", "pick-goal"}
	doc.Nodes = append(doc.Nodes, domain.Moment{
		ID: "pick-deadline", Kind: domain.KindDeadlineCapture,
	})
	doc.Lenses = []domain.GoalLens{{
		ID:                "weight-loss",
		BaselineMetrics:   []domain.FactID{"baseline.weight_kg"},
		DeadlinePrecision: domain.PrecisionExactDate,
		Narrowing:         domain.NarrowImmediate,
	}}
	return doc
}

func newTestEngine(t *testing.T, doc *flow.Document) (*Engine, *scriptedDecider) {
	t.Helper()
	decider := &scriptedDecider{responses: map[string]ports.DecisionResponse{}}
	var n int
	eng := NewEngine(&staticLoader{doc: doc}, decider,
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		WithClock(func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }),
	)
	return eng, decider
}

func TestStartRunAtEntry(t *testing.T) {
	eng, decider := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(context.Background(), "run-1", "welcome", "hi")
	require.NoError(t, err)

	assert.Equal(t, "coaching-intake", run.FlowID)
	assert.Equal(t, 1, decider.calls)
	require.Len(t, run.Turns, 1)
	turn := run.Turns[run.SelectedTurnID]
	assert.Equal(t, "welcome", turn.MomentID)
	assert.Equal(t, 1, turn.Number)
	assert.Equal(t, "ok: welcome", turn.AgentMessage)
}

func TestStartRunRejectsNonEntry(t *testing.T) {
	eng, decider := newTestEngine(t, engineDoc())

	_, err := eng.StartRun(context.Background(), "run-1", "book-session", "hi")
	assert.ErrorContains(t, err, "not an entry node")
	assert.Zero(t, decider.calls)
}

func TestContinueWalksTheBranch(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)

	contact, err := eng.Continue(ctx, run, run.SelectedTurnID, "make-contact", "call me")
	require.NoError(t, err)
	assert.Equal(t, 2, contact.Number)

	// make-contact satisfies CONTACT, so book-session is now eligible.
	booking, err := eng.Continue(ctx, run, contact.ID, "book-session", "tuesday")
	require.NoError(t, err)

	ledger, err := eng.LedgerAt(ctx, run, booking.ID)
	require.NoError(t, err)
	assert.True(t, ledger.HasGate(domain.GateContact))
	assert.True(t, ledger.HasGate(domain.GateBooking))
}

func TestContinueOnNonLeafRequiresFork(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)
	root := run.SelectedTurnID
	_, err = eng.Continue(ctx, run, root, "make-contact", "call me")
	require.NoError(t, err)

	_, err = eng.Continue(ctx, run, root, "pick-goal", "again")
	var leafErr *domain.NotALeafError
	require.ErrorAs(t, err, &leafErr)

	branch, turn, err := eng.ForkAndContinue(ctx, run, root, "What if", "pick-goal", "again")
	require.NoError(t, err)
	assert.Equal(t, "What if", branch.Label)
	assert.Equal(t, root, branch.ForkedFromID)
	assert.Equal(t, 2, turn.Number)
	assert.Equal(t, branch.ID, run.ActiveBranchID)
}

func TestContinueIneligibleMoment(t *testing.T) {
	ctx := context.Background()
	eng, decider := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)
	callsAfterStart := decider.calls

	_, err = eng.Continue(ctx, run, run.SelectedTurnID, "book-session", "tuesday")
	var inelig *domain.IneligibleMomentError
	require.ErrorAs(t, err, &inelig)
	assert.Equal(t, "book-session", inelig.MomentID)
	assert.Equal(t, []domain.GateID{domain.GateContact}, inelig.MissingGates)
	assert.True(t, domain.IsIneligible(err))

	assert.Equal(t, callsAfterStart, decider.calls, "no provider call for an ineligible moment")
	assert.Len(t, run.Turns, 1, "run unchanged")
}

func TestForkFromMissingTurn(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)

	_, _, err = eng.ForkAndContinue(ctx, run, "ghost", "x", "welcome", "hi")
	var unknown *domain.UnknownTurnError
	require.ErrorAs(t, err, &unknown)
}

func TestActiveLensFollowsThePath(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)
	root := run.SelectedTurnID

	lens, err := eng.ActiveLens(ctx, run, root)
	require.NoError(t, err)
	assert.Nil(t, lens, "no goal defined yet")

	goal, err := eng.Continue(ctx, run, root, "pick-goal", "lose weight")
	require.NoError(t, err)
	assert.Equal(t, "weight-loss", run.ActiveLensID)

	lens, err = eng.ActiveLens(ctx, run, goal.ID)
	require.NoError(t, err)
	require.NotNil(t, lens)
	assert.Equal(t, "weight-loss", lens.ID)

	// A branch forked before the goal turn sees no lens.
	_, other, err := eng.ForkAndContinue(ctx, run, root, "alt", "make-contact", "call me")
	require.NoError(t, err)
	lens, err = eng.ActiveLens(ctx, run, other.ID)
	require.NoError(t, err)
	assert.Nil(t, lens)
}

func TestDeadlineRejectionStallsWithoutProvider(t *testing.T) {
	ctx := context.Background()
	eng, decider := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "pick-goal", "lose weight")
	require.NoError(t, err)
	callsAfterStart := decider.calls

	// Lens policy is EXACT_DATE/IMMEDIATE; a duration answer stalls locally.
	turn, err := eng.Continue(ctx, run, run.SelectedTurnID, "pick-deadline", "3 weeks")
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionStall, turn.Decision.Decision)
	assert.Contains(t, turn.Decision.Reasoning, "too loose")
	assert.Equal(t, callsAfterStart, decider.calls, "policy rejection skips the provider")

	ledger, err := eng.LedgerAt(ctx, run, turn.ID)
	require.NoError(t, err)
	assert.False(t, ledger.HasFact(FactDeadline))
}

func TestDeadlineAcceptedRecordsFact(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "pick-goal", "lose weight")
	require.NoError(t, err)

	turn, err := eng.Continue(ctx, run, run.SelectedTurnID, "pick-deadline", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAdvance, turn.Decision.Decision)

	ledger, err := eng.LedgerAt(ctx, run, turn.ID)
	require.NoError(t, err)
	assert.True(t, ledger.HasFact(FactDeadline))
	assert.False(t, ledger.HasState(StateDeadlineFollowUp))
}

func TestDeadlineDeferredSchedulesFollowUp(t *testing.T) {
	ctx := context.Background()
	doc := engineDoc()
	doc.Lenses[0].Narrowing = domain.NarrowFollowUp
	eng, _ := newTestEngine(t, doc)

	run, err := eng.StartRun(ctx, "run-1", "pick-goal", "lose weight")
	require.NoError(t, err)

	turn, err := eng.Continue(ctx, run, run.SelectedTurnID, "pick-deadline", "3 weeks")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAdvance, turn.Decision.Decision)

	ledger, err := eng.LedgerAt(ctx, run, turn.ID)
	require.NoError(t, err)
	assert.True(t, ledger.HasFact(FactDeadline))
	assert.True(t, ledger.HasState(StateDeadlineFollowUp))
}

func TestEligibleReflectsReplayedLedger(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, engineDoc())

	run, err := eng.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)

	statuses, err := eng.Eligible(ctx, run, run.SelectedTurnID)
	require.NoError(t, err)
	byID := map[string]MomentStatus{}
	for _, s := range statuses {
		byID[s.Moment.ID] = s
	}
	assert.False(t, byID["book-session"].Eligible)

	contact, err := eng.Continue(ctx, run, run.SelectedTurnID, "make-contact", "call me")
	require.NoError(t, err)

	statuses, err = eng.Eligible(ctx, run, contact.ID)
	require.NoError(t, err)
	for _, s := range statuses {
		if s.Moment.ID == "book-session" {
			assert.True(t, s.Eligible)
		}
	}
}

func TestLifecycleHooksEmitted(t *testing.T) {
	ctx := context.Background()
	doc := engineDoc()
	decider := &scriptedDecider{}
	var turns, forks, decisions int
	var n int
	eng := NewEngine(&staticLoader{doc: doc}, decider,
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		WithLifecycleHooks(domain.LifecycleHooks{
			OnTurnAppended: func(_ context.Context, e *domain.TurnEvent) { turns++ },
			OnBranchForked: func(_ context.Context, e *domain.ForkEvent) { forks++ },
			OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
				decisions++
				assert.Equal(t, domain.DecisionAdvance, e.Decision)
			},
		}),
	)

	run, err := eng.StartRun(ctx, "run-1", "welcome", "hi")
	require.NoError(t, err)
	root := run.SelectedTurnID
	_, err = eng.Continue(ctx, run, root, "make-contact", "call me")
	require.NoError(t, err)
	_, _, err = eng.ForkAndContinue(ctx, run, root, "alt", "pick-goal", "again")
	require.NoError(t, err)

	assert.Equal(t, 3, turns)
	assert.Equal(t, 1, forks)
	assert.Equal(t, 3, decisions)
}

func TestFlowIsLoadedOnceUntilReload(t *testing.T) {
	ctx := context.Background()
	loader := &staticLoader{doc: engineDoc()}
	eng := NewEngine(loader, &scriptedDecider{})

	_, err := eng.Flow(ctx)
	require.NoError(t, err)
	_, err = eng.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loads)

	require.NoError(t, eng.Reload(ctx))
	assert.Equal(t, 2, loader.loads)
}
