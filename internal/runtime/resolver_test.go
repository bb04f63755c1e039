package runtime

import (
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolverDoc() *flow.Document {
	return &flow.Document{
		ID:           "coaching-intake",
		EntryNodeIDs: []string{"welcome"},
		Nodes: []domain.Moment{
			{ID: "welcome", Kind: domain.KindExplanation},
			{ID: "pick-goal", Kind: domain.KindGoalDefinition, LensID: "weight-loss"},
			{
				ID: "capture-baseline", Kind: domain.KindBaselineCapture,
				Requires: domain.Requirements{Facts: []domain.FactID{"goal.kind"}},
			},
			{
				ID: "make-contact", Kind: domain.KindReflectiveQuestion,
				Satisfies: domain.Effects{Gates: []domain.GateID{domain.GateContact}},
			},
			{
				ID: "book-session", Kind: domain.KindActionBooking,
				Requires:  domain.Requirements{Gates: []domain.GateID{domain.GateContact}},
				Satisfies: domain.Effects{Gates: []domain.GateID{domain.GateBooking}},
			},
			{
				ID: "wrap-up", Kind: domain.KindHandoff,
				Requires: domain.Requirements{Gates: []domain.GateID{domain.GateBooking}},
			},
		},
		GateDefinitions: map[domain.GateID]domain.GateRule{
			domain.GateContact: {StatesAll: []domain.StateID{"contact_made"}},
			domain.GateHandoff: {
				MetricsAll: []domain.FactID{"goal.kind", "baseline.activity?"},
				StatesAll:  []domain.StateID{"handoff_accepted"},
			},
		},
		Lenses: []domain.GoalLens{{ID: "weight-loss"}},
	}
}

func TestLaneResolutionOrder(t *testing.T) {
	res := NewResolver(resolverDoc())

	cases := map[string]domain.Lane{
		"welcome":          domain.LaneBeforeContact,
		"capture-baseline": domain.LaneBeforeContact,
		"make-contact":     domain.LaneContactGate,
		"book-session":     domain.LaneAfterContact,
		"wrap-up":          domain.LaneAfterBooking,
	}
	for id, want := range cases {
		m := res.doc.Moment(id)
		require.NotNil(t, m, id)
		lane, err := res.LaneOf(m)
		require.NoError(t, err)
		assert.Equal(t, want, lane, id)
	}
}

func TestLaneOfSatisfyingContactWinsOverRequirements(t *testing.T) {
	// A moment that both satisfies CONTACT and requires BOOKING sits in the
	// contact gate lane: satisfaction is checked before requirements.
	res := NewResolver(resolverDoc())
	m := &domain.Moment{
		ID: "odd", Kind: domain.KindReflectiveQuestion,
		Requires:  domain.Requirements{Gates: []domain.GateID{domain.GateBooking}},
		Satisfies: domain.Effects{Gates: []domain.GateID{domain.GateContact}},
	}
	lane, err := res.LaneOf(m)
	require.NoError(t, err)
	assert.Equal(t, domain.LaneContactGate, lane)
}

func TestLaneOfUnknownKind(t *testing.T) {
	res := NewResolver(resolverDoc())
	_, err := res.LaneOf(&domain.Moment{ID: "bogus", Kind: "interpretive_dance"})

	var laneErr *domain.UnresolvableLaneError
	require.ErrorAs(t, err, &laneErr)
	assert.Equal(t, "bogus", laneErr.MomentID)
}

func TestMissingPreservesDeclarationOrder(t *testing.T) {
	res := NewResolver(resolverDoc())
	m := &domain.Moment{
		ID: "strict", Kind: domain.KindActionBooking,
		Requires: domain.Requirements{
			Gates: []domain.GateID{domain.GateBooking, domain.GateContact},
			Facts: []domain.FactID{"goal.kind", "baseline.weight_kg"},
		},
	}
	ledger := domain.NewLedger()
	ledger.Facts["goal.kind"] = true

	gates, facts := res.Missing(m, ledger)
	assert.Equal(t, []domain.GateID{domain.GateBooking, domain.GateContact}, gates)
	assert.Equal(t, []domain.FactID{"baseline.weight_kg"}, facts)
	assert.False(t, res.IsEligible(m, ledger))
}

func TestEmptyRequirementsAreVacuouslyEligible(t *testing.T) {
	res := NewResolver(resolverDoc())
	m := &domain.Moment{ID: "open", Kind: domain.KindExplanation}
	assert.True(t, res.IsEligible(m, domain.NewLedger()))
}

func TestApplyTurnPromotesGates(t *testing.T) {
	res := NewResolver(resolverDoc())
	turn := &domain.Turn{
		ID: "t1", MomentID: "make-contact", Kind: domain.KindReflectiveQuestion,
		Decision: domain.TurnDecision{
			Decision:  domain.DecisionAdvance,
			NewStates: []domain.StateID{"contact_made"},
		},
	}

	before := domain.NewLedger()
	after := res.ApplyTurn(before, turn)

	assert.True(t, after.HasState("contact_made"))
	assert.True(t, after.HasGate(domain.GateContact), "rule promotion after the grant")
	assert.False(t, before.HasState("contact_made"), "input ledger untouched")
}

func TestApplyTurnSkipsOptionalMetricsInGateRules(t *testing.T) {
	res := NewResolver(resolverDoc())
	turn := &domain.Turn{
		ID: "t1", MomentID: "x", Kind: domain.KindReflectiveQuestion,
		Decision: domain.TurnDecision{
			NewFacts:  []domain.FactID{"goal.kind"},
			NewStates: []domain.StateID{"handoff_accepted"},
		},
	}
	// baseline.activity? is optional and absent; HANDOFF must still promote.
	after := res.ApplyTurn(domain.NewLedger(), turn)
	assert.True(t, after.HasGate(domain.GateHandoff))
}

func TestReplayIsDeterministic(t *testing.T) {
	res := NewResolver(resolverDoc())
	turns := []*domain.Turn{
		{ID: "t1", Satisfied: domain.Effects{Facts: []domain.FactID{"goal.kind"}}},
		{ID: "t2", Decision: domain.TurnDecision{NewStates: []domain.StateID{"contact_made"}}},
		{ID: "t3", Satisfied: domain.Effects{Gates: []domain.GateID{domain.GateBooking}}},
	}

	a := res.Replay(turns)
	b := res.Replay(turns)
	assert.Equal(t, a.GateList(), b.GateList())
	assert.Equal(t, a.FactList(), b.FactList())
	assert.True(t, a.HasGate(domain.GateContact))
	assert.True(t, a.HasGate(domain.GateBooking))
}

func TestStatusesOrderedByLane(t *testing.T) {
	res := NewResolver(resolverDoc())
	statuses, err := res.Statuses(domain.NewLedger())
	require.NoError(t, err)
	require.Len(t, statuses, 6)

	var lanes []domain.Lane
	for _, s := range statuses {
		lanes = append(lanes, s.Lane)
	}
	assert.Equal(t, []domain.Lane{
		domain.LaneBeforeContact, domain.LaneBeforeContact, domain.LaneBeforeContact,
		domain.LaneContactGate,
		domain.LaneAfterContact,
		domain.LaneAfterBooking,
	}, lanes)

	// Within the empty ledger, gated moments report their missing gates.
	last := statuses[len(statuses)-1]
	assert.Equal(t, "wrap-up", last.Moment.ID)
	assert.False(t, last.Eligible)
	assert.Equal(t, []domain.GateID{domain.GateBooking}, last.MissingGates)
}

func TestStatusesAbortOnUnknownKind(t *testing.T) {
	doc := resolverDoc()
	doc.Nodes = append(doc.Nodes, domain.Moment{ID: "bad", Kind: "mystery"})
	res := NewResolver(doc)

	_, err := res.Statuses(domain.NewLedger())
	var laneErr *domain.UnresolvableLaneError
	require.ErrorAs(t, err, &laneErr)
}

func TestEmptyGateRuleNeverPromotes(t *testing.T) {
	doc := resolverDoc()
	doc.GateDefinitions["EMPTY"] = domain.GateRule{}
	res := NewResolver(doc)

	after := res.ApplyTurn(domain.NewLedger(), &domain.Turn{ID: "t1"})
	assert.False(t, after.HasGate("EMPTY"))
}
