package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/google/uuid"
)

// Engine is the playback driver: it walks the active branch, replays the
// ledger, asks the decision provider for each prospective turn, and
// appends into the run's branching tree. The engine holds no per-run
// state — runs are passed in and mutated through their own methods, so
// every operation is atomic from the caller's perspective: the turn is
// built fully off to the side and only linked once the decision is known
// good.
type Engine struct {
	loader  ports.FlowLoader
	decider ports.DecisionProvider
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time

	mu       sync.Mutex
	doc      *flow.Document
	resolver *Resolver
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) { e.hooks = hooks }
}

// WithIDGenerator overrides turn/branch ID generation (tests).
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a playback driver over the given flow source and
// decision provider. The flow document is loaded lazily and cached until
// Reload.
func NewEngine(loader ports.FlowLoader, decider ports.DecisionProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:  loader,
		decider: decider,
		logger:  logging.NewNop(),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Flow returns the cached authored document, loading it on first use.
func (e *Engine) Flow(ctx context.Context) (*flow.Document, error) {
	doc, _, err := e.ensure(ctx)
	return doc, err
}

// Resolver returns the eligibility resolver bound to the loaded flow.
func (e *Engine) Resolver(ctx context.Context) (*Resolver, error) {
	_, res, err := e.ensure(ctx)
	return res, err
}

// Reload drops the cached document so the next operation re-reads the
// loader. Used by dev-mode watchers.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	e.doc = nil
	e.resolver = nil
	e.mu.Unlock()
	_, _, err := e.ensure(ctx)
	return err
}

// Inspect returns every authored moment, for visualization tooling.
func (e *Engine) Inspect(ctx context.Context) ([]domain.Moment, error) {
	doc, _, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Moment, len(doc.Nodes))
	copy(out, doc.Nodes)
	return out, nil
}

// StartRun creates a run and executes its first turn at an entry moment.
func (e *Engine) StartRun(ctx context.Context, runID, momentID, userMessage string) (*domain.Run, error) {
	doc, res, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	if !isEntry(doc, momentID) {
		return nil, fmt.Errorf("moment %q is not an entry node", momentID)
	}
	m := doc.Moment(momentID)
	if m == nil {
		return nil, fmt.Errorf("unknown moment %q", momentID)
	}

	ledger := domain.NewLedger()
	if gates, facts := res.Missing(m, ledger); len(gates)+len(facts) > 0 {
		return nil, &domain.IneligibleMomentError{MomentID: m.ID, MissingGates: gates, MissingFacts: facts}
	}

	seed, err := e.buildSeed(ctx, res, runID, m, nil, ledger, userMessage, false)
	if err != nil {
		return nil, err
	}

	run := domain.NewRun(runID)
	run.FlowID = doc.ID
	branch, turn, err := run.Start(e.newID(), "Main", seed)
	if err != nil {
		return nil, err
	}
	if m.Kind == domain.KindGoalDefinition {
		run.ActiveLensID = m.LensID
	}
	e.emitTurn(ctx, run, branch, turn, false)
	return run, nil
}

// Continue appends a turn at a branch tip. Fails with NotALeafError when
// the selected turn already has children — the caller must fork instead.
// Fails with IneligibleMomentError when the moment's requirements are
// unmet as of the parent turn; that is the recoverable path the UI uses
// to decide what to prompt for next.
func (e *Engine) Continue(ctx context.Context, run *domain.Run, parentTurnID, momentID, userMessage string) (*domain.Turn, error) {
	_, res, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	leaf, err := run.IsLeaf(parentTurnID)
	if err != nil {
		return nil, err
	}
	if !leaf {
		return nil, &domain.NotALeafError{TurnID: parentTurnID}
	}

	seed, m, err := e.prepare(ctx, res, run, parentTurnID, momentID, userMessage, false)
	if err != nil {
		return nil, err
	}
	turn, err := run.Append(parentTurnID, seed)
	if err != nil {
		return nil, err
	}
	if m.Kind == domain.KindGoalDefinition {
		run.ActiveLensID = m.LensID
	}
	branch, _ := run.Branch(turn.BranchID)
	e.emitTurn(ctx, run, branch, turn, false)
	return turn, nil
}

// ForkAndContinue creates a new branch rooted at fromTurnID (leaf or
// not) and executes its first turn. Branch and turn appear atomically:
// a provider failure leaves the run untouched.
func (e *Engine) ForkAndContinue(ctx context.Context, run *domain.Run, fromTurnID, label, momentID, userMessage string) (*domain.Branch, *domain.Turn, error) {
	_, res, err := e.ensure(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := run.Turn(fromTurnID); err != nil {
		return nil, nil, err
	}

	seed, m, err := e.prepare(ctx, res, run, fromTurnID, momentID, userMessage, true)
	if err != nil {
		return nil, nil, err
	}
	branch, turn, err := run.Fork(fromTurnID, e.newID(), label, seed)
	if err != nil {
		return nil, nil, err
	}
	if m.Kind == domain.KindGoalDefinition {
		run.ActiveLensID = m.LensID
	}
	if e.hooks.OnBranchForked != nil {
		e.hooks.OnBranchForked(ctx, &domain.ForkEvent{
			EventBase:    e.base(domain.EventBranchForked, run.ID),
			BranchID:     branch.ID,
			Label:        branch.Label,
			ForkedFromID: fromTurnID,
		})
	}
	e.emitTurn(ctx, run, branch, turn, true)
	return branch, turn, nil
}

// LedgerAt replays the path from the run root through turnID and returns
// the knowledge known "as of" that point. Nothing is cached on turns:
// two branches sharing a prefix always replay to the same ledger.
func (e *Engine) LedgerAt(ctx context.Context, run *domain.Run, turnID string) (domain.Ledger, error) {
	_, res, err := e.ensure(ctx)
	if err != nil {
		return domain.Ledger{}, err
	}
	path, err := run.PathToRoot(turnID)
	if err != nil {
		return domain.Ledger{}, err
	}
	return res.Replay(path), nil
}

// ActiveLens returns the goal lens selected by the last goal_definition
// turn on the path through turnID, or nil when none has run yet.
func (e *Engine) ActiveLens(ctx context.Context, run *domain.Run, turnID string) (*domain.GoalLens, error) {
	doc, _, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	path, err := run.PathToRoot(turnID)
	if err != nil {
		return nil, err
	}
	return lensOnPath(doc, path), nil
}

// Eligible resolves every authored moment against the ledger as of
// turnID.
func (e *Engine) Eligible(ctx context.Context, run *domain.Run, turnID string) ([]MomentStatus, error) {
	_, res, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := e.LedgerAt(ctx, run, turnID)
	if err != nil {
		return nil, err
	}
	return res.Statuses(ledger)
}

// prepare replays context for the parent turn, checks eligibility, and
// builds the fully-populated seed. No run mutation happens here.
func (e *Engine) prepare(ctx context.Context, res *Resolver, run *domain.Run, parentTurnID, momentID, userMessage string, forking bool) (domain.TurnSeed, *domain.Moment, error) {
	doc := res.doc
	m := doc.Moment(momentID)
	if m == nil {
		return domain.TurnSeed{}, nil, fmt.Errorf("unknown moment %q", momentID)
	}

	path, err := run.PathToRoot(parentTurnID)
	if err != nil {
		return domain.TurnSeed{}, nil, err
	}
	ledger := res.Replay(path)

	if gates, facts := res.Missing(m, ledger); len(gates)+len(facts) > 0 {
		return domain.TurnSeed{}, nil, &domain.IneligibleMomentError{
			MomentID: m.ID, MissingGates: gates, MissingFacts: facts,
		}
	}

	lens := lensOnPath(doc, path)
	seed, err := e.buildSeed(ctx, res, run.ID, m, lens, ledger, userMessage, forking)
	if err != nil {
		return domain.TurnSeed{}, nil, err
	}
	return seed, m, nil
}

// buildSeed asks the decision provider (or resolves deadline policy
// locally) and assembles the turn material off to the side.
func (e *Engine) buildSeed(ctx context.Context, res *Resolver, runID string, m *domain.Moment, lens *domain.GoalLens, ledger domain.Ledger, userMessage string, forking bool) (domain.TurnSeed, error) {
	satisfied := m.Satisfies

	// Deadline capture is policy-driven and resolved locally: a rejected
	// answer stalls deterministically without a provider round-trip.
	if m.Kind == domain.KindDeadlineCapture {
		verdict := res.AcceptDeadline(lens, ClassifyDeadline(userMessage))
		if !verdict.Accepted {
			return domain.TurnSeed{
				ID:          e.newID(),
				MomentID:    m.ID,
				Kind:        m.Kind,
				UserMessage: userMessage,
				Decision: domain.TurnDecision{
					Decision:  domain.DecisionStall,
					Reasoning: verdict.Reason,
				},
				CreatedAt: e.now(),
			}, nil
		}
		// Copy before extending: m.Satisfies belongs to the document.
		satisfied.Facts = append(append([]domain.FactID{}, m.Satisfies.Facts...), FactDeadline)
		if verdict.Deferred {
			satisfied.States = append(append([]domain.StateID{}, m.Satisfies.States...), StateDeadlineFollowUp)
		}
	}

	start := e.now()
	resp, err := e.decider.Decide(ctx, ports.DecisionRequest{
		RunID:       runID,
		Moment:      m,
		Lens:        lens,
		Ledger:      ledger,
		UserMessage: userMessage,
		Forking:     forking,
	})
	if err != nil {
		e.logger.Error("decision provider failed", "moment", m.ID, "err", err)
		return domain.TurnSeed{}, fmt.Errorf("decision for moment %s: %w", m.ID, err)
	}
	if e.hooks.OnDecision != nil {
		e.hooks.OnDecision(ctx, &domain.DecisionEvent{
			EventBase: e.base(domain.EventDecision, runID),
			MomentID:  m.ID,
			Decision:  resp.Decision.Decision,
			Duration:  e.now().Sub(start),
		})
	}

	return domain.TurnSeed{
		ID:           e.newID(),
		MomentID:     m.ID,
		Kind:         m.Kind,
		UserMessage:  userMessage,
		AgentMessage: resp.AgentMessage,
		Decision:     resp.Decision,
		Satisfied:    satisfied,
		CreatedAt:    e.now(),
	}, nil
}

func (e *Engine) emitTurn(ctx context.Context, run *domain.Run, branch *domain.Branch, turn *domain.Turn, forked bool) {
	e.logger.Debug("turn appended",
		"run", run.ID, "branch", branch.ID, "turn", turn.ID,
		"moment", turn.MomentID, "decision", turn.Decision.Decision, "forked", forked)
	if e.hooks.OnTurnAppended != nil {
		e.hooks.OnTurnAppended(ctx, &domain.TurnEvent{
			EventBase: e.base(domain.EventTurnAppended, run.ID),
			BranchID:  branch.ID,
			TurnID:    turn.ID,
			MomentID:  turn.MomentID,
			Kind:      turn.Kind,
			Decision:  turn.Decision.Decision,
			Forked:    forked,
		})
	}
}

func (e *Engine) base(typ domain.EventType, runID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: typ, RunID: runID}
}

func (e *Engine) ensure(ctx context.Context) (*flow.Document, *Resolver, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc != nil {
		return e.doc, e.resolver, nil
	}
	doc, err := e.loader.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load flow: %w", err)
	}
	e.doc = doc
	e.resolver = NewResolver(doc)
	return e.doc, e.resolver, nil
}

func isEntry(doc *flow.Document, momentID string) bool {
	for _, id := range doc.EntryNodeIDs {
		if id == momentID {
			return true
		}
	}
	return false
}

func lensOnPath(doc *flow.Document, path []*domain.Turn) *domain.GoalLens {
	var lens *domain.GoalLens
	for _, t := range path {
		if t.Kind != domain.KindGoalDefinition {
			continue
		}
		if m := doc.Moment(t.MomentID); m != nil && m.LensID != "" {
			lens = doc.Lens(m.LensID)
		}
	}
	return lens
}
