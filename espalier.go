package espalier

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/outline"
	"github.com/aretw0/espalier/internal/runtime"
	loamAdapter "github.com/aretw0/espalier/pkg/adapters/loam"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/decider"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/session"
	"github.com/google/uuid"
)

// Simulator is the high-level entry point for the Espalier library.
// It binds the playback engine to a flow source, a run store, and an
// outline engine, and serializes run mutations through a session
// manager so concurrent callers cannot interleave tree writes.
type Simulator struct {
	engine   *runtime.Engine
	sessions *session.Manager
	loader   ports.FlowLoader
	decide   ports.DecisionProvider
	store    ports.RunStore
	locker   ports.DistributedLocker
	outliner *outline.Engine
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	Name     string

	viewMu sync.Mutex
	views  map[string]outline.CollapseSet
}

// Option defines a functional option for configuring the Simulator.
type Option func(*Simulator)

// WithLoader injects a custom FlowLoader, bypassing the default Loam
// initialization.
func WithLoader(l ports.FlowLoader) Option {
	return func(s *Simulator) { s.loader = l }
}

// WithDecisionProvider sets the provider consulted for each turn.
// Defaults to the scripted provider, which advances cooperatively.
func WithDecisionProvider(p ports.DecisionProvider) Option {
	return func(s *Simulator) { s.decide = p }
}

// WithStore sets the run persistence backend. Defaults to an in-memory
// store.
func WithStore(store ports.RunStore) Option {
	return func(s *Simulator) { s.store = store }
}

// WithDistributedLocker guards run mutations across processes sharing a
// store (typically Redis).
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(s *Simulator) { s.locker = l }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Simulator) { s.hooks = hooks }
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// WithOutlineConfig tunes the progressive-disclosure thresholds.
func WithOutlineConfig(cfg outline.Config) Option {
	return func(s *Simulator) { s.outliner = outline.New(cfg) }
}

// New initializes a Simulator over the flow at repoPath.
// By default it reads the flow from a Loam repository at the given
// path; if WithLoader is provided, repoPath can be empty and Loam is
// skipped.
func New(repoPath string, opts ...Option) (*Simulator, error) {
	sim := &Simulator{views: map[string]outline.CollapseSet{}}

	for _, opt := range opts {
		opt(sim)
	}

	if sim.loader == nil {
		if repoPath == "" {
			return nil, fmt.Errorf("repoPath is required when no custom loader is provided")
		}
		loader, err := loamAdapter.NewFromPath(repoPath)
		if err != nil {
			return nil, err
		}
		sim.loader = loader
	}
	if repoPath != "" {
		abs, err := filepath.Abs(repoPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		sim.Name = filepath.Base(abs)
	}

	if sim.logger == nil {
		sim.logger = logging.NewNop()
	}
	if sim.Name != "" {
		sim.logger = sim.logger.With("flow", sim.Name)
	}
	if sim.decide == nil {
		sim.decide = decider.NewScripted()
	}
	if sim.store == nil {
		sim.store = memory.NewStore()
	}
	if sim.outliner == nil {
		sim.outliner = outline.New(outline.DefaultConfig())
	}

	sim.engine = runtime.NewEngine(sim.loader, sim.decide,
		runtime.WithLogger(sim.logger),
		runtime.WithLifecycleHooks(sim.hooks),
	)
	sessionOpts := []session.Option{session.WithLogger(sim.logger)}
	if sim.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(sim.locker))
	}
	sim.sessions = session.NewManager(sim.store, sessionOpts...)

	return sim, nil
}

// StartRun creates a run at an entry moment and persists it. An empty
// runID generates one.
func (s *Simulator) StartRun(ctx context.Context, runID, momentID, userMessage string) (*domain.Run, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	run, err := s.engine.StartRun(ctx, runID, momentID, userMessage)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, runID, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Continue appends a turn at a branch tip and persists the run. The
// load-append-save cycle runs under the run's session lock.
func (s *Simulator) Continue(ctx context.Context, runID, parentTurnID, momentID, userMessage string) (*domain.Turn, error) {
	var turn *domain.Turn
	_, err := s.sessions.Update(ctx, runID, func(ctx context.Context, run *domain.Run) error {
		var err error
		turn, err = s.engine.Continue(ctx, run, parentTurnID, momentID, userMessage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// Fork creates a new branch from any existing turn and executes its
// first turn.
func (s *Simulator) Fork(ctx context.Context, runID, fromTurnID, label, momentID, userMessage string) (*domain.Branch, *domain.Turn, error) {
	var (
		branch *domain.Branch
		turn   *domain.Turn
	)
	_, err := s.sessions.Update(ctx, runID, func(ctx context.Context, run *domain.Run) error {
		var err error
		branch, turn, err = s.engine.ForkAndContinue(ctx, run, fromTurnID, label, momentID, userMessage)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return branch, turn, nil
}

// Select moves the run's selection cursor to turnID and persists it.
func (s *Simulator) Select(ctx context.Context, runID, turnID string) (*domain.Run, error) {
	return s.sessions.Update(ctx, runID, func(ctx context.Context, run *domain.Run) error {
		return run.Select(turnID)
	})
}

// Run loads a persisted run.
func (s *Simulator) Run(ctx context.Context, runID string) (*domain.Run, error) {
	return s.sessions.Load(ctx, runID)
}

// Runs lists the IDs of persisted runs.
func (s *Simulator) Runs(ctx context.Context) ([]string, error) {
	return s.sessions.List(ctx)
}

// DeleteRun removes a run and its outline view state.
func (s *Simulator) DeleteRun(ctx context.Context, runID string) error {
	if err := s.sessions.Delete(ctx, runID); err != nil {
		return err
	}
	s.viewMu.Lock()
	delete(s.views, runID)
	s.viewMu.Unlock()
	return nil
}

// LedgerAt replays the path through turnID and returns the knowledge
// known as of that point.
func (s *Simulator) LedgerAt(ctx context.Context, runID, turnID string) (domain.Ledger, error) {
	run, err := s.sessions.Load(ctx, runID)
	if err != nil {
		return domain.Ledger{}, err
	}
	return s.engine.LedgerAt(ctx, run, turnID)
}

// ActiveLens returns the goal lens in effect at turnID, or nil.
func (s *Simulator) ActiveLens(ctx context.Context, runID, turnID string) (*domain.GoalLens, error) {
	run, err := s.sessions.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.engine.ActiveLens(ctx, run, turnID)
}

// Eligible resolves every authored moment against the ledger as of
// turnID.
func (s *Simulator) Eligible(ctx context.Context, runID, turnID string) ([]runtime.MomentStatus, error) {
	run, err := s.sessions.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.engine.Eligible(ctx, run, turnID)
}

// Statuses resolves every authored moment against an empty ledger,
// which yields the static lane layout for visualization.
func (s *Simulator) Statuses(ctx context.Context) ([]runtime.MomentStatus, error) {
	res, err := s.engine.Resolver(ctx)
	if err != nil {
		return nil, err
	}
	return res.Statuses(domain.NewLedger())
}

// Outline projects the run tree through the run's current collapse
// state. The first call seeds the default collapse for the run; later
// calls reuse whatever Toggle/Expand/Collapse left behind. The
// selection path is always revealed.
func (s *Simulator) Outline(ctx context.Context, runID string) (*outline.Outline, error) {
	run, err := s.sessions.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.viewMu.Lock()
	set, ok := s.views[runID]
	if !ok {
		set = s.outliner.DefaultCollapse(run)
		s.views[runID] = set
	}
	s.viewMu.Unlock()
	return s.outliner.Build(run, set), nil
}

// ToggleOutline flips one fold or divergence key and returns the
// re-projected outline.
func (s *Simulator) ToggleOutline(ctx context.Context, runID string, key outline.Key) (*outline.Outline, error) {
	run, err := s.sessions.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.viewMu.Lock()
	set, ok := s.views[runID]
	if !ok {
		set = s.outliner.DefaultCollapse(run)
	}
	set = set.Toggle(key)
	s.views[runID] = set
	s.viewMu.Unlock()
	return s.outliner.Build(run, set), nil
}

// ExpandOutline opens every fold and divergence for the run.
func (s *Simulator) ExpandOutline(ctx context.Context, runID string) (*outline.Outline, error) {
	return s.setView(ctx, runID, func(run *domain.Run) outline.CollapseSet {
		return outline.ExpandAll()
	})
}

// CollapseOutline closes every fold and divergence, then re-reveals
// the selection path.
func (s *Simulator) CollapseOutline(ctx context.Context, runID string) (*outline.Outline, error) {
	return s.setView(ctx, runID, s.outliner.CollapseAll)
}

func (s *Simulator) setView(ctx context.Context, runID string, derive func(*domain.Run) outline.CollapseSet) (*outline.Outline, error) {
	run, err := s.sessions.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	set := derive(run)
	s.viewMu.Lock()
	s.views[runID] = set
	s.viewMu.Unlock()
	return s.outliner.Build(run, set), nil
}

// Flow returns the loaded authored document.
func (s *Simulator) Flow(ctx context.Context) (*flow.Document, error) {
	return s.engine.Flow(ctx)
}

// Inspect returns every authored moment, for visualization tooling.
func (s *Simulator) Inspect(ctx context.Context) ([]domain.Moment, error) {
	return s.engine.Inspect(ctx)
}

// Reload drops the cached flow so the next operation re-reads the
// loader.
func (s *Simulator) Reload(ctx context.Context) error {
	return s.engine.Reload(ctx)
}

// Watch returns a channel that signals when the underlying flow source
// changes. Returns an error if the loader does not support watching.
func (s *Simulator) Watch(ctx context.Context) (<-chan struct{}, error) {
	if w, ok := s.loader.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current loader does not support watching")
}

// Loader returns the underlying FlowLoader.
func (s *Simulator) Loader() ports.FlowLoader {
	return s.loader
}
