package domain

// Requirements is the conjunctive set of gates and facts that must
// already hold before a moment is eligible. An empty Requirements is
// vacuously satisfied.
type Requirements struct {
	Gates []GateID `json:"gates,omitempty" yaml:"gates,omitempty"`
	Facts []FactID `json:"facts,omitempty" yaml:"facts,omitempty"`
}

// Empty reports whether the requirements carry no conditions at all.
func (r Requirements) Empty() bool {
	return len(r.Gates) == 0 && len(r.Facts) == 0
}

// Effects is what a moment (or an executed turn) establishes: gates
// satisfied outright, facts that become known, states that are entered.
type Effects struct {
	Gates  []GateID  `json:"gates,omitempty" yaml:"gates,omitempty"`
	Facts  []FactID  `json:"facts,omitempty" yaml:"facts,omitempty"`
	States []StateID `json:"states,omitempty" yaml:"states,omitempty"`
}

// Empty reports whether the effects establish nothing.
func (e Effects) Empty() bool {
	return len(e.Gates) == 0 && len(e.Facts) == 0 && len(e.States) == 0
}

// Moment is one authored node of the flow graph. Moments are owned by the
// flow document and are immutable during simulation.
type Moment struct {
	ID   string     `json:"id" yaml:"id"`
	Kind MomentKind `json:"kind" yaml:"kind"`

	// Prompt is the authored content shown when the moment executes.
	// The simulator treats it as opaque markdown; phrasing is out of scope.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	Requires  Requirements `json:"requires,omitempty" yaml:"requires,omitempty"`
	Satisfies Effects      `json:"satisfies,omitempty" yaml:"satisfies,omitempty"`

	// LensID references a goal lens. On a goal_definition moment it names
	// the lens the turn selects for the rest of the run; capture moments
	// leave it empty and use the run's active lens.
	LensID string `json:"lens_id,omitempty" yaml:"lens_id,omitempty"`

	// Config holds kind-specific configuration, decoded lazily by the
	// runtime (mapstructure) so the authored document stays schemaless here.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// GateRule is the satisfaction rule of a named gate: all listed metrics,
// any of the listed metrics, and all listed states. Empty groups are
// ignored; at least one group must be present for the rule to be useful.
type GateRule struct {
	MetricsAll []FactID  `json:"metricsAll,omitempty" yaml:"metricsAll,omitempty"`
	MetricsAny []FactID  `json:"metricsAny,omitempty" yaml:"metricsAny,omitempty"`
	StatesAll  []StateID `json:"statesAll,omitempty" yaml:"statesAll,omitempty"`
}

// Empty reports whether the rule has no conditions.
func (r GateRule) Empty() bool {
	return len(r.MetricsAll) == 0 && len(r.MetricsAny) == 0 && len(r.StatesAll) == 0
}

// GoalLens selects which baseline/target facts matter for a user goal,
// plus the deadline policy. Selected once per run by a goal_definition
// turn; read-only input to the resolver afterwards.
type GoalLens struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Metric lists may suffix an entry with '?' to mark it optional:
	// optional facts can be skipped without blocking eligibility.
	BaselineMetrics []FactID `json:"baselineMetrics,omitempty" yaml:"baselineMetrics,omitempty"`
	TargetMetrics   []FactID `json:"targetMetrics,omitempty" yaml:"targetMetrics,omitempty"`

	DeadlinePrecision DeadlinePrecision `json:"deadlinePrecision,omitempty" yaml:"deadlinePrecision,omitempty"`
	Narrowing         Narrowing         `json:"narrowing,omitempty" yaml:"narrowing,omitempty"`
}
