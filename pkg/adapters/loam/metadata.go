package loam

// FrontMatter is the decoded header of an espalier flow document. One
// repository holds many moment documents (frontmatter plus a markdown
// prompt body) and exactly one manifest document carrying the
// graph-level declarations. The manifest is recognized by its
// entryNodeIds; everything else is a moment.
type FrontMatter struct {
	ID     string         `json:"id" mapstructure:"id"`
	Kind   string         `json:"kind" mapstructure:"kind"`
	LensID string         `json:"lens_id" mapstructure:"lens_id"`
	Config map[string]any `json:"config" mapstructure:"config"`

	Requires  RequirementsMeta `json:"requires" mapstructure:"requires"`
	Satisfies EffectsMeta      `json:"satisfies" mapstructure:"satisfies"`

	// Manifest fields.
	EntryNodeIDs    []string                `json:"entryNodeIds" mapstructure:"entryNodeIds"`
	PrimaryGoal     string                  `json:"primaryGoal" mapstructure:"primaryGoal"`
	GateDefinitions map[string]GateRuleMeta `json:"gateDefinitions" mapstructure:"gateDefinitions"`
	FactAliases     map[string]string       `json:"factAliases" mapstructure:"factAliases"`
	Lenses          []LensMeta              `json:"lenses" mapstructure:"lenses"`
}

// RequirementsMeta mirrors domain.Requirements with authoring-friendly keys.
type RequirementsMeta struct {
	Gates []string `json:"gates" mapstructure:"gates"`
	Facts []string `json:"facts" mapstructure:"facts"`
}

// EffectsMeta mirrors domain.Effects.
type EffectsMeta struct {
	Gates  []string `json:"gates" mapstructure:"gates"`
	Facts  []string `json:"facts" mapstructure:"facts"`
	States []string `json:"states" mapstructure:"states"`
}

// GateRuleMeta mirrors domain.GateRule.
type GateRuleMeta struct {
	MetricsAll []string `json:"metricsAll" mapstructure:"metricsAll"`
	MetricsAny []string `json:"metricsAny" mapstructure:"metricsAny"`
	StatesAll  []string `json:"statesAll" mapstructure:"statesAll"`
}

// LensMeta mirrors domain.GoalLens.
type LensMeta struct {
	ID                string   `json:"id" mapstructure:"id"`
	Name              string   `json:"name" mapstructure:"name"`
	BaselineMetrics   []string `json:"baselineMetrics" mapstructure:"baselineMetrics"`
	TargetMetrics     []string `json:"targetMetrics" mapstructure:"targetMetrics"`
	DeadlinePrecision string   `json:"deadlinePrecision" mapstructure:"deadlinePrecision"`
	Narrowing         string   `json:"narrowing" mapstructure:"narrowing"`
}

func (f FrontMatter) isManifest() bool {
	return len(f.EntryNodeIDs) > 0
}
