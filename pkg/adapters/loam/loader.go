// Package loam adapts a Loam document repository to the espalier
// FlowLoader interface: a directory of markdown moment files, each with
// frontmatter declarations and a prompt body, plus one manifest document
// declaring entries, gates, aliases and lenses.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/loam"
)

// Loader implements ports.FlowLoader over a Loam repository.
type Loader struct {
	Repo *loam.TypedRepository[FrontMatter]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[FrontMatter]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// NewFromPath opens the repository at path read-only and wraps it.
func NewFromPath(path string) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve flow path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init loam repository: %w", err)
	}
	return New(loam.NewTypedRepository[FrontMatter](repo)), nil
}

// Load assembles the flow document from the repository: every moment
// file plus the single manifest. Moments are ordered by ID so repeated
// loads are deterministic regardless of directory enumeration order.
func (l *Loader) Load(ctx context.Context) (*flow.Document, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	out := &flow.Document{}
	manifestID := ""
	seen := make(map[string]string)

	for _, doc := range docs {
		meta := doc.Data
		if meta.isManifest() {
			if manifestID != "" {
				return nil, fmt.Errorf("multiple flow manifests: %q and %q", manifestID, doc.ID)
			}
			manifestID = doc.ID
			applyManifest(out, trimExtension(doc.ID), meta)
			continue
		}

		id := meta.ID
		if id == "" {
			id = doc.ID
		}
		id = trimExtension(id)

		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: moment %q is defined in both %q and %q", id, existing, doc.ID)
		}
		seen[id] = doc.ID

		out.Nodes = append(out.Nodes, domain.Moment{
			ID:     id,
			Kind:   domain.MomentKind(meta.Kind),
			Prompt: strings.TrimSpace(doc.Content),
			Requires: domain.Requirements{
				Gates: gateIDs(meta.Requires.Gates),
				Facts: factIDs(meta.Requires.Facts),
			},
			Satisfies: domain.Effects{
				Gates:  gateIDs(meta.Satisfies.Gates),
				Facts:  factIDs(meta.Satisfies.Facts),
				States: stateIDs(meta.Satisfies.States),
			},
			LensID: meta.LensID,
			Config: meta.Config,
		})
	}

	if manifestID == "" {
		return nil, fmt.Errorf("no flow manifest found (a document with entryNodeIds)")
	}

	sort.Slice(out.Nodes, func(i, j int) bool {
		return out.Nodes[i].ID < out.Nodes[j].ID
	})

	out.Canonicalize()
	return out, nil
}

// Watch implements ports.Watchable: any document change signals a reload.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce: a pending signal already forces a reload.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}

func applyManifest(out *flow.Document, id string, meta FrontMatter) {
	flowID := meta.ID
	if flowID == "" {
		flowID = id
	}
	out.ID = trimExtension(flowID)
	out.EntryNodeIDs = meta.EntryNodeIDs
	out.PrimaryGoal = meta.PrimaryGoal

	if len(meta.GateDefinitions) > 0 {
		out.GateDefinitions = make(map[domain.GateID]domain.GateRule, len(meta.GateDefinitions))
		for gate, rule := range meta.GateDefinitions {
			out.GateDefinitions[domain.GateID(gate)] = domain.GateRule{
				MetricsAll: factIDs(rule.MetricsAll),
				MetricsAny: factIDs(rule.MetricsAny),
				StatesAll:  stateIDs(rule.StatesAll),
			}
		}
	}
	if len(meta.FactAliases) > 0 {
		out.FactAliases = make(map[string]domain.FactID, len(meta.FactAliases))
		for alias, canonical := range meta.FactAliases {
			out.FactAliases[alias] = domain.FactID(canonical)
		}
	}
	for _, lens := range meta.Lenses {
		out.Lenses = append(out.Lenses, domain.GoalLens{
			ID:                lens.ID,
			Name:              lens.Name,
			BaselineMetrics:   factIDs(lens.BaselineMetrics),
			TargetMetrics:     factIDs(lens.TargetMetrics),
			DeadlinePrecision: domain.DeadlinePrecision(lens.DeadlinePrecision),
			Narrowing:         domain.Narrowing(lens.Narrowing),
		})
	}
}

func gateIDs(in []string) []domain.GateID {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.GateID, len(in))
	for i, s := range in {
		out[i] = domain.GateID(s)
	}
	return out
}

func factIDs(in []string) []domain.FactID {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.FactID, len(in))
	for i, s := range in {
		out[i] = domain.FactID(s)
	}
	return out
}

func stateIDs(in []string) []domain.StateID {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.StateID, len(in))
	for i, s := range in {
		out[i] = domain.StateID(s)
	}
	return out
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
