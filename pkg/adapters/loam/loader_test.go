package loam

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	tmpDir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0644))
	}
	repo, err := loam.Init(tmpDir, loam.WithVersioning(false))
	require.NoError(t, err)
	return New(loam.NewTypedRepository[FrontMatter](repo))
}

func TestLoader_AssemblesFlowFromDirectory(t *testing.T) {
	loader := setupRepo(t, map[string]string{
		"flow.md": `---
id: coaching-intake
entryNodeIds: [welcome]
primaryGoal: BOOKING
gateDefinitions:
  CONTACT:
    statesAll: [contact_made]
factAliases:
  weight: baseline.weight_kg
lenses:
  - id: weight-loss
    baselineMetrics: [weight, "baseline.activity?"]
    deadlinePrecision: RANGE_OK
    narrowing: FOLLOW_UP
---
Intake flow for new coaching clients.`,
		"welcome.md": `---
kind: explanation
---
Welcome! Let's get you set up.`,
		"capture-baseline.md": `---
kind: baseline_capture
requires:
  facts: [goal.kind]
config:
  metrics: baseline
---
A few questions about where you are today.`,
		"make-contact.md": `---
kind: reflective_question
satisfies:
  gates: [CONTACT]
---
How should we reach you?`,
	})

	doc, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "coaching-intake", doc.ID)
	assert.Equal(t, []string{"welcome"}, doc.EntryNodeIDs)
	assert.Equal(t, "BOOKING", doc.PrimaryGoal)
	require.Len(t, doc.Nodes, 3)

	// Moments sorted by ID, prompts from the body.
	assert.Equal(t, "capture-baseline", doc.Nodes[0].ID)
	assert.Equal(t, "make-contact", doc.Nodes[1].ID)
	assert.Equal(t, "welcome", doc.Nodes[2].ID)
	assert.Equal(t, "Welcome! Let's get you set up.", doc.Nodes[2].Prompt)
	assert.Equal(t, domain.KindBaselineCapture, doc.Nodes[0].Kind)
	assert.Equal(t, "baseline", doc.Nodes[0].Config["metrics"])

	// Gate rule and alias resolution: the lens metric "weight" is
	// canonicalized, the optional suffix survives.
	rule := doc.GateDefinitions[domain.GateContact]
	assert.Equal(t, []domain.StateID{"contact_made"}, rule.StatesAll)
	require.Len(t, doc.Lenses, 1)
	assert.Equal(t, []domain.FactID{"baseline.weight_kg", "baseline.activity?"},
		doc.Lenses[0].BaselineMetrics)
	assert.Equal(t, domain.PrecisionRangeOK, doc.Lenses[0].DeadlinePrecision)
}

func TestLoader_MissingManifest(t *testing.T) {
	loader := setupRepo(t, map[string]string{
		"welcome.md": `---
kind: explanation
---
Hello`,
	})

	_, err := loader.Load(context.Background())
	assert.ErrorContains(t, err, "no flow manifest")
}

func TestLoader_DuplicateManifest(t *testing.T) {
	loader := setupRepo(t, map[string]string{
		"flow.md": `---
entryNodeIds: [a]
---
`,
		"flow2.md": `---
entryNodeIds: [b]
---
`,
	})

	_, err := loader.Load(context.Background())
	assert.ErrorContains(t, err, "multiple flow manifests")
}

func TestLoader_MomentIDCollision(t *testing.T) {
	loader := setupRepo(t, map[string]string{
		"flow.md": `---
entryNodeIds: [welcome]
---
`,
		"welcome.md": `---
kind: explanation
---
A`,
		"other.md": `---
id: welcome
kind: explanation
---
B`,
	})

	_, err := loader.Load(context.Background())
	assert.ErrorContains(t, err, "collision detected")
}

func TestLoader_IDFallsBackToFilename(t *testing.T) {
	loader := setupRepo(t, map[string]string{
		"flow.md": `---
entryNodeIds: [implicit]
---
`,
		"implicit.md": `---
kind: explanation
---
ID is implied from filename`,
	})

	doc, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "implicit", doc.Nodes[0].ID)
}
