package memory

import (
	"context"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderServesDocument(t *testing.T) {
	doc := &flow.Document{
		ID:           "f1",
		EntryNodeIDs: []string{"welcome"},
		Nodes:        []domain.Moment{{ID: "welcome", Kind: domain.KindExplanation}},
	}
	loader := NewLoader(doc)

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "f1", got.ID)

	loader.Swap(&flow.Document{ID: "f2"})
	got, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "f2", got.ID)
}

func TestNewFromBytes(t *testing.T) {
	loader, err := NewFromBytes([]byte(`
id: yaml-flow
entryNodeIds: [welcome]
nodes:
  - id: welcome
    kind: explanation
`))
	require.NoError(t, err)

	doc, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "yaml-flow", doc.ID)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, domain.KindExplanation, doc.Nodes[0].Kind)

	_, err = NewFromBytes([]byte("   "))
	assert.Error(t, err)
}
