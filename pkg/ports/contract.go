package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract verifies that a RunStore implementation adheres to the
// interface contract. Adapter tests call it with their concrete store.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	buildRun := func(id string) *domain.Run {
		run := domain.NewRun(id)
		_, _, err := run.Start("main", "Main", domain.TurnSeed{
			ID: id + "-t1", MomentID: "welcome", Kind: domain.KindExplanation,
			Satisfied: domain.Effects{Facts: []domain.FactID{"goal.kind"}},
		})
		require.NoError(t, err)
		_, err = run.Append(id+"-t1", domain.TurnSeed{
			ID: id + "-t2", MomentID: "reach-out", Kind: domain.KindReflectiveQuestion,
		})
		require.NoError(t, err)
		return run
	}

	t.Run("Save and Load", func(t *testing.T) {
		run := buildRun(runID)
		require.NoError(t, store.Save(ctx, runID, run))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, loaded.ID)
		assert.Len(t, loaded.Turns, 2)
		assert.Equal(t, runID+"-t2", loaded.Branches["main"].TipTurnID)
		assert.Equal(t, run.Turns[runID+"-t1"].Satisfied.Facts,
			loaded.Turns[runID+"-t1"].Satisfied.Facts)
	})

	t.Run("Load isolates the stored run", func(t *testing.T) {
		run := buildRun(runID + "-iso")
		require.NoError(t, store.Save(ctx, runID+"-iso", run))

		loaded, err := store.Load(ctx, runID+"-iso")
		require.NoError(t, err)
		_, err = loaded.Append(runID+"-iso-t2", domain.TurnSeed{
			ID: "rogue", MomentID: "x", Kind: domain.KindExplanation,
		})
		require.NoError(t, err)

		again, err := store.Load(ctx, runID+"-iso")
		require.NoError(t, err)
		assert.Len(t, again.Turns, 2, "mutating a loaded run must not leak into the store")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runID, buildRun(runID)))
		require.NoError(t, store.Delete(ctx, runID))

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		require.NoError(t, store.Save(ctx, id1, buildRun(id1)))
		require.NoError(t, store.Save(ctx, id2, buildRun(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
