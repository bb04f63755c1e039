package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// RunStore persists simulation runs, enabling stop-and-resume sessions.
type RunStore interface {
	// Save persists the run under its ID.
	Save(ctx context.Context, runID string, run *domain.Run) error

	// Load retrieves a run. Returns domain.ErrRunNotFound when absent.
	Load(ctx context.Context, runID string) (*domain.Run, error)

	// Delete removes the run.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of stored runs.
	List(ctx context.Context) ([]string, error)
}
