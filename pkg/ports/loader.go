package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/flow"
)

// FlowLoader retrieves the authored flow document. The document is
// static during a simulation; loaders may cache, but Load must always
// reflect the backing source (dev-mode reloads rely on this).
type FlowLoader interface {
	Load(ctx context.Context) (*flow.Document, error)
}

// Watchable is implemented by loaders that can notify about backend
// changes, typically for hot-reload in dev mode. The channel signals
// only that a reload is required, not what changed.
type Watchable interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
