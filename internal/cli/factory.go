package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/espalier"
)

// NewSimulator initializes a simulator with standard CLI conventions.
func NewSimulator(opts RunOptions, logger *slog.Logger) (*espalier.Simulator, error) {
	simOpts := []espalier.Option{
		espalier.WithLogger(logger),
	}
	if opts.Debug {
		simOpts = append(simOpts, espalier.WithLifecycleHooks(createDebugHooks(logger)))
	}

	sim, err := espalier.New(opts.RepoPath, simOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing simulator: %w", err)
	}
	return sim, nil
}
