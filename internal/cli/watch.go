package cli

import (
	"context"
	"os"
	"time"

	"github.com/aretw0/espalier/internal/presentation/tui"
)

// RunWatch executes the console in development mode, reloading the
// flow when the backing directory changes. The run survives reloads;
// only the cached document is dropped.
func RunWatch(opts RunOptions) error {
	logger := createLogger(opts.Debug)
	tui.PrintBanner()

	sim, err := NewSimulator(opts, logger)
	if err != nil {
		return err
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	logger.Info("Starting Watcher", "path", opts.RepoPath)
	printSystemMessage("Watching '%s' for changes.", opts.RepoPath)

	watchCh, err := sim.Watch(sigCtx)
	if err != nil {
		logger.Warn("Loader does not support watching, running without hot-reload", "err", err)
	} else {
		go func() {
			for {
				select {
				case <-sigCtx.Done():
					return
				case _, ok := <-watchCh:
					if !ok {
						return
					}
					// Let the file system settle before re-reading.
					time.Sleep(100 * time.Millisecond)
					if err := sim.Reload(sigCtx); err != nil {
						logger.Error("Reload failed", "err", err)
						printSystemMessage("Reload failed: %v", err)
						continue
					}
					printSystemMessage("Flow reloaded.")
				}
			}
		}()
	}

	console := &Console{
		Sim:      sim,
		In:       os.Stdin,
		Out:      os.Stdout,
		Renderer: tui.NewRenderer(),
	}
	if opts.RunID != "" {
		console.runID = opts.RunID
	}

	return handleExecutionError(console.Loop(sigCtx))
}
