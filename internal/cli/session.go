package cli

import (
	"context"
	"os"

	"github.com/aretw0/espalier/internal/presentation/tui"
	"golang.org/x/term"
)

// RunSession executes a single console session against the flow at
// opts.RepoPath. Interactive mode (a real terminal, not headless or
// JSON) gets the banner and markdown rendering; otherwise the console
// runs plain for scripting.
func RunSession(opts RunOptions) error {
	logger := createLogger(opts.Debug)

	interactive := !opts.Headless && !opts.JSON && term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		tui.PrintBanner()
	}

	sim, err := NewSimulator(opts, logger)
	if err != nil {
		return err
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	console := &Console{
		Sim:  sim,
		In:   os.Stdin,
		Out:  os.Stdout,
		JSON: opts.JSON,
	}
	if opts.RunID != "" {
		console.runID = opts.RunID
	}
	if interactive {
		console.Renderer = tui.NewRenderer()
	}

	return handleExecutionError(console.Loop(sigCtx))
}
