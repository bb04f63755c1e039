package cli

// RunOptions carries the command-line settings shared by the
// interactive and watch entry points.
type RunOptions struct {
	// RepoPath is the flow directory.
	RepoPath string
	// RunID resumes or names the run. Empty generates one.
	RunID string
	// Headless disables prompts and banners for scripted use.
	Headless bool
	// JSON switches output to NDJSON events instead of rendered text.
	JSON bool
	// Debug enables verbose structured logging to stderr.
	Debug bool
}
