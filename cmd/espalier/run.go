package main

import (
	"fmt"
	"os"

	"github.com/aretw0/espalier/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive simulation session",
	Long:  `Starts the simulator console against the flow in the current directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		repoPath, _ := cmd.Flags().GetString("dir")
		if !cmd.Flags().Changed("dir") && len(args) > 0 {
			repoPath = args[0]
		}
		headless, _ := cmd.Flags().GetBool("headless")
		watchMode, _ := cmd.Flags().GetBool("watch")
		jsonMode, _ := cmd.Flags().GetBool("json")
		debug, _ := cmd.Flags().GetBool("debug")
		runID, _ := cmd.Flags().GetString("run-id")

		if watchMode && headless {
			fmt.Println("Error: --watch and --headless cannot be used together.")
			os.Exit(1)
		}

		opts := cli.RunOptions{
			RepoPath: repoPath,
			RunID:    runID,
			Headless: headless,
			JSON:     jsonMode,
			Debug:    debug,
		}

		var err error
		if watchMode {
			err = cli.RunWatch(opts)
		} else {
			err = cli.RunSession(opts)
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, strict IO)")
	runCmd.Flags().Bool("json", false, "Emit NDJSON turns instead of rendered text")
	runCmd.Flags().BoolP("watch", "w", false, "Run in development mode with hot-reload")
	runCmd.Flags().Bool("debug", false, "Enable verbose structured logging")
	runCmd.Flags().String("run-id", "", "Name the run instead of generating an ID")

	// Make 'run' the default when no subcommand is provided.
	rootCmd.Run = runCmd.Run
}
