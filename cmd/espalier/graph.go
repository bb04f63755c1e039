package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the flow graph visualization",
	Long: `Inspects the flow repository and outputs a Mermaid diagram (graph TD)
with one subgraph per eligibility lane and the gate wiring between
moments. With --run, the visited path and current moment are styled.`,
	Run: func(cmd *cobra.Command, args []string) {
		repoPath, _ := cmd.Flags().GetString("dir")
		if !cmd.Flags().Changed("dir") && len(args) > 0 {
			repoPath = args[0]
		}
		runID, _ := cmd.Flags().GetString("run")

		sim, err := espalier.New(repoPath)
		if err != nil {
			fmt.Printf("Error initializing espalier: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		statuses, err := sim.Statuses(ctx)
		if err != nil {
			fmt.Printf("Error resolving flow: %v\n", err)
			os.Exit(1)
		}

		var overlay *graph.Overlay
		if runID != "" {
			run, err := sim.Run(ctx, runID)
			if err != nil {
				fmt.Printf("Error loading run: %v\n", err)
				os.Exit(1)
			}
			overlay = graph.OverlayFromRun(run)
		}

		fmt.Print(graph.GenerateMermaid(statuses, overlay))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("run", "", "Overlay the visited path of this run")
}
