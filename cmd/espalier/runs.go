package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/espalier"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored simulation runs",
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored runs",
	Run: func(cmd *cobra.Command, args []string) {
		sim := mustSimulator(cmd)
		ids, err := sim.Runs(context.Background())
		if err != nil {
			fmt.Printf("Error listing runs: %v\n", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("No runs stored.")
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

var runsInspectCmd = &cobra.Command{
	Use:   "inspect <runId>",
	Short: "Print a stored run as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sim := mustSimulator(cmd)
		run, err := sim.Run(context.Background(), args[0])
		if err != nil {
			fmt.Printf("Error loading run: %v\n", err)
			os.Exit(1)
		}
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			fmt.Printf("Error encoding run: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

var runsRmCmd = &cobra.Command{
	Use:   "rm <runId>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sim := mustSimulator(cmd)
		if err := sim.DeleteRun(context.Background(), args[0]); err != nil {
			fmt.Printf("Error deleting run: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Run %s deleted.\n", args[0])
	},
}

func mustSimulator(cmd *cobra.Command) *espalier.Simulator {
	dir, _ := cmd.Flags().GetString("dir")
	sim, err := espalier.New(dir)
	if err != nil {
		fmt.Printf("Error initializing espalier: %v\n", err)
		os.Exit(1)
	}
	return sim
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLsCmd)
	runsCmd.AddCommand(runsInspectCmd)
	runsCmd.AddCommand(runsRmCmd)
}
