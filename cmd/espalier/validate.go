package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the flow for consistency",
	Long: `Loads the flow and reports structural problems: unknown entry nodes,
requirements no moment can ever satisfy, lens references to undeclared
metrics, and gates nothing declares.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	if !cmd.Flags().Changed("dir") && len(args) > 0 {
		dir = args[0]
	}

	sim, err := espalier.New(dir)
	if err != nil {
		return fmt.Errorf("failed to init simulator: %w", err)
	}

	doc, err := sim.Flow(context.Background())
	if err != nil {
		return err
	}

	warnings, err := flow.Validate(doc)
	if err != nil {
		return err
	}

	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Println("Flow is valid! ✅")
	return nil
}
