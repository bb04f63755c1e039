package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/espalier"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the espalier version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("espalier version %s\n", strings.TrimSpace(espalier.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
