package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpAdapter "github.com/aretw0/espalier/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the simulator over the Model Context Protocol",
	Long: `Serves the flow to MCP clients. The stdio transport speaks over
stdin/stdout for editor integrations; the sse transport runs an HTTP
server for remote clients.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		sim := mustSimulator(cmd)
		server := mcpAdapter.NewServer(sim)

		switch transport {
		case "stdio":
			if err := server.ServeStdio(); err != nil {
				fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
				os.Exit(1)
			}
		case "sse":
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := server.ServeSSE(ctx, port); err != nil {
				fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
				os.Exit(1)
			}
		default:
			fmt.Fprintf(os.Stderr, "Unknown transport %q (expected stdio or sse)\n", transport)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport to use (stdio or sse)")
	mcpCmd.Flags().Int("port", 8090, "Listen port for the sse transport")
}
