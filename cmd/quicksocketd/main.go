// Command quicksocketd runs the broadcast engine as a standalone daemon with
// an ops HTTP surface and an optional gRPC control bridge.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "quicksocketd: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quicksocketd",
		Short: "WebSocket broadcast server",
		Long: `quicksocketd accepts WebSocket clients, fans host batches out to every
connected client and collects what the clients send back.

The serve command drives the engine from a polling host loop and optionally
exposes health, metrics and a gRPC control service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), versionCmd())
	return rootCmd
}
