// Command jsonrpcwsctl is a small CLI for exercising a jsonrpcws client
// against a live server: send one-off requests, watch lifecycle events, or
// stand up a trivial echo server for local testing.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Global flags shared across subcommands.
var (
	globalConfigPath string
	globalServerURL  string
	globalVerbose    bool
	globalLogger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jsonrpcwsctl",
	Short: "Drive a JSON-RPC 2.0 WebSocket client",
	Long: `jsonrpcwsctl dials a JSON-RPC 2.0 server over a persistent WebSocket
connection, sends requests, watches connection lifecycle events, and can
stand up a trivial echo server for local testing.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if globalVerbose {
			level = slog.LevelDebug
		}
		globalLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalConfigPath, "config", "", "path to config file (default: /etc/jsonrpcws/config.toml)")
	rootCmd.PersistentFlags().StringVar(&globalServerURL, "server", "", "server URL, overrides the config file")
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveEchoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
