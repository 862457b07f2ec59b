package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vericall",
	Short: "Identity verification video calls: signaling relay, meeting lifecycle, agent portal API",
	Long:  `HTTP + WebSocket backend for verification video calls. Commands: serve, seed-agent, join.`,
	RunE:  runServe, // default: run the server (same as "vericall serve")
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedAgentCmd)
	rootCmd.AddCommand(joinCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
