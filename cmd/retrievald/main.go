// Retrievald is a context retrieval daemon for conversational agents.
//
// It sits between an agent and a vector-indexed corpus: per message it
// decides whether retrieval is needed, under what security scope, with
// what budget, then retrieves, ranks, assembles, and cites context for
// the answer.
//
// Usage:
//
//	# Start the daemon with a config file
//	retrievald serve --config /etc/retrievald/config.yaml
//
//	# Configure via environment
//	RETRIEVALD_SERVER_PORT=9190 retrievald serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "retrievald",
	Short:        "Context retrieval daemon for conversational agents",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("retrievald by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
