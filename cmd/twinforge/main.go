package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "twinforge",
	Short: "TwinForge - digital twin service framework",
	Long: `TwinForge hosts digital twin components: collectors that ingest
external data on a schedule, harvesters that derive new artifacts from it,
and managers that serve user assets and custom tables over HTTP.

Records land in a SQL store, payloads in a blob store, and jobs flow
through Redis-backed worker queues.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"TwinForge version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}
