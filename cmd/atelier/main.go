package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "atelier",
	Short:   "Staged collaborative design workflow with AI facilitation",
	Version: version,
	Long: `atelier runs a five-stage collaborative design workflow: each workspace
moves through problem definition, data analysis, design alternatives,
design evaluation, and design decision, with an AI facilitator guiding
the conversation and closing each stage with a summary.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(evidenceCmd)
	rootCmd.AddCommand(providerCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
