package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "relevance",
	Short:   "Content relevance and feed ranking engine",
	Version: version,
	Long: `relevance scores posts and companies against user preferences and
recent activity, and serves personalized, explainable feeds over HTTP.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(preferencesCmd)
	rootCmd.AddCommand(companiesCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
