package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Build information, set with -ldflags
	Version   = "dev"
	GitCommit = "unknown"

	userID string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "platformctl",
	Short:         "Exprsn platform administration",
	Long:          "Operator commands for schema migrations, artifact sync and schedule previews.",
	Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", "platformctl", "User id recorded on applied changes")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(cronCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
