// Command aura runs the utterance-resolution core of the voice-assistant
// platform: it connects to the messagebus, routes every recognized utterance
// through the matcher priority chain, and dispatches the winning skill
// handler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aura/internal/logging"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "aura - voice assistant intent service",
	Long: `aura resolves recognized utterances to skill handlers.

Each utterance runs through a fixed priority chain: active-skill converse,
pattern-trained intents (high tier), slot-grammar intents, question
answering, then fallback and looser pattern tiers. The first matcher to
commit wins; if none does, a complete_intent_failure event is published.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aura.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
