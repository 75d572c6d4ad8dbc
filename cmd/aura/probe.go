package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aura/internal/bus"
	"aura/internal/config"
	"aura/internal/intent"
	"aura/internal/logging"
)

var probeLang string

var probeCmd = &cobra.Command{
	Use:   "probe [utterance]",
	Short: "Ask the running intent service which intent an utterance resolves to",
	Long: `Sends an intent.service.intent.get query over the messagebus and prints
the reply. The probe runs the reduced matcher chain (pattern and grammar
tiers only) and has no side effects: nothing is dispatched, no skill is
activated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeLang, "lang", "", "language code (default: configured)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	lang := probeLang
	if lang == "" {
		lang = cfg.Lang
	}

	client, err := bus.DialWS(cfg.BusURL(), logging.Named(logger, logging.CategoryBus))
	if err != nil {
		return err
	}
	defer client.Close()

	query := bus.NewMessage(intent.TopicGetIntent, map[string]any{
		"utterance": strings.Join(args, " "),
		"lang":      lang,
	})
	reply, err := client.Request(query, intent.TopicIntentReply, 10*time.Second)
	if err != nil {
		return fmt.Errorf("intent query: %w", err)
	}

	out, err := json.MarshalIndent(reply.Data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
