package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/seked/leadscout/internal/model"
)

var (
	outcomeAttemptID string
	outcomeLeadID    string
	outcomeResult    string
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Record a terminal WON/LOST outcome for an outreach attempt",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "outcome")
		if err != nil {
			return err
		}
		defer env.Close()

		attempt, err := env.Pipeline.RecordOutcome(ctx, outcomeAttemptID, outcomeLeadID, model.Outcome(outcomeResult))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(attempt)
	},
}

func init() {
	outcomeCmd.Flags().StringVar(&outcomeAttemptID, "attempt", "", "outreach attempt ID")
	outcomeCmd.Flags().StringVar(&outcomeLeadID, "lead", "", "lead ID (uses its newest open attempt)")
	outcomeCmd.Flags().StringVar(&outcomeResult, "outcome", "", "WON or LOST (required)")
	_ = outcomeCmd.MarkFlagRequired("outcome")
	rootCmd.AddCommand(outcomeCmd)
}
