package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Suggest new queries from winning patterns and resolved entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "outcome")
		if err != nil {
			return err
		}
		defer env.Close()

		suggestions, err := env.Pipeline.Propose(ctx)
		if err != nil {
			return eris.Wrap(err, "propose queries")
		}

		zap.L().Info("proposals generated", zap.Int("count", len(suggestions)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(suggestions)
	},
}

func init() {
	rootCmd.AddCommand(proposeCmd)
}
