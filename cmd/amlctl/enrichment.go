package main

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Enrich flags with the reasoning service",
	Long:  "Classifies one flag, or the oldest unenriched flags, and prints each enrichment result as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		txRaw, _ := cmd.Flags().GetString("transaction")
		flagRaw, _ := cmd.Flags().GetString("flag")
		limit, _ := cmd.Flags().GetInt("limit")

		if (txRaw == "") != (flagRaw == "") {
			return eris.New("--transaction and --flag must be given together")
		}

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		if d.classifier == nil {
			return eris.New("enrichment is not configured, set ANTHROPIC_API_KEY")
		}

		if txRaw == "" {
			results, err := d.classifier.AnalyzePending(ctx, limit)
			if err != nil {
				return eris.Wrap(err, "analyze pending")
			}
			d.analytics.InvalidateSummary(ctx)
			return printJSON(cmd.OutOrStdout(), results)
		}

		txID, err := uuid.Parse(txRaw)
		if err != nil {
			return eris.Wrapf(err, "invalid transaction id %q", txRaw)
		}
		flagID, err := uuid.Parse(flagRaw)
		if err != nil {
			return eris.Wrapf(err, "invalid flag id %q", flagRaw)
		}

		result, err := d.classifier.Analyze(ctx, txID, flagID)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		d.analytics.InvalidateSummary(ctx)
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	analyzeCmd.Flags().String("transaction", "", "transaction id of the flag to analyze")
	analyzeCmd.Flags().String("flag", "", "flag id to analyze")
	analyzeCmd.Flags().Int("limit", 10, "maximum pending flags to analyze")
	rootCmd.AddCommand(analyzeCmd)
}
