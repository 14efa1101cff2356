package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/enterprise/aml-screening/internal/scoring"
)

const dateLayout = "2006-01-02"

var runRulesCmd = &cobra.Command{
	Use:   "run-rules",
	Short: "Screen transactions against the rule catalog",
	Long:  "Screens one transaction, or every transaction in batch mode, and prints the run summary as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := runRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		result, err := d.orchestrator.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "run-rules")
		}
		d.analytics.InvalidateSummary(ctx)
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the rule catalog over a historical window",
	Long:  "Evaluates every rule against transactions in a date range without writing flags and compares the result with recorded flags.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := backtestRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		result, err := d.backtest.RunBacktest(ctx, req)
		if err != nil {
			return eris.Wrap(err, "backtest")
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	runRulesCmd.Flags().String("transaction", "", "screen a single transaction by id")
	runRulesCmd.Flags().Bool("enrich", false, "enrich new flags after screening")
	rootCmd.AddCommand(runRulesCmd)

	backtestCmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	backtestCmd.Flags().String("to", "", "end date (YYYY-MM-DD), exclusive")
	backtestCmd.Flags().String("sender", "", "limit to one sender id")
	backtestCmd.Flags().Int("sample", 0, "maximum transactions to replay")
	_ = backtestCmd.MarkFlagRequired("from")
	_ = backtestCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(backtestCmd)
}

func runRequestFromFlags(cmd *cobra.Command) (scoring.RunRequest, error) {
	var req scoring.RunRequest
	req.RunEnrichment, _ = cmd.Flags().GetBool("enrich")

	raw, _ := cmd.Flags().GetString("transaction")
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, eris.Wrapf(err, "invalid transaction id %q", raw)
		}
		req.TransactionID = &id
	}
	return req, nil
}

func backtestRequestFromFlags(cmd *cobra.Command) (*scoring.BacktestRequest, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid --from %q", from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid --to %q", to)
	}

	req := &scoring.BacktestRequest{StartDate: start, EndDate: end}
	req.SampleSize, _ = cmd.Flags().GetInt("sample")

	if sender, _ := cmd.Flags().GetString("sender"); sender != "" {
		id, err := uuid.Parse(sender)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid sender id %q", sender)
		}
		req.SenderID = &id
	}
	return req, nil
}
