package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/enterprise/aml-screening/internal/audit"
	"github.com/enterprise/aml-screening/internal/models"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print flag and enrichment statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		summary, err := d.analytics.GetSummary(ctx)
		if err != nil {
			return eris.Wrap(err, "summary")
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List reasoning service audit entries",
	Long:  "Lists audit entries newest first with success rate and estimated cost over every matching entry.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		q := models.AuditQuery{}
		q.Status, _ = cmd.Flags().GetString("status")
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.Offset, _ = cmd.Flags().GetInt("offset")
		if raw, _ := cmd.Flags().GetString("transaction"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return eris.Wrapf(err, "invalid transaction id %q", raw)
			}
			q.TransactionID = &id
		}

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		page, err := d.auditLogger.Query(ctx, q)
		if err != nil {
			return eris.Wrap(err, "audit")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), page)
		}
		formatAuditPage(cmd.OutOrStdout(), page)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	auditCmd.Flags().String("transaction", "", "only entries for this transaction id")
	auditCmd.Flags().String("status", "", "only entries with this status (success or error)")
	auditCmd.Flags().Int("limit", 50, "page size")
	auditCmd.Flags().Int("offset", 0, "page offset")
	auditCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(auditCmd)
}

// formatAuditPage writes a tabular view of an audit page to out
func formatAuditPage(out io.Writer, page *audit.Page) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CREATED\tTRANSACTION\tSTATUS\tMODEL\tLATENCY\tTOKENS\tERROR")

	for _, e := range page.Logs {
		tokens := "-"
		if e.TokensUsed != nil {
			tokens = fmt.Sprintf("%d", *e.TokensUsed)
		}
		errMsg := ""
		if e.ErrorMessage != nil {
			errMsg = truncate(*e.ErrorMessage, 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.TransactionID,
			e.Status,
			e.Model,
			e.LatencyMs,
			tokens,
			errMsg,
		)
	}
	_, _ = fmt.Fprintf(w, "\nshowing %d of %d, success rate %.2f%%, cost $%.4f\n",
		len(page.Logs), page.Total, page.SuccessRate, page.TotalCost)
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
