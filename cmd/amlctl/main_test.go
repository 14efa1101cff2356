package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/aml-screening/internal/audit"
	"github.com/enterprise/aml-screening/internal/models"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"migrate", "run-rules", "backtest", "analyze", "summary", "audit", "create-analyst", "create-customer", "add-sanction"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	flag := analyzeCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "10", flag.DefValue)
}

func newFlagSet(t *testing.T, cmd *cobra.Command, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: cmd.Use}
	c.Flags().AddFlagSet(cmd.Flags())
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestRunRequestFromFlags(t *testing.T) {
	id := uuid.New()

	req, err := runRequestFromFlags(newFlagSet(t, runRulesCmd, "--transaction", id.String(), "--enrich"))
	require.NoError(t, err)
	require.NotNil(t, req.TransactionID)
	assert.Equal(t, id, *req.TransactionID)
	assert.True(t, req.RunEnrichment)

	_, err = runRequestFromFlags(newFlagSet(t, runRulesCmd, "--transaction", "nope"))
	assert.Error(t, err)
}

func TestBacktestRequestFromFlags(t *testing.T) {
	req, err := backtestRequestFromFlags(newFlagSet(t, backtestCmd, "--from", "2024-01-01", "--to", "2024-02-01", "--sample", "50"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), req.StartDate)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), req.EndDate)
	assert.Equal(t, 50, req.SampleSize)
	assert.Nil(t, req.SenderID)

	_, err = backtestRequestFromFlags(newFlagSet(t, backtestCmd, "--from", "01/01/2024", "--to", "2024-02-01"))
	assert.Error(t, err)
}

func TestFormatAuditPage(t *testing.T) {
	tokens := 420
	msg := "request timed out"
	page := &audit.Page{
		Logs: []*models.AuditLogEntry{
			{TransactionID: uuid.New(), Status: models.AuditStatusSuccess, Model: "m", LatencyMs: 1200, TokensUsed: &tokens, CreatedAt: time.Now()},
			{TransactionID: uuid.New(), Status: models.AuditStatusError, Model: "m", LatencyMs: 60000, ErrorMessage: &msg, CreatedAt: time.Now()},
		},
		Total:       2,
		SuccessRate: 50,
		TotalCost:   0.0084,
	}

	var buf bytes.Buffer
	formatAuditPage(&buf, page)
	out := buf.String()

	assert.Contains(t, out, "420")
	assert.Contains(t, out, "request timed out")
	assert.Contains(t, out, "showing 2 of 2, success rate 50.00%, cost $0.0084")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestCustomerFromFlags(t *testing.T) {
	c, err := customerFromFlags(newFlagSet(t, createCustomerCmd,
		"--name", "Ada Lovelace", "--account", "ACC-1", "--type", "savings", "--balance", "1500.50", "--risk-score", "3", "--country", "gb"))
	require.NoError(t, err)
	assert.Equal(t, "savings", c.AccountType)
	assert.Equal(t, "1500.5", c.Balance.String())
	assert.Equal(t, 3, c.RiskScore)
	assert.Equal(t, "GB", c.CountryCode)

	_, err = customerFromFlags(newFlagSet(t, createCustomerCmd, "--name", "x", "--account", "a", "--type", "crypto"))
	assert.Error(t, err)
	_, err = customerFromFlags(newFlagSet(t, createCustomerCmd, "--name", "x", "--account", "a", "--type", "checking", "--risk-score", "9"))
	assert.Error(t, err)
	_, err = customerFromFlags(newFlagSet(t, createCustomerCmd, "--name", "x", "--account", "a", "--type", "checking", "--risk-score", "1", "--balance", "lots"))
	assert.Error(t, err)
}

func TestSanctionFromFlags(t *testing.T) {
	e, err := sanctionFromFlags(newFlagSet(t, addSanctionCmd, "--name", "Acme Holdings", "--entity-type", "organization", "--country", "ir", "--program", "SDN"))
	require.NoError(t, err)
	assert.Equal(t, "organization", e.EntityType)
	assert.Equal(t, "IR", e.CountryCode)
	assert.Equal(t, "SDN", e.SanctionsProgram)

	_, err = sanctionFromFlags(newFlagSet(t, addSanctionCmd, "--name", "  "))
	assert.Error(t, err)
	_, err = sanctionFromFlags(newFlagSet(t, addSanctionCmd, "--name", "x", "--entity-type", "vessel"))
	assert.Error(t, err)
}
