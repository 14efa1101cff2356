package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/enterprise/aml-screening/internal/services"
)

var createAnalystCmd = &cobra.Command{
	Use:   "create-analyst",
	Short: "Create an analyst account",
	Long:  "Creates an analyst or admin account. Useful for bootstrapping the first admin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req := &services.CreateAnalystRequest{}
		req.Email, _ = cmd.Flags().GetString("email")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Role, _ = cmd.Flags().GetString("role")

		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		analyst, err := d.authService.CreateAnalyst(ctx, req)
		if err != nil {
			return eris.Wrap(err, "create analyst")
		}
		return printJSON(cmd.OutOrStdout(), analyst)
	},
}

func init() {
	createAnalystCmd.Flags().String("email", "", "analyst email")
	createAnalystCmd.Flags().String("password", "", "analyst password")
	createAnalystCmd.Flags().String("role", "analyst", "analyst or admin")
	_ = createAnalystCmd.MarkFlagRequired("email")
	_ = createAnalystCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createAnalystCmd)
}
