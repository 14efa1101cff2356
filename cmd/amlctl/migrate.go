package main

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/enterprise/aml-screening/internal/repositories"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	Long:  "Applies all pending SQL migrations to the screening database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := repositories.Migrate(cmd.Context(), cfg.Database.URL); err != nil {
			return eris.Wrap(err, "migrate")
		}
		log.Info().Msg("All migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
