package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB, _ *zap.Logger) error {
			if err := database.Migrate(db); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Schema is up to date (%d tables)\n", len(database.Models()))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
