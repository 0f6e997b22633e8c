package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/sigil/config"
	"github.com/sagarc03/sigil/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or verify the credential schema",
	Long: `Create the credential table if it does not exist and verify the
schema matches what the server expects. Safe to run repeatedly; it is
useful as a deploy step so 'sigil serve' never races schema creation.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	store, closeStore, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeStore()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	slog.Info("schema ready", "type", cfg.Database.Type, "table", cfg.Database.Tables.Credentials)
	return nil
}
