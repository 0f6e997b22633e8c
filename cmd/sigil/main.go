package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/sigil/config"
)

var version = "dev"

var configFiles []string

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "sigil",
	Short:   "AWS SigV4 authentication gateway",
	Long: `Sigil authenticates HTTP requests signed with AWS Signature
Version 4 against a pluggable credential backend and hands verified
principals to the application behind it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&configFiles, "config", nil, "config file paths, later files override earlier ones (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres (default: sqlite, env: SIGIL_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (default: sigil.db, env: SIGIL_DATABASE_DSN)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
