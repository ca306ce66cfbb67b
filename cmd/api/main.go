package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "ehr-api",
		Short:        "KMC clinic records and billing API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yml (default: search ., ./config, /app/config)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
