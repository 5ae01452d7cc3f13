package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/groundwork/internal/cli"
	"github.com/cloo-solutions/groundwork/internal/cli/admin"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundworkd",
		Short: "Groundwork daemon and admin CLI",
		Long: `Groundwork daemon for serving grounded answers over a knowledge base, and the
admin commands for providers, indexing, health checks and migrations.

Configuration is read from GROUNDWORK_* environment variables and an optional .env file.`,
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ProviderCmd())
	rootCmd.AddCommand(admin.ReindexCmd())
	rootCmd.AddCommand(admin.HealthCmd())
	rootCmd.AddCommand(admin.SettingsCmd())
	rootCmd.AddCommand(admin.DiagnoseCmd())
	rootCmd.AddCommand(admin.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
