package main

import (
	"os"

	"github.com/spf13/cobra"
)

// @title           Glycopilot API
// @version         1.0
// @description     Glucose monitoring backend: readings, alerts, care teams and realtime updates.

// @contact.name   Glycopilot Support
// @contact.email  support@glycopilot.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Glycopilot API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(readingsCmd())
	rootCmd.AddCommand(doctorsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
