package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/config"
	"github.com/glycopilot/glycopilot-api/internal/logger"
	"github.com/glycopilot/glycopilot-api/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Setup(cfg.App.Env, cfg.App.LogLevel)
			return migrations.Run(cfg.DB.URL())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Setup(cfg.App.Env, cfg.App.LogLevel)
			return migrations.Rollback(cfg.DB.URL())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Setup(cfg.App.Env, cfg.App.LogLevel)
			version, dirty, err := migrations.Version(cfg.DB.URL())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	})

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Prune cached readings older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCore()
			if err != nil {
				return err
			}
			defer c.close()

			n, err := c.readingSvc.SweepAll(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d cached readings\n", n)
			return nil
		},
	}
}

func readingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readings",
		Short: "Manage stored readings",
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one history reading of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			accountRaw, _ := cmd.Flags().GetString("account")
			readingRaw, _ := cmd.Flags().GetString("reading")
			accountID, err := uuid.Parse(accountRaw)
			if err != nil {
				return fmt.Errorf("invalid --account: %w", err)
			}
			readingID, err := uuid.Parse(readingRaw)
			if err != nil {
				return fmt.Errorf("invalid --reading: %w", err)
			}

			c, err := loadCore()
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.readingSvc.DeleteHistory(context.Background(), accountID, readingID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted reading %s\n", readingID)
			return nil
		},
	}
	deleteCmd.Flags().String("account", "", "Account id")
	deleteCmd.Flags().String("reading", "", "Reading id")
	_ = deleteCmd.MarkFlagRequired("account")
	_ = deleteCmd.MarkFlagRequired("reading")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func doctorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "Manage doctor accounts",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Mark a doctor's license as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")

			c, err := loadCore()
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.registry.VerifyDoctor(context.Background(), email, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "doctor %s verified\n", email)
			return nil
		},
	}
	verifyCmd.Flags().String("email", "", "Doctor account email")
	_ = verifyCmd.MarkFlagRequired("email")
	cmd.AddCommand(verifyCmd)

	return cmd
}
