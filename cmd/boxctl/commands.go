package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"subbox_backend/internal/app"
	"subbox_backend/pkg/config"
	"subbox_backend/pkg/database"
	applog "subbox_backend/pkg/logger"
	"subbox_backend/pkg/seed"
)

type cli struct {
	verbose bool
	logger  *slog.Logger
	app     *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "boxctl",
		Short:         "Operate the subscription box backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if c.verbose {
				cfg.Log.Level = "debug"
			}
			c.logger = applog.New(cfg.Log, "boxctl", os.Stderr).With(
				"command", cmd.CommandPath(),
				"correlation_id", uuid.NewString(),
			)

			c.app, err = app.New(cmd.Context(), cfg, c.logger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(c.migrateCmd(), c.seedCmd(), c.reconcileCmd(), c.remindCmd())
	return root
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.MigrateDatabase(c.app.DB, c.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the default plan catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := seed.SeedPlans(cmd.Context(), c.app.DB, seed.DefaultPlans(), c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d plans created\n", created)
			return nil
		},
	}
}

func (c *cli) reconcileCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve reconciliation tasks and refresh subscriptions from the processor",
		Long: `Runs one reconciliation sweep: pending reconciliation tasks are resolved
against the payment processor, then every non-terminal subscription is
refreshed from the processor's current state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := c.app.Manager.Sweep(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "tasks resolved: %d\ntasks pending: %d\nrefreshed: %d\nfailed: %d\n",
				res.TasksResolved, res.TasksPending, res.Refreshed, res.Failed)
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "maximum sweep duration")
	return cmd
}

func (c *cli) remindCmd() *cobra.Command {
	var lead, window time.Duration
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send renewal reminders for subscriptions renewing soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			sent, err := c.app.Manager.SendRenewalReminders(cmd.Context(), lead, window)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d reminders sent\n", sent)
			return nil
		},
	}
	cmd.Flags().DurationVar(&lead, "lead", 72*time.Hour, "how far ahead of renewal to remind")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "width of the renewal window")
	return cmd
}
