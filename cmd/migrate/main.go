package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Gofven/flowback-backend-sub001/internal/bootstrap"
	"github.com/Gofven/flowback-backend-sub001/internal/config"
	"github.com/Gofven/flowback-backend-sub001/internal/migration"
	"github.com/Gofven/flowback-backend-sub001/internal/migrations"
	"github.com/Gofven/flowback-backend-sub001/pkg/logger"
	"github.com/spf13/cobra"
)

var executor *migration.Executor

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply, unapply and inspect schema migrations",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

		db, err := bootstrap.Database(cfg)
		if err != nil {
			return err
		}
		graph, err := migrations.Graph()
		if err != nil {
			return err
		}
		executor, err = migration.NewExecutor(db, graph, logger.Component("migration"))
		return err
	},
}

var upCmd = &cobra.Command{
	Use:   "up [app] [name]",
	Short: "Apply migrations, optionally up to one app or one migration",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executor.Migrate(cmd.Context(), targetOf(args))
	},
}

var downCmd = &cobra.Command{
	Use:   "down <app> <name|zero>",
	Short: "Unapply the migrations of app after name, or all of them with zero",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executor.Rollback(cmd.Context(), args[0], args[1])
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [app] [name]",
	Short: "Print the steps up or down would run, without running them",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := executor.Plan(cmd.Context(), targetOf(args))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(steps) == 0 {
			fmt.Fprintln(out, "nothing to do")
			return nil
		}
		for _, step := range steps {
			fmt.Fprintln(out, step)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List every migration and whether it is applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := executor.Status(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, s := range statuses {
			mark, at := "[ ]", ""
			if s.Applied {
				mark, at = "[X]", s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, s.Key.App, s.Key.Name, at)
		}
		return w.Flush()
	},
}

func targetOf(args []string) migration.Target {
	var t migration.Target
	if len(args) > 0 {
		t.App = args[0]
	}
	if len(args) > 1 {
		t.Name = args[1]
	}
	return t
}

func main() {
	rootCmd.AddCommand(upCmd, downCmd, planCmd, statusCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		stop()
		os.Exit(1)
	}
}
