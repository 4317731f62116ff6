package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/House-of-Events/Annabeth/internal/app"
	"github.com/House-of-Events/Annabeth/internal/config"
	"github.com/House-of-Events/Annabeth/internal/observability"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
	"github.com/House-of-Events/Annabeth/internal/scheduler"
	"github.com/House-of-Events/Annabeth/internal/usecase"
)

const observabilityShutdownTimeout = 5 * time.Second

type runtimeFlags struct {
	demo bool
}

func (f *runtimeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.demo, "demo", false, "Use an in-memory store seeded with sample fixtures instead of postgres")
}

// bootstrap loads config, builds the logger and starts observability.
// The returned cleanup flushes traces and logs.
func bootstrap(flags runtimeFlags, longRunning bool) (*app.Runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, &configError{err: err}
	}

	logger := logging.NewJSON(cfg.LogLevel, cfg.ServiceName).With("env", cfg.AppEnv)
	logging.SetDefault(logger)

	stack, err := observability.Start(cfg, logger, longRunning)
	if err != nil {
		return nil, nil, &configError{err: err}
	}

	var opts []app.RuntimeOption
	if flags.demo {
		logger.Warn("demo mode: using in-memory fixtures")
		opts = append(opts, app.WithDemoFixtures(time.Now()))
	}
	rt := app.NewRuntime(cfg, logger, opts...)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), observabilityShutdownTimeout)
		defer cancel()
		if err := stack.Shutdown(ctx); err != nil {
			logger.Error("observability shutdown failed", "error", err)
		}
		_ = logger.Sync()
	}
	return rt, cleanup, nil
}

func runCmd() *cobra.Command {
	var (
		flags   runtimeFlags
		horizon time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one dispatch pass and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, cleanup, err := bootstrap(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, runErr := rt.RunOnce(cmd.Context(), usecase.RunOptions{Horizon: horizon})
			logRunError(rt.Logger(), summary, runErr)
			if summary.RunID != "" {
				if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	flags.bind(cmd)
	cmd.Flags().DurationVar(&horizon, "horizon", 0, "Override DISPATCH_HORIZON for this run")
	return cmd
}

func windowCmd() *cobra.Command {
	var (
		flags   runtimeFlags
		horizon time.Duration
	)
	cmd := &cobra.Command{
		Use:   "window",
		Short: "List fixtures the next run would dispatch without publishing or marking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, cleanup, err := bootstrap(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := rt.RunOnce(cmd.Context(), usecase.RunOptions{Horizon: horizon, DryRun: true})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	flags.bind(cmd)
	cmd.Flags().DurationVar(&horizon, "horizon", 0, "Override DISPATCH_HORIZON for this listing")
	return cmd
}

func scheduleCmd() *cobra.Command {
	var flags runtimeFlags
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run dispatch passes on SCHEDULE_CRON until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, cleanup, err := bootstrap(flags, true)
			if err != nil {
				return err
			}
			defer cleanup()

			runner, err := scheduler.New(rt.Config().Scheduler, func(ctx context.Context) error {
				_, err := rt.RunOnce(ctx, usecase.RunOptions{})
				return err
			}, rt.Logger())
			if err != nil {
				return &configError{err: err}
			}
			return runner.Run(cmd.Context())
		},
	}
	flags.bind(cmd)
	return cmd
}

func pingCmd() *cobra.Command {
	var flags runtimeFlags
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check database connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, cleanup, err := bootstrap(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			latency, err := rt.Ping(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok (%s)\n", latency.Round(time.Millisecond))
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "fixture-dispatcher %s\n", version)
			return err
		},
	}
}

// logRunError records failed runs; successful ones are logged by the service.
func logRunError(logger *logging.Logger, summary usecase.RunSummary, err error) {
	if err == nil {
		return
	}
	logger.Error("dispatch run failed",
		"run_id", summary.RunID,
		"selected", summary.Selected,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"error", err,
	)
}

func writeJSON(w io.Writer, v any) error {
	body, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	body = append(body, '\n')
	_, err = w.Write(body)
	return err
}
