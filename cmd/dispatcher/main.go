// Command dispatcher publishes fixtures that start within the dispatch
// horizon to the notification queue and marks the delivered ones processed.
//
// Usage:
//
//	fixture-dispatcher run [--horizon 1h] [--demo]
//	fixture-dispatcher schedule [--demo]
//	fixture-dispatcher window [--horizon 2h]
//	fixture-dispatcher ping
//	fixture-dispatcher version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	exitOK          = 0
	exitRunFailed   = 1
	exitConfigError = 2
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(), os.Args[1:])
	stop()
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fixture-dispatcher",
		Short:         "Dispatch upcoming fixtures to the notification queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(windowCmd())
	root.AddCommand(pingCmd())
	root.AddCommand(versionCmd())
	return root
}

func execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	return exitRunFailed
}

// configError marks failures that happen before any work starts.
type configError struct {
	err error
}

func (e *configError) Error() string { return "config: " + e.err.Error() }
func (e *configError) Unwrap() error { return e.err }
