package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// ProbeInterval is how often the backend is pinged to detect
	// reconnects. Zero uses outbox.drain_interval.
	ProbeInterval time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the local database in sync until interrupted",
		Long: `Run the sync loops in the foreground.

The outbound queue drains on every local change and every
outbox.drain_interval. A reconciliation pass runs at start, on every
reconcile.interval and whenever the backend comes back after being
unreachable. Ctrl-C or SIGTERM stops the loops; queued changes stay in the
local database.

Example:
  offpos run --db ./pos.db
  offpos run --config /etc/offpos.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				return runLoops(ctx, opts, app, cmd)
			})
		},
	}

	cmd.Flags().DurationVar(&opts.ProbeInterval, "probe-interval", 0, "backend reachability check interval")

	return cmd
}

func runLoops(parent context.Context, opts *RunOptions, app *App, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			app.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := app.Tables.Start(ctx); err != nil {
		return err
	}
	app.prepareBackend(ctx)

	cfg := app.Config
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Queue.Run(gctx, cfg.Outbox.DrainInterval)
	})
	if !opts.Offline {
		g.Go(func() error {
			return app.Sync.Run(gctx, cfg.Reconcile.Interval)
		})
		g.Go(func() error {
			interval := opts.ProbeInterval
			if interval <= 0 {
				interval = cfg.Outbox.DrainInterval
			}
			return watchBackend(gctx, app, interval)
		})
		app.Sync.Trigger()
	}

	app.Logger.Info("sync loops started",
		"db", cfg.Store.Path,
		"backend", cfg.Backend.Kind,
		"offline", opts.Offline)
	fmt.Fprintln(cmd.OutOrStdout(), "Sync running. Press Ctrl-C to stop.")

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "sync loop error", err)
	}

	app.Logger.Info("sync loops stopped")
	return nil
}

// watchBackend pings the backend every interval and flips the
// connectivity switch. Coming back online pokes the queue and triggers a
// reconciliation pass.
func watchBackend(ctx context.Context, app *App, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, app.Config.Backend.Timeout)
		err := app.API.Ping(pingCtx)
		cancel()

		was := app.Conn.Online()
		online := err == nil
		if online == was {
			continue
		}
		app.Conn.Set(online)
		if !online {
			app.Logger.Warn("backend unreachable, working offline", "error", err)
			continue
		}
		app.Logger.Info("backend reachable again, syncing")
		app.prepareBackend(ctx)
		app.Queue.Poke()
		app.Sync.Trigger()
	}
}
