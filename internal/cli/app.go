package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/roach88/offpos/internal/audit"
	"github.com/roach88/offpos/internal/backend"
	"github.com/roach88/offpos/internal/config"
	"github.com/roach88/offpos/internal/events"
	"github.com/roach88/offpos/internal/lifecycle"
	"github.com/roach88/offpos/internal/occupancy"
	"github.com/roach88/offpos/internal/outbox"
	"github.com/roach88/offpos/internal/printing"
	"github.com/roach88/offpos/internal/reconcile"
	"github.com/roach88/offpos/internal/store"
)

// App is one wired instance of the sync core.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Store  *store.Store
	API    backend.API
	Conn   *outbox.Switch
	Queue  *outbox.Queue
	Orders *lifecycle.Manager
	Sync   *reconcile.Engine
	Tables *occupancy.View
	Prints *printing.Dispatcher

	pg      *backend.Postgres
	closers []func()
}

// openApp loads config and wires every component. The caller must Close
// the returned App.
func openApp(cmd *cobra.Command, opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	app := &App{
		Config: cfg,
		Logger: newLogger(cmd.ErrOrStderr(), opts).With("device", cfg.Device.ID),
	}
	if err := app.wire(cmd.Context(), opts, now); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, opts *RootOptions, now func() time.Time) error {
	cfg := a.Config

	bus := events.NewBus()
	a.closers = append(a.closers, bus.Close)

	a.Logger.Debug("opening database", "path", cfg.Store.Path)
	st, err := store.OpenOrRecreate(cfg.Store.Path, a.Logger, store.WithBus(bus))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	a.Store = st
	a.closers = append(a.closers, func() {
		if err := st.Close(); err != nil {
			a.Logger.Error("error closing database", "error", err)
		}
	})

	if a.API, err = a.openBackend(ctx, opts); err != nil {
		return WrapExitError(ExitCommandError, "failed to configure backend", err)
	}

	printer := a.openPrinter(opts)
	a.Prints = printing.NewDispatcher(printer,
		printing.WithLogger(a.Logger),
		printing.WithTimeout(cfg.Printing.Timeout))

	rec := audit.Multi{
		audit.SlogRecorder{Logger: a.Logger},
		audit.StoreRecorder{Sink: st, Now: now},
	}

	a.Conn = outbox.NewSwitch(!opts.Offline)
	a.Queue = outbox.New(st, a.API,
		outbox.WithConfig(outbox.Config{
			MaxRetries: cfg.Outbox.MaxRetries,
			Timeout:    cfg.Backend.Timeout,
		}),
		outbox.WithConnectivity(a.Conn),
		outbox.WithAudit(rec),
		outbox.WithLogger(a.Logger),
		outbox.WithClock(now))

	mopts := []lifecycle.Option{
		lifecycle.WithPrinter(a.Prints),
		lifecycle.WithClock(now),
		lifecycle.WithLogger(a.Logger),
		lifecycle.WithStaff(cfg.Device.Staff),
	}
	if opts.IDs != nil {
		mopts = append(mopts, lifecycle.WithIDs(opts.IDs))
	}
	a.Orders = lifecycle.New(st, a.Queue, mopts...)

	a.Sync = reconcile.New(st, a.API, a.Queue,
		reconcile.WithConfig(reconcile.Config{
			CompletedWindow: cfg.Reconcile.CompletedWindow,
			BatchSize:       cfg.Backend.BatchSize,
			Timeout:         cfg.Backend.Timeout,
		}),
		reconcile.WithAudit(rec),
		reconcile.WithLogger(a.Logger),
		reconcile.WithClock(now))

	a.Tables = occupancy.New(st, a.Logger)
	return nil
}

func (a *App) openBackend(ctx context.Context, opts *RootOptions) (backend.API, error) {
	if opts.API != nil {
		return opts.API, nil
	}
	switch a.Config.Backend.Kind {
	case config.BackendPostgres:
		// pgxpool connects lazily, so an unreachable server does not stop
		// local work.
		pool, err := pgxpool.New(ctx, a.Config.Backend.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		a.pg = backend.NewPostgres(pool)
		a.closers = append(a.closers, a.pg.Close)
		return a.pg, nil
	default:
		a.Logger.Debug("using in-process memory backend")
		return backend.NewMemory(), nil
	}
}

// openPrinter never fails: an unreachable print bridge falls back to the
// log printer so orders are never blocked on printing.
func (a *App) openPrinter(opts *RootOptions) printing.Printer {
	if opts.Printer != nil {
		return opts.Printer
	}
	p := a.Config.Printing
	switch p.Kind {
	case config.PrinterNone:
		return nil
	case config.PrinterAMQP:
		ap, err := printing.DialAMQP(p.URL, p.Exchange)
		if err == nil {
			a.closers = append(a.closers, ap.Close)
			return ap
		}
		a.Logger.Warn("print bridge unreachable, logging tickets instead", "error", err)
	}
	return printing.LogPrinter{Logger: a.Logger}
}

// prepareBackend creates the remote schema when the backend is Postgres.
// Failure is logged; the queue retries once the server is reachable.
func (a *App) prepareBackend(ctx context.Context) {
	if a.pg == nil || !a.Conn.Online() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.Config.Backend.Timeout)
	defer cancel()
	if err := a.pg.EnsureSchema(ctx); err != nil {
		a.Logger.Warn("backend schema not ensured", "error", err)
	}
}

// Close waits for in-flight prints, then releases resources in reverse
// order of acquisition.
func (a *App) Close() {
	a.Prints.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
