// Package reconcile pulls canonical backend state into the local store and
// quarantines duplicate active orders.
//
// A pass drains the outbound queue first, pulls menu and tables, pulls
// active and recently completed orders, then runs duplicate detection.
// Duplicates are flagged, never deleted or cancelled.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/offpos/internal/audit"
	"github.com/roach88/offpos/internal/backend"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/outbox"
	"github.com/roach88/offpos/internal/store"
)

// Defaults for Config.
const (
	DefaultCompletedWindow = 24 * time.Hour
	DefaultTimeout         = 30 * time.Second
)

// Config tunes a pass.
type Config struct {
	// CompletedWindow is how far back completed orders are pulled.
	CompletedWindow time.Duration
	// BatchSize bounds each order-items fetch.
	BatchSize int
	// Timeout bounds each remote call.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CompletedWindow <= 0 {
		c.CompletedWindow = DefaultCompletedWindow
	}
	if c.BatchSize <= 0 {
		c.BatchSize = backend.DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Outbox is the queue side a pass depends on. Implemented by *outbox.Queue.
type Outbox interface {
	Drain(ctx context.Context, force bool) (outbox.DrainReport, error)
	PendingOrderIDs(ctx context.Context) (map[string]bool, error)
}

// Result describes one pass.
type Result struct {
	Skipped    bool      `json:"skipped,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Drain outbox.DrainReport `json:"drain"`

	MenuPulled    int `json:"menu_pulled"`
	TablesPulled  int `json:"tables_pulled"`
	OrdersPulled  int `json:"orders_pulled"`
	OrdersSkipped int `json:"orders_skipped"`

	// PullError is set when the backend could not be read. Local state is
	// left as it was and duplicate detection still runs.
	PullError string `json:"pull_error,omitempty"`

	// Duplicates lists groups found and quarantined by this pass.
	Duplicates []DuplicateGroup `json:"duplicates"`
}

// Engine runs reconciliation passes.
//
// Thread-safety: Reconcile, Trigger, Release and LastResult are safe from
// any goroutine; concurrent Reconcile calls collapse to one pass. Run must
// be called from exactly one goroutine.
type Engine struct {
	store  *store.Store
	api    backend.API
	outbox Outbox
	audit  audit.Recorder
	logger *slog.Logger
	now    func() time.Time
	cfg    Config

	running sync.Mutex
	trigger chan struct{}

	mu      sync.Mutex
	last    Result
	hasLast bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets window, batch size and timeout.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

// WithAudit sets the recorder for pass outcomes.
func WithAudit(r audit.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.audit = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine.
func New(st *store.Store, api backend.API, ob Outbox, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		api:     api,
		outbox:  ob,
		audit:   audit.Nop{},
		logger:  slog.Default(),
		now:     time.Now,
		cfg:     Config{}.withDefaults(),
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pulled is everything read from the backend before any local write.
type pulled struct {
	menu   []model.MenuItem
	tables []model.Table
	orders []model.Order
	items  map[string][]model.OrderItem
}

// Reconcile runs one pass. It returns an error only for local store
// failures; backend failures are reported in Result.PullError.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	if !e.running.TryLock() {
		return Result{Skipped: true}, nil
	}
	defer e.running.Unlock()

	r := Result{StartedAt: e.now().UTC()}

	drain, err := e.outbox.Drain(ctx, false)
	if err != nil {
		return r, fmt.Errorf("drain before pull: %w", err)
	}
	r.Drain = drain

	data, err := e.pull(ctx)
	if err != nil {
		r.PullError = err.Error()
		e.logger.Warn("pull failed", "class", backend.Classify(err), "error", err)
	} else if err := e.apply(ctx, data, &r); err != nil {
		return r, err
	}

	groups, err := e.quarantine(ctx)
	if err != nil {
		return r, err
	}
	r.Duplicates = groups
	r.FinishedAt = e.now().UTC()

	e.logger.Info("reconcile pass",
		"menu", r.MenuPulled,
		"tables", r.TablesPulled,
		"orders", r.OrdersPulled,
		"orders_skipped", r.OrdersSkipped,
		"duplicate_groups", len(r.Duplicates),
		"pull_error", r.PullError)
	e.record(ctx, r)

	e.mu.Lock()
	e.last, e.hasLast = r, true
	e.mu.Unlock()
	return r, nil
}

func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return fn(ctx)
}

func (e *Engine) pull(ctx context.Context) (pulled, error) {
	var p pulled
	if err := e.call(ctx, func(ctx context.Context) (err error) {
		p.menu, err = e.api.ListMenuItems(ctx)
		return err
	}); err != nil {
		return p, fmt.Errorf("pull menu: %w", err)
	}
	if err := e.call(ctx, func(ctx context.Context) (err error) {
		p.tables, err = e.api.ListTables(ctx)
		return err
	}); err != nil {
		return p, fmt.Errorf("pull tables: %w", err)
	}

	q := backend.OrderQuery{
		Statuses:       model.OperationalStatuses,
		CompletedSince: e.now().Add(-e.cfg.CompletedWindow).UTC(),
	}
	if err := e.call(ctx, func(ctx context.Context) (err error) {
		p.orders, err = e.api.ListOrders(ctx, q)
		return err
	}); err != nil {
		return p, fmt.Errorf("pull orders: %w", err)
	}

	ids := make([]string, len(p.orders))
	for i, o := range p.orders {
		ids[i] = o.ID
	}
	if err := e.call(ctx, func(ctx context.Context) (err error) {
		p.items, err = backend.FetchItems(ctx, e.api, ids, e.cfg.BatchSize)
		return err
	}); err != nil {
		return p, fmt.Errorf("pull order items: %w", err)
	}
	return p, nil
}

// apply writes pulled data in one transaction. Orders still referenced by
// the queue keep their local state: their unsynced intent wins until it
// drains.
func (e *Engine) apply(ctx context.Context, p pulled, r *Result) error {
	pending, err := e.outbox.PendingOrderIDs(ctx)
	if err != nil {
		return err
	}

	return e.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.ReplaceMenu(ctx, p.menu); err != nil {
			return err
		}
		if err := tx.ReplaceTables(ctx, p.tables); err != nil {
			return err
		}
		r.MenuPulled, r.TablesPulled = len(p.menu), len(p.tables)

		for _, o := range p.orders {
			if pending[o.ID] {
				r.OrdersSkipped++
				continue
			}
			local, err := tx.GetOrder(ctx, o.ID)
			switch {
			case err == nil:
				o.DuplicateOf = local.DuplicateOf
			case !model.IsNotFound(err):
				return err
			}
			o.Synced = true
			if err := tx.PutOrder(ctx, o); err != nil {
				return err
			}
			if err := tx.ReplaceItems(ctx, o.ID, p.items[o.ID]); err != nil {
				return err
			}
			r.OrdersPulled++
		}
		return nil
	})
}

// quarantine flags every non-canonical active order on a shared table.
func (e *Engine) quarantine(ctx context.Context) ([]DuplicateGroup, error) {
	active, err := e.store.ActiveOrders(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := e.outbox.PendingOrderIDs(ctx)
	if err != nil {
		return nil, err
	}
	groups := DetectDuplicates(active, pending)
	if len(groups) == 0 {
		return []DuplicateGroup{}, nil
	}

	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, g := range groups {
			for _, id := range g.Duplicates {
				if err := tx.MarkDuplicate(ctx, id, g.Canonical); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		e.logger.Warn("duplicate active orders quarantined",
			"table_id", g.TableID,
			"canonical", g.Canonical,
			"duplicates", g.Duplicates)
	}
	return groups, nil
}

func (e *Engine) record(ctx context.Context, r Result) {
	result := audit.ResultOK
	switch {
	case r.PullError != "":
		result = audit.ResultFailed
	case len(r.Duplicates) > 0 || r.Drain.Stopped:
		result = audit.ResultPartial
	}
	err := e.audit.Record(ctx, audit.Entry{
		Action: "reconcile",
		Result: result,
		Metadata: map[string]any{
			"menu":             r.MenuPulled,
			"tables":           r.TablesPulled,
			"orders":           r.OrdersPulled,
			"orders_skipped":   r.OrdersSkipped,
			"duplicate_groups": len(r.Duplicates),
			"pull_error":       r.PullError,
		},
	})
	if err != nil {
		e.logger.Warn("audit record failed", "action", "reconcile", "error", err)
	}
}

// Duplicates returns every order currently quarantined.
func (e *Engine) Duplicates(ctx context.Context) ([]model.Order, error) {
	return e.store.Duplicates(ctx)
}

// Release clears the quarantine flag on an order after remediation. If the
// table still has another active order, the next pass flags one again.
func (e *Engine) Release(ctx context.Context, orderID string) error {
	return e.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return tx.MarkDuplicate(ctx, orderID, "")
	})
}

// LastResult returns the most recent completed pass.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// Trigger requests a pass, typically on reconnect. Triggers coalesce.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run reconciles on every trigger and every interval until ctx is done.
// A non-positive interval disables the timer.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.trigger:
		case <-tick:
		}
		if _, err := e.Reconcile(ctx); err != nil {
			e.logger.Error("reconcile failed", "error", err)
		}
	}
}
