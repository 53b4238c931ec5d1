// Package outbox implements the durable outbound queue.
//
// Every local mutation enqueues the remote operations that describe it in
// the same SQLite transaction as the write itself. Drain replays entries
// against the backend in strict seq order.
//
// Thread-safety model:
//   - Enqueue, EnqueueTx, Poke, Status: safe from any goroutine
//   - Drain: safe from any goroutine; concurrent calls collapse to one pass
//   - Run: call from exactly one goroutine
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/offpos/internal/audit"
	"github.com/roach88/offpos/internal/backend"
	"github.com/roach88/offpos/internal/ids"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/store"
)

// Defaults for Config.
const (
	DefaultMaxRetries = 5
	DefaultTimeout    = 15 * time.Second
)

// Config bounds retries and remote calls.
type Config struct {
	// MaxRetries is the attempt ceiling for permanently failing entries.
	MaxRetries int
	// Timeout bounds each remote apply.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Connectivity reports whether the backend is plausibly reachable.
// The network gatekeeper lives outside this package.
type Connectivity interface {
	Online() bool
}

// OnlineFunc adapts a function to Connectivity.
type OnlineFunc func() bool

func (f OnlineFunc) Online() bool { return f() }

// Switch is a settable Connectivity.
type Switch struct {
	offline atomic.Bool
}

// NewSwitch creates a switch in the given state.
func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.Set(online)
	return s
}

// Set changes the reported state.
func (s *Switch) Set(online bool) { s.offline.Store(!online) }

func (s *Switch) Online() bool { return !s.offline.Load() }

// Queue is the outbound queue.
type Queue struct {
	store  *store.Store
	api    backend.API
	conn   Connectivity
	audit  audit.Recorder
	logger *slog.Logger
	ids    ids.Generator
	now    func() time.Time
	cfg    Config

	draining sync.Mutex
	poke     chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithConfig sets retry and timeout limits.
func WithConfig(cfg Config) Option {
	return func(q *Queue) { q.cfg = cfg.withDefaults() }
}

// WithConnectivity sets the gatekeeper consulted by unforced drains.
func WithConnectivity(c Connectivity) Option {
	return func(q *Queue) { q.conn = c }
}

// WithAudit sets the recorder for drain outcomes.
func WithAudit(r audit.Recorder) Option {
	return func(q *Queue) {
		if r != nil {
			q.audit = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithIDs sets the entry id generator.
func WithIDs(g ids.Generator) Option {
	return func(q *Queue) {
		if g != nil {
			q.ids = g
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New creates a queue over st that applies entries to api.
func New(st *store.Store, api backend.API, opts ...Option) *Queue {
	q := &Queue{
		store:  st,
		api:    api,
		audit:  audit.Nop{},
		logger: slog.Default(),
		ids:    ids.UUIDv7{},
		now:    time.Now,
		cfg:    Config{}.withDefaults(),
		poke:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueTx appends an entry inside an open store transaction. The entry
// becomes visible to Drain only if the transaction commits.
func (q *Queue) EnqueueTx(ctx context.Context, tx *store.Tx, op model.Op, orderID string, payload any) (model.QueueEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("marshal %s payload: %w", op, err)
	}
	e := model.QueueEntry{
		ID:        q.ids.Generate(),
		Op:        op,
		OrderID:   orderID,
		Payload:   data,
		CreatedAt: q.now().UTC(),
	}
	seq, err := tx.Enqueue(ctx, e)
	if err != nil {
		return model.QueueEntry{}, err
	}
	e.Seq = seq
	return e, nil
}

// Enqueue appends an entry in its own transaction. It never contacts the
// backend.
func (q *Queue) Enqueue(ctx context.Context, op model.Op, orderID string, payload any) (model.QueueEntry, error) {
	var e model.QueueEntry
	err := q.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		e, err = q.EnqueueTx(ctx, tx, op, orderID, payload)
		return err
	})
	return e, err
}

// Poke requests a drain without waiting for it. Pokes coalesce: any number
// of pokes before the next pass yield one pass.
func (q *Queue) Poke() {
	select {
	case q.poke <- struct{}{}:
	default:
	}
}

// Run drains on every poke and every interval until ctx is done.
// A non-positive interval disables the timer.
func (q *Queue) Run(ctx context.Context, interval time.Duration) error {
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
		case <-q.poke:
		case <-tick:
		}
		if _, err := q.Drain(ctx, false); err != nil {
			q.logger.Error("drain failed", "error", err)
		}
	}
}

// PendingOrderIDs returns the ids of orders still referenced by queued
// entries.
func (q *Queue) PendingOrderIDs(ctx context.Context) (map[string]bool, error) {
	return q.store.QueuedOrderIDs(ctx)
}
