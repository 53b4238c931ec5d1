// Package lifecycle is the public operation surface for orders.
//
// Every operation writes locally first: it re-reads current state inside a
// store transaction, applies the change, and enqueues the matching remote
// operations in that same transaction. The drain is poked and print side
// effects fire only after commit. A later sync failure never rolls back a
// committed local write.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/offpos/internal/ids"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/printing"
	"github.com/roach88/offpos/internal/store"
)

// Outbox receives remote operations. Implemented by *outbox.Queue.
type Outbox interface {
	EnqueueTx(ctx context.Context, tx *store.Tx, op model.Op, orderID string, payload any) (model.QueueEntry, error)
	Poke()
}

// Printer receives tickets after commit. Implemented by *printing.Dispatcher.
type Printer interface {
	Dispatch(t printing.Ticket)
}

// Manager runs order operations against the local store.
//
// Thread-safety: all methods are safe for concurrent use. The store
// serializes transactions, and every operation re-reads the order it
// changes, so interleaved calls never lose updates.
type Manager struct {
	store   *store.Store
	outbox  Outbox
	printer Printer
	ids     ids.Generator
	now     func() time.Time
	logger  *slog.Logger
	staffID string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrinter sets the print dispatcher. Without one, tickets are dropped.
func WithPrinter(p Printer) Option {
	return func(m *Manager) { m.printer = p }
}

// WithIDs sets the id generator for orders and lines.
func WithIDs(g ids.Generator) Option {
	return func(m *Manager) {
		if g != nil {
			m.ids = g
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStaff stamps new orders with a staff identity.
func WithStaff(staffID string) Option {
	return func(m *Manager) { m.staffID = staffID }
}

// New creates a Manager.
func New(st *store.Store, ob Outbox, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		outbox: ob,
		ids:    ids.UUIDv7{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type printJob struct {
	action printing.Action
	order  model.Order
	items  []model.OrderItem
}

// commit runs fn in a transaction and, once it commits, pokes the drain and
// dispatches the print jobs fn collected.
func (m *Manager) commit(ctx context.Context, fn func(tx *store.Tx, jobs *[]printJob) error) error {
	var jobs []printJob
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		jobs = jobs[:0]
		return fn(tx, &jobs)
	})
	if err != nil {
		return err
	}
	if m.outbox != nil {
		m.outbox.Poke()
	}
	m.print(ctx, jobs...)
	return nil
}

func (m *Manager) print(ctx context.Context, jobs ...printJob) {
	if m.printer == nil || len(jobs) == 0 {
		return
	}
	lookupCtx := context.WithoutCancel(ctx)
	lookup := func(id string) (string, bool) {
		mi, ok, err := m.store.GetMenuItem(lookupCtx, id)
		if err != nil || !ok {
			return "", false
		}
		return mi.Name, true
	}
	for _, j := range jobs {
		m.printer.Dispatch(printing.BuildTicket(j.action, j.order, j.items, lookup, m.now()))
	}
}

// loadMutable reads an order that item and status mutations may change.
func loadMutable(ctx context.Context, tx *store.Tx, id string) (model.Order, []model.OrderItem, error) {
	o, err := tx.GetOrder(ctx, id)
	if err != nil {
		return model.Order{}, nil, err
	}
	if o.Status.Terminal() {
		return model.Order{}, nil, model.Terminal(o)
	}
	items, err := tx.ListItems(ctx, id)
	if err != nil {
		return model.Order{}, nil, err
	}
	return o, items, nil
}

// bump marks a queued mutation: version and updated_at move forward and the
// order is unsynced until the queue drains.
func (m *Manager) bump(o *model.Order) {
	o.Version++
	o.UpdatedAt = m.now().UTC()
	o.Synced = false
}

// resolveLines validates requested lines and snapshots name and price from
// the cached menu. A line for a menu entry the cache does not know must
// carry its own snapshot name.
func resolveLines(ctx context.Context, tx *store.Tx, lines []model.OrderItem) ([]model.OrderItem, error) {
	out := make([]model.OrderItem, 0, len(lines))
	for i, it := range lines {
		if it.MenuItemID == "" {
			return nil, model.Invalid("line %d: menu item is required", i+1)
		}
		if it.Quantity <= 0 {
			return nil, model.Invalid("line %d: quantity must be positive, got %d", i+1, it.Quantity)
		}
		mi, ok, err := tx.GetMenuItem(ctx, it.MenuItemID)
		if err != nil {
			return nil, err
		}
		switch {
		case ok && !mi.Available:
			return nil, model.Invalid("menu item %q is unavailable", it.MenuItemID)
		case ok:
			it.Name, it.Price = mi.Name, mi.Price
		case it.Name == "":
			return nil, model.Invalid("unknown menu item %q", it.MenuItemID)
		}
		if it.Price < 0 {
			return nil, model.Invalid("line %d: negative price", i+1)
		}
		out = append(out, it)
	}
	return out, nil
}

func own(orderID string, items []model.OrderItem) []model.OrderItem {
	for i := range items {
		items[i].OrderID = orderID
	}
	return items
}

// basePatch carries the concurrency marker every patch needs.
func basePatch(o model.Order) model.OrderPatch {
	return model.OrderPatch{ID: o.ID, Version: o.Version, UpdatedAt: o.UpdatedAt}
}

func withTotals(p model.OrderPatch, o model.Order) model.OrderPatch {
	p.Subtotal, p.Discount, p.Total = &o.Subtotal, &o.Discount, &o.Total
	return p
}

func withStatus(p model.OrderPatch, o model.Order) model.OrderPatch {
	p.Status = &o.Status
	return p
}

func (m *Manager) enqueuePatch(ctx context.Context, tx *store.Tx, p model.OrderPatch) error {
	_, err := m.outbox.EnqueueTx(ctx, tx, model.OpOrderPatch, p.ID, p)
	return err
}

func (m *Manager) enqueueItems(ctx context.Context, tx *store.Tx, orderID string, items []model.OrderItem) error {
	if items == nil {
		items = []model.OrderItem{}
	}
	_, err := m.outbox.EnqueueTx(ctx, tx, model.OpItemsReplace, orderID, model.ItemSet{OrderID: orderID, Items: items})
	return err
}

// save writes the order and, when items is non-nil, its full line set.
func save(ctx context.Context, tx *store.Tx, o model.Order, items []model.OrderItem) error {
	if err := tx.PutOrder(ctx, o); err != nil {
		return err
	}
	if items == nil {
		return nil
	}
	return tx.ReplaceItems(ctx, o.ID, items)
}
