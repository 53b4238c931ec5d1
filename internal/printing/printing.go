// Package printing hands order snapshots to the print subsystem.
//
// Printing is a side effect of a committed mutation. It runs fire-and-forget:
// a failed or slow printer never blocks or reverses the write that caused it.
package printing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/offpos/internal/model"
)

// Action tags why a ticket is printed.
type Action string

const (
	ActionProvisional Action = "provisional"
	ActionEditReprint Action = "edit_reprint"
	ActionFinal       Action = "final"
	ActionTest        Action = "test"
)

// Line is one resolved ticket line.
type Line struct {
	Name     string `json:"name"`
	Note     string `json:"note,omitempty"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
	Amount   int64  `json:"amount"`
}

// Ticket is a fully resolved order snapshot.
type Ticket struct {
	Action        Action       `json:"action"`
	OrderID       string       `json:"order_id"`
	TableID       string       `json:"table_id"`
	Status        model.Status `json:"status"`
	Lines         []Line       `json:"lines"`
	Subtotal      int64        `json:"subtotal_amount"`
	Discount      int64        `json:"discount_amount"`
	Total         int64        `json:"total_amount"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	Version       int64        `json:"version"`
	PrintedAt     time.Time    `json:"printed_at"`
}

// MenuLookup resolves a menu item id to its current display name. ok is
// false when the entry has been deleted.
type MenuLookup func(menuItemID string) (name string, ok bool)

// BuildTicket resolves an order and its lines into a Ticket. Line names
// come from the live menu when the entry still exists and fall back to the
// snapshot name otherwise; prices are always the snapshot.
func BuildTicket(action Action, o model.Order, items []model.OrderItem, lookup MenuLookup, at time.Time) Ticket {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		name := it.Name
		if lookup != nil {
			if live, ok := lookup(it.MenuItemID); ok && live != "" {
				name = live
			}
		}
		lines = append(lines, Line{
			Name:     name,
			Note:     it.Note,
			Quantity: it.Quantity,
			Price:    it.Price,
			Amount:   it.LineTotal(),
		})
	}
	return Ticket{
		Action:        action,
		OrderID:       o.ID,
		TableID:       o.TableID,
		Status:        o.Status,
		Lines:         lines,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
		Version:       o.Version,
		PrintedAt:     at.UTC(),
	}
}

// Printer delivers a ticket to a device or queue.
type Printer interface {
	Print(ctx context.Context, t Ticket) error
}

// PrinterFunc adapts a function to Printer.
type PrinterFunc func(ctx context.Context, t Ticket) error

func (f PrinterFunc) Print(ctx context.Context, t Ticket) error { return f(ctx, t) }

// DefaultTimeout bounds a single print attempt.
const DefaultTimeout = 10 * time.Second

// Dispatcher runs prints in the background.
//
// Thread-safety: Dispatch is safe from any goroutine.
type Dispatcher struct {
	printer Printer
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for print failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTimeout bounds each print attempt.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher. A nil printer discards tickets.
func NewDispatcher(p Printer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{printer: p, logger: slog.Default(), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch prints t in the background. It never blocks on the printer and
// never reports an error to the caller; failures are logged.
func (d *Dispatcher) Dispatch(t Ticket) {
	if d == nil || d.printer == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("printer panicked", "order_id", t.OrderID, "action", t.Action, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.printer.Print(ctx, t); err != nil {
			d.logger.Warn("print failed", "order_id", t.OrderID, "action", t.Action, "error", err)
			return
		}
		d.logger.Debug("printed", "order_id", t.OrderID, "action", t.Action)
	}()
}

// Wait blocks until every dispatched print has finished.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// LogPrinter writes tickets to a logger instead of a device.
type LogPrinter struct {
	Logger *slog.Logger
}

func (p LogPrinter) Print(ctx context.Context, t Ticket) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "ticket",
		"action", t.Action, "order_id", t.OrderID, "table_id", t.TableID,
		"lines", len(t.Lines), "total", t.Total)
	return nil
}

// Recorder keeps every ticket in memory. Used in tests.
type Recorder struct {
	mu      sync.Mutex
	tickets []Ticket
}

func (r *Recorder) Print(_ context.Context, t Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = append(r.tickets, t)
	return nil
}

// Tickets returns a copy of the recorded tickets.
func (r *Recorder) Tickets() []Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Ticket(nil), r.tickets...)
}

// Actions returns the action of every recorded ticket in order.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.tickets))
	for i, t := range r.tickets {
		out[i] = t.Action
	}
	return out
}
