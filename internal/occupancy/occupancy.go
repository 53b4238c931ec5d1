// Package occupancy derives table occupancy from the local store.
//
// Occupancy is never stored: a table is occupied iff an operational,
// non-quarantined order references it. The view recomputes from the store
// whenever the orders collection changes.
package occupancy

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/offpos/internal/events"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/store"
)

// Ref is the order holding a table.
type Ref struct {
	OrderID string       `json:"order_id"`
	Status  model.Status `json:"status"`
	Total   int64        `json:"total_amount"`
	Since   time.Time    `json:"since"`
}

// TableState is one row of the floor plan.
type TableState struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Occupied bool   `json:"occupied"`
	Order    *Ref   `json:"order,omitempty"`
}

// View is a live occupancy map.
//
// Thread-safety: Snapshot, Occupied and Board are safe from any goroutine.
type View struct {
	store  *store.Store
	logger *slog.Logger

	mu   sync.RWMutex
	snap map[string]Ref
}

// New creates a view. Call Refresh or Start to populate it.
func New(st *store.Store, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{store: st, logger: logger, snap: map[string]Ref{}}
}

// Refresh recomputes the view from the store.
func (v *View) Refresh(ctx context.Context) error {
	active, err := v.store.ActiveOrders(ctx)
	if err != nil {
		return err
	}
	// Ordered by created_at ascending, so the newest order wins a shared
	// table, matching ActiveOrderForTable.
	snap := make(map[string]Ref, len(active))
	for _, o := range active {
		if model.IsTakeaway(o.TableID) {
			continue
		}
		snap[o.TableID] = Ref{OrderID: o.ID, Status: o.Status, Total: o.Total, Since: o.CreatedAt}
	}

	v.mu.Lock()
	v.snap = snap
	v.mu.Unlock()
	return nil
}

// Start refreshes once, then on every orders change until ctx is done. It
// returns after the initial refresh. The store must have been opened with
// a bus.
func (v *View) Start(ctx context.Context) error {
	bus := v.store.Bus()
	if bus == nil {
		return errors.New("occupancy: store has no change bus")
	}
	changes, cancel := bus.Subscribe(events.Orders)
	if err := v.Refresh(ctx); err != nil {
		cancel()
		return err
	}
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
					v.logger.Error("occupancy refresh failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// Snapshot returns a copy of table id → holding order.
func (v *View) Snapshot() map[string]Ref {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]Ref, len(v.snap))
	for k, r := range v.snap {
		out[k] = r
	}
	return out
}

// Occupied reports whether tableID holds an active order.
func (v *View) Occupied(tableID string) (Ref, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.snap[tableID]
	return r, ok
}

// Board joins the cached tables with the current snapshot, sorted by id.
// Tables referenced by orders but missing from the cache are included.
func (v *View) Board(ctx context.Context) ([]TableState, error) {
	tables, err := v.store.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	snap := v.Snapshot()

	out := make([]TableState, 0, len(tables))
	seen := make(map[string]bool, len(tables))
	for _, tb := range tables {
		seen[tb.ID] = true
		out = append(out, state(tb.ID, tb.Label, snap))
	}
	for id := range snap {
		if !seen[id] {
			out = append(out, state(id, id, snap))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func state(id, label string, snap map[string]Ref) TableState {
	ts := TableState{ID: id, Label: label}
	if r, ok := snap[id]; ok {
		ts.Occupied = true
		ts.Order = &r
	}
	return ts
}
