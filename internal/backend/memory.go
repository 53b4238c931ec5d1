package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/offpos/internal/model"
)

// Memory is an in-process backend keyed by id. It is used by tests and by
// the CLI when no database is configured.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	orders map[string]model.Order
	items  map[string][]model.OrderItem
	menu   map[string]model.MenuItem
	tables map[string]model.Table

	// Fail, when set, is consulted before every call; a non-nil result is
	// returned instead of performing the call.
	Fail func(op string) error

	calls map[string]int
}

var _ API = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		orders: make(map[string]model.Order),
		items:  make(map[string][]model.OrderItem),
		menu:   make(map[string]model.MenuItem),
		tables: make(map[string]model.Table),
		calls:  make(map[string]int),
	}
}

func (m *Memory) enter(op string) error {
	m.calls[op]++
	if m.Fail != nil {
		return m.Fail(op)
	}
	return nil
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("ping")
}

func (m *Memory) UpsertOrders(ctx context.Context, orders []model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("upsert_orders"); err != nil {
		return err
	}
	for _, o := range orders {
		o.Synced, o.DuplicateOf = false, ""
		m.orders[o.ID] = o
	}
	return nil
}

func (m *Memory) PatchOrder(ctx context.Context, p model.OrderPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("patch_order"); err != nil {
		return err
	}
	o, ok := m.orders[p.ID]
	if !ok {
		return &PermanentError{Op: "patch_order", Err: fmt.Errorf("%w: order %s", ErrNotFound, p.ID)}
	}
	applyPatch(&o, p)
	m.orders[p.ID] = o
	return nil
}

func applyPatch(o *model.Order, p model.OrderPatch) {
	if p.TableID != nil {
		o.TableID = *p.TableID
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Subtotal != nil {
		o.Subtotal = *p.Subtotal
	}
	if p.Discount != nil {
		o.Discount = *p.Discount
	}
	if p.Total != nil {
		o.Total = *p.Total
	}
	if p.Paid != nil {
		o.Paid = *p.Paid
	}
	if p.PaymentMethod != nil {
		o.PaymentMethod = *p.PaymentMethod
	}
	if p.Note != nil {
		o.Note = *p.Note
	}
	if p.Version > o.Version {
		o.Version = p.Version
	}
	if !p.UpdatedAt.IsZero() {
		o.UpdatedAt = p.UpdatedAt
	}
}

func (m *Memory) ReplaceOrderItems(ctx context.Context, orderID string, items []model.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("replace_items"); err != nil {
		return err
	}
	if _, ok := m.orders[orderID]; !ok {
		return &PermanentError{Op: "replace_items", Err: fmt.Errorf("%w: order %s", ErrNotFound, orderID)}
	}
	// An item id is unique across orders; drop it from any previous owner.
	moved := make(map[string]bool, len(items))
	for _, it := range items {
		moved[it.ID] = true
	}
	for id, lines := range m.items {
		if id == orderID {
			continue
		}
		kept := lines[:0:0]
		for _, it := range lines {
			if !moved[it.ID] {
				kept = append(kept, it)
			}
		}
		m.items[id] = kept
	}
	cp := make([]model.OrderItem, len(items))
	for i, it := range items {
		it.OrderID = orderID
		cp[i] = it
	}
	m.items[orderID] = cp
	return nil
}

func (m *Memory) UpsertMenuItems(ctx context.Context, items []model.MenuItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("upsert_menu"); err != nil {
		return err
	}
	for _, it := range items {
		it.PendingCreate = false
		m.menu[it.ID] = it
	}
	return nil
}

func (m *Memory) UpsertTables(ctx context.Context, tables []model.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("upsert_tables"); err != nil {
		return err
	}
	for _, tb := range tables {
		tb.PendingCreate = false
		m.tables[tb.ID] = tb
	}
	return nil
}

// DeleteMenuItem removes a menu entry, as another device might.
func (m *Memory) DeleteMenuItem(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.menu, id)
}

func (m *Memory) ListMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_menu"); err != nil {
		return nil, err
	}
	out := make([]model.MenuItem, 0, len(m.menu))
	for _, it := range m.menu {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListTables(ctx context.Context) ([]model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_tables"); err != nil {
		return nil, err
	}
	out := make([]model.Table, 0, len(m.tables))
	for _, tb := range m.tables {
		out = append(out, tb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListOrders(ctx context.Context, q OrderQuery) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_orders"); err != nil {
		return nil, err
	}
	want := make(map[model.Status]bool, len(q.Statuses))
	for _, s := range q.Statuses {
		want[s] = true
	}
	out := []model.Order{}
	for _, o := range m.orders {
		switch {
		case want[o.Status]:
		case !q.CompletedSince.IsZero() && o.Status == model.StatusCompleted && !o.UpdatedAt.Before(q.CompletedSince):
		default:
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListOrderItems(ctx context.Context, orderIDs []string) ([]model.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_items"); err != nil {
		return nil, err
	}
	out := []model.OrderItem{}
	for _, id := range orderIDs {
		out = append(out, m.items[id]...)
	}
	return out, nil
}

// Order returns the stored remote copy of an order, for assertions.
func (m *Memory) Order(id string) (model.Order, []model.OrderItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	items := append([]model.OrderItem(nil), m.items[id]...)
	return o, items, ok
}

// OrderCount returns the number of remote orders.
func (m *Memory) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Seed stores records directly, bypassing failure injection.
func (m *Memory) Seed(orders []model.Order, items []model.OrderItem, menu []model.MenuItem, tables []model.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	for _, it := range items {
		m.items[it.OrderID] = append(m.items[it.OrderID], it)
	}
	for _, it := range menu {
		m.menu[it.ID] = it
	}
	for _, tb := range tables {
		m.tables[tb.ID] = tb
	}
}
