package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/offpos/internal/events"
	"github.com/roach88/offpos/internal/model"
)

// OrderFilter narrows ListOrders. Zero value lists every order.
type OrderFilter struct {
	Statuses          []model.Status
	TableID           string
	UpdatedSince      time.Time
	IncludeDuplicates bool
}

func getOrder(ctx context.Context, q querier, id string) (model.Order, error) {
	row := q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.NotFound(id)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("read order: %w", err)
	}
	return o, nil
}

func activeOrderForTable(ctx context.Context, q querier, tableID string) (model.Order, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE table_id = ? AND status IN (?, ?, ?) AND duplicate_of = ''
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tableID, model.StatusPending, model.StatusCooking, model.StatusReady)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, fmt.Errorf("read active order: %w", err)
	}
	return o, true, nil
}

func listOrders(ctx context.Context, q querier, f OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.TableID != "" {
		where = append(where, "table_id = ?")
		args = append(args, f.TableID)
	}
	if !f.UpdatedSince.IsZero() {
		where = append(where, "updated_at >= ?")
		args = append(args, toNanos(f.UpdatedSince))
	}
	if !f.IncludeDuplicates {
		where = append(where, "duplicate_of = ''")
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id COLLATE BINARY ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return scanOrders(rows)
}

func listItems(ctx context.Context, q querier, orderID string) ([]model.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = ?
		ORDER BY position ASC, id COLLATE BINARY ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	return scanItems(rows)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// GetOrder reads one order. Returns a model NOT_FOUND error if missing.
func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return getOrder(ctx, s.db, id)
}

// ListItems returns an order's lines in display order.
func (s *Store) ListItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	return listItems(ctx, s.db, orderID)
}

// ListOrders returns orders matching f, oldest first.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	return listOrders(ctx, s.db, f)
}

// ActiveOrders returns every operational order that is not quarantined.
func (s *Store) ActiveOrders(ctx context.Context) ([]model.Order, error) {
	return listOrders(ctx, s.db, OrderFilter{Statuses: model.OperationalStatuses})
}

// ActiveOrderForTable returns the live order for a table, if any.
func (s *Store) ActiveOrderForTable(ctx context.Context, tableID string) (model.Order, bool, error) {
	return activeOrderForTable(ctx, s.db, tableID)
}

// Duplicates returns every order quarantined as a duplicate.
func (s *Store) Duplicates(ctx context.Context) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE duplicate_of <> ''
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query duplicates: %w", err)
	}
	return scanOrders(rows)
}

// GetOrder reads one order inside the transaction.
func (t *Tx) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return getOrder(ctx, t.tx, id)
}

// ListItems reads an order's lines inside the transaction.
func (t *Tx) ListItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	return listItems(ctx, t.tx, orderID)
}

// ListOrders reads orders inside the transaction.
func (t *Tx) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	return listOrders(ctx, t.tx, f)
}

// ActiveOrderForTable reads a table's live order inside the transaction.
func (t *Tx) ActiveOrderForTable(ctx context.Context, tableID string) (model.Order, bool, error) {
	return activeOrderForTable(ctx, t.tx, tableID)
}

// PutOrder inserts or fully overwrites an order row, keyed by id.
func (t *Tx) PutOrder(ctx context.Context, o model.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			table_id = excluded.table_id,
			status = excluded.status,
			subtotal = excluded.subtotal,
			discount = excluded.discount,
			total = excluded.total,
			paid = excluded.paid,
			payment_method = excluded.payment_method,
			note = excluded.note,
			version = excluded.version,
			staff_id = excluded.staff_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			synced = excluded.synced,
			duplicate_of = excluded.duplicate_of
	`,
		o.ID, o.TableID, string(o.Status), o.Subtotal, o.Discount, o.Total, boolInt(o.Paid),
		o.PaymentMethod, o.Note, o.Version, o.StaffID, toNanos(o.CreatedAt), toNanos(o.UpdatedAt),
		boolInt(o.Synced), o.DuplicateOf,
	)
	if err != nil {
		return fmt.Errorf("write order: %w", err)
	}
	t.touch(events.Orders, o.ID)
	return nil
}

// ReplaceItems deletes every line of orderID and inserts items in order.
// Each item's OrderID is forced to orderID.
func (t *Tx) ReplaceItems(ctx context.Context, orderID string, items []model.OrderItem) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("replace order items: delete: %w", err)
	}

	for i, it := range items {
		// An item id is global; a line moved here from another order
		// must leave that order.
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, menu_item_id, name, quantity, price, note, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				order_id = excluded.order_id,
				menu_item_id = excluded.menu_item_id,
				name = excluded.name,
				quantity = excluded.quantity,
				price = excluded.price,
				note = excluded.note,
				position = excluded.position
		`, it.ID, orderID, it.MenuItemID, it.Name, it.Quantity, it.Price, it.Note, i)
		if err != nil {
			return fmt.Errorf("replace order items: insert %s: %w", it.ID, err)
		}
	}

	t.touch(events.OrderItems, orderID)
	return nil
}

// MarkDuplicate sets or clears (canonicalID == "") the quarantine flag.
func (t *Tx) MarkDuplicate(ctx context.Context, orderID, canonicalID string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE orders SET duplicate_of = ? WHERE id = ?`, canonicalID, orderID)
	if err != nil {
		return fmt.Errorf("mark duplicate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound(orderID)
	}
	t.touch(events.Orders, orderID)
	return nil
}

// MarkSynced flags an order as synced when no queue entry still refers to it.
func (s *Store) MarkSynced(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET synced = 1
		WHERE id = ? AND synced = 0
		AND NOT EXISTS (SELECT 1 FROM offline_queue WHERE order_id = ?)
	`, orderID, orderID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publish(events.Change{Collections: []events.Collection{events.Orders}, OrderIDs: []string{orderID}})
	}
	return nil
}
