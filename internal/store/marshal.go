package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/offpos/internal/model"
)

// Timestamps are stored as INTEGER unix nanoseconds (UTC).
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const orderColumns = `id, table_id, status, subtotal, discount, total, paid, payment_method,
	note, version, staff_id, created_at, updated_at, synced, duplicate_of`

func scanOrder(r rowScanner) (model.Order, error) {
	var (
		o                  model.Order
		status             string
		paid, synced       int
		createdAt, updated int64
	)
	err := r.Scan(&o.ID, &o.TableID, &status, &o.Subtotal, &o.Discount, &o.Total, &paid,
		&o.PaymentMethod, &o.Note, &o.Version, &o.StaffID, &createdAt, &updated, &synced, &o.DuplicateOf)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = model.Status(status)
	o.Paid = paid != 0
	o.Synced = synced != 0
	o.CreatedAt = fromNanos(createdAt)
	o.UpdatedAt = fromNanos(updated)
	return o, nil
}

func scanOrders(rows *sql.Rows) ([]model.Order, error) {
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

const itemColumns = `id, order_id, menu_item_id, name, quantity, price, note`

func scanItems(rows *sql.Rows) ([]model.OrderItem, error) {
	defer rows.Close()

	items := []model.OrderItem{}
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.Price, &it.Note); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

const queueColumns = `seq, id, op, order_id, payload, retry_count, last_error, created_at`

func scanQueueEntries(rows *sql.Rows) ([]model.QueueEntry, error) {
	defer rows.Close()

	entries := []model.QueueEntry{}
	for rows.Next() {
		var (
			e         model.QueueEntry
			op        string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &op, &e.OrderID, &payload, &e.RetryCount, &e.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.Op = model.Op(op)
		e.Payload = []byte(payload)
		e.CreatedAt = fromNanos(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	return entries, nil
}
