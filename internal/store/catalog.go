package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/offpos/internal/events"
	"github.com/roach88/offpos/internal/model"
)

// ListMenu returns the cached menu ordered by id.
func (s *Store) ListMenu(ctx context.Context) ([]model.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, category, available, pending_create
		FROM menu_items
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query menu: %w", err)
	}
	defer rows.Close()

	items := []model.MenuItem{}
	for rows.Next() {
		var (
			m                  model.MenuItem
			available, pending int
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Category, &available, &pending); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		m.Available = available != 0
		m.PendingCreate = pending != 0
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu: %w", err)
	}
	return items, nil
}

// GetMenuItem reads one cached menu entry. ok is false when the entry is
// gone, in which case callers fall back to the line's snapshot name.
func (s *Store) GetMenuItem(ctx context.Context, id string) (m model.MenuItem, ok bool, err error) {
	return getMenuItem(ctx, s.db, id)
}

// GetMenuItem reads one cached menu entry inside the transaction.
func (t *Tx) GetMenuItem(ctx context.Context, id string) (m model.MenuItem, ok bool, err error) {
	return getMenuItem(ctx, t.tx, id)
}

func getMenuItem(ctx context.Context, q querier, id string) (m model.MenuItem, ok bool, err error) {
	var available, pending int
	err = q.QueryRowContext(ctx, `
		SELECT id, name, price, category, available, pending_create FROM menu_items WHERE id = ?
	`, id).Scan(&m.ID, &m.Name, &m.Price, &m.Category, &available, &pending)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MenuItem{}, false, nil
	}
	if err != nil {
		return model.MenuItem{}, false, fmt.Errorf("read menu item: %w", err)
	}
	m.Available = available != 0
	m.PendingCreate = pending != 0
	return m, true, nil
}

// ListTables returns the cached tables ordered by id.
func (s *Store) ListTables(ctx context.Context) ([]model.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, pending_create FROM tables ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	tables := []model.Table{}
	for rows.Next() {
		var (
			tb      model.Table
			pending int
		)
		if err := rows.Scan(&tb.ID, &tb.Label, &pending); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tb.PendingCreate = pending != 0
		tables = append(tables, tb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

// KnownTable reports whether tableID may be referenced by an order. An
// empty tables cache means the device has never loaded its floor plan, and
// every id is accepted until it does.
func (t *Tx) KnownTable(ctx context.Context, tableID string) (bool, error) {
	var known, total int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(id = ?), 0), COUNT(*) FROM tables
	`, tableID).Scan(&known, &total)
	if err != nil {
		return false, fmt.Errorf("read tables: %w", err)
	}
	return total == 0 || known > 0, nil
}

// PutMenuItem inserts or updates one menu entry.
func (t *Tx) PutMenuItem(ctx context.Context, m model.MenuItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO menu_items (id, name, price, category, available, pending_create)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			category = excluded.category,
			available = excluded.available,
			pending_create = excluded.pending_create
	`, m.ID, m.Name, m.Price, m.Category, boolInt(m.Available), boolInt(m.PendingCreate))
	if err != nil {
		return fmt.Errorf("write menu item: %w", err)
	}
	t.touch(events.MenuItems)
	return nil
}

// PutTable inserts or updates one table.
func (t *Tx) PutTable(ctx context.Context, tb model.Table) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tables (id, label, pending_create) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			pending_create = excluded.pending_create
	`, tb.ID, tb.Label, boolInt(tb.PendingCreate))
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	t.touch(events.Tables)
	return nil
}

// ReplaceMenu swaps the whole menu cache for pulled, keeping entries still
// pending creation locally unless the pull now contains them.
func (t *Tx) ReplaceMenu(ctx context.Context, pulled []model.MenuItem) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM menu_items WHERE pending_create = 0`); err != nil {
		return fmt.Errorf("replace menu: delete: %w", err)
	}
	for _, m := range pulled {
		m.PendingCreate = false
		if err := t.PutMenuItem(ctx, m); err != nil {
			return fmt.Errorf("replace menu: %w", err)
		}
	}
	t.touch(events.MenuItems)
	return nil
}

// ReplaceTables swaps the whole table cache, keeping pending local creations.
func (t *Tx) ReplaceTables(ctx context.Context, pulled []model.Table) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM tables WHERE pending_create = 0`); err != nil {
		return fmt.Errorf("replace tables: delete: %w", err)
	}
	for _, tb := range pulled {
		tb.PendingCreate = false
		if err := t.PutTable(ctx, tb); err != nil {
			return fmt.Errorf("replace tables: %w", err)
		}
	}
	t.touch(events.Tables)
	return nil
}

// AckMenuItem clears the pending-create flag once the backend has the entry.
func (s *Store) AckMenuItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE menu_items SET pending_create = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ack menu item: %w", err)
	}
	return nil
}

// AckTable clears the pending-create flag on a table.
func (s *Store) AckTable(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE tables SET pending_create = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ack table: %w", err)
	}
	return nil
}
