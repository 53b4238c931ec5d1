package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/offpos/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
    id             TEXT PRIMARY KEY,
    table_id       TEXT NOT NULL,
    status         TEXT NOT NULL,
    subtotal       BIGINT NOT NULL DEFAULT 0,
    discount       BIGINT NOT NULL DEFAULT 0,
    total          BIGINT NOT NULL DEFAULT 0,
    paid           BOOLEAN NOT NULL DEFAULT FALSE,
    payment_method TEXT NOT NULL DEFAULT '',
    note           TEXT NOT NULL DEFAULT '',
    version        BIGINT NOT NULL DEFAULT 1,
    staff_id       TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status_updated ON orders(status, updated_at);

CREATE TABLE IF NOT EXISTS order_items (
    id           TEXT PRIMARY KEY,
    order_id     TEXT NOT NULL REFERENCES orders(id),
    menu_item_id TEXT NOT NULL,
    name         TEXT NOT NULL DEFAULT '',
    quantity     BIGINT NOT NULL CHECK (quantity > 0),
    price        BIGINT NOT NULL,
    note         TEXT NOT NULL DEFAULT '',
    position     INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id, position);

CREATE TABLE IF NOT EXISTS menu_items (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    price     BIGINT NOT NULL,
    category  TEXT NOT NULL DEFAULT '',
    available BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS tables (
    id    TEXT PRIMARY KEY,
    label TEXT NOT NULL
);
`

// Postgres is the PostgreSQL implementation of API.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ API = (*Postgres)(nil)

// ConnectPostgres opens a pool and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the backend tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classify(err) == ClassPermanent {
		return &PermanentError{Op: op, Err: err}
	}
	return &TransientError{Op: op, Err: err}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return wrap("ping", p.pool.Ping(ctx))
}

func (p *Postgres) UpsertOrders(ctx context.Context, orders []model.Order) error {
	batch := &pgx.Batch{}
	for _, o := range orders {
		batch.Queue(`
			INSERT INTO orders (id, table_id, status, subtotal, discount, total, paid,
				payment_method, note, version, staff_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				table_id = EXCLUDED.table_id,
				status = EXCLUDED.status,
				subtotal = EXCLUDED.subtotal,
				discount = EXCLUDED.discount,
				total = EXCLUDED.total,
				paid = EXCLUDED.paid,
				payment_method = EXCLUDED.payment_method,
				note = EXCLUDED.note,
				version = EXCLUDED.version,
				staff_id = EXCLUDED.staff_id,
				updated_at = EXCLUDED.updated_at
		`, o.ID, o.TableID, string(o.Status), o.Subtotal, o.Discount, o.Total, o.Paid,
			o.PaymentMethod, o.Note, o.Version, o.StaffID, o.CreatedAt, o.UpdatedAt)
	}
	br := p.pool.SendBatch(ctx, batch)
	for range orders {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return wrap("upsert_orders", err)
		}
	}
	return wrap("upsert_orders", br.Close())
}

func (p *Postgres) PatchOrder(ctx context.Context, patch model.OrderPatch) error {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE orders SET
			table_id = COALESCE($2::text, table_id),
			status = COALESCE($3::text, status),
			subtotal = COALESCE($4::bigint, subtotal),
			discount = COALESCE($5::bigint, discount),
			total = COALESCE($6::bigint, total),
			paid = COALESCE($7::boolean, paid),
			payment_method = COALESCE($8::text, payment_method),
			note = COALESCE($9::text, note),
			version = GREATEST(version, $10),
			updated_at = $11
		WHERE id = $1
	`, patch.ID, patch.TableID, status, patch.Subtotal, patch.Discount, patch.Total,
		patch.Paid, patch.PaymentMethod, patch.Note, patch.Version, patch.UpdatedAt)
	if err != nil {
		return wrap("patch_order", err)
	}
	if tag.RowsAffected() == 0 {
		return &PermanentError{Op: "patch_order", Err: fmt.Errorf("%w: order %s", ErrNotFound, patch.ID)}
	}
	return nil
}

func (p *Postgres) ReplaceOrderItems(ctx context.Context, orderID string, items []model.OrderItem) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return &PermanentError{Op: "replace_items", Err: fmt.Errorf("%w: order %s", ErrNotFound, orderID)}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
			return err
		}
		for i, it := range items {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_items (id, order_id, menu_item_id, name, quantity, price, note, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					order_id = EXCLUDED.order_id,
					menu_item_id = EXCLUDED.menu_item_id,
					name = EXCLUDED.name,
					quantity = EXCLUDED.quantity,
					price = EXCLUDED.price,
					note = EXCLUDED.note,
					position = EXCLUDED.position
			`, it.ID, orderID, it.MenuItemID, it.Name, it.Quantity, it.Price, it.Note, i)
			if err != nil {
				return err
			}
		}
		return nil
	})
	var pe *PermanentError
	if errors.As(err, &pe) {
		return err
	}
	return wrap("replace_items", err)
}

func (p *Postgres) UpsertMenuItems(ctx context.Context, items []model.MenuItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO menu_items (id, name, price, category, available)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				category = EXCLUDED.category,
				available = EXCLUDED.available
		`, it.ID, it.Name, it.Price, it.Category, it.Available)
	}
	return wrap("upsert_menu", p.pool.SendBatch(ctx, batch).Close())
}

func (p *Postgres) UpsertTables(ctx context.Context, tables []model.Table) error {
	batch := &pgx.Batch{}
	for _, tb := range tables {
		batch.Queue(`
			INSERT INTO tables (id, label) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label
		`, tb.ID, tb.Label)
	}
	return wrap("upsert_tables", p.pool.SendBatch(ctx, batch).Close())
}

func (p *Postgres) ListMenuItems(ctx context.Context) ([]model.MenuItem, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, price, category, available FROM menu_items ORDER BY id
	`)
	if err != nil {
		return nil, wrap("list_menu", err)
	}
	defer rows.Close()

	out := []model.MenuItem{}
	for rows.Next() {
		var m model.MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Category, &m.Available); err != nil {
			return nil, wrap("list_menu", err)
		}
		out = append(out, m)
	}
	return out, wrap("list_menu", rows.Err())
}

func (p *Postgres) ListTables(ctx context.Context) ([]model.Table, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, label FROM tables ORDER BY id`)
	if err != nil {
		return nil, wrap("list_tables", err)
	}
	defer rows.Close()

	out := []model.Table{}
	for rows.Next() {
		var tb model.Table
		if err := rows.Scan(&tb.ID, &tb.Label); err != nil {
			return nil, wrap("list_tables", err)
		}
		out = append(out, tb)
	}
	return out, wrap("list_tables", rows.Err())
}

func (p *Postgres) ListOrders(ctx context.Context, q OrderQuery) ([]model.Order, error) {
	statuses := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		statuses[i] = string(s)
	}
	var since any
	if !q.CompletedSince.IsZero() {
		since = q.CompletedSince
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, table_id, status, subtotal, discount, total, paid, payment_method,
			note, version, staff_id, created_at, updated_at
		FROM orders
		WHERE status = ANY($1)
		   OR ($2::timestamptz IS NOT NULL AND status = 'completed' AND updated_at >= $2::timestamptz)
		ORDER BY created_at, id
	`, statuses, since)
	if err != nil {
		return nil, wrap("list_orders", err)
	}
	defer rows.Close()

	out := []model.Order{}
	for rows.Next() {
		var (
			o      model.Order
			status string
		)
		err := rows.Scan(&o.ID, &o.TableID, &status, &o.Subtotal, &o.Discount, &o.Total, &o.Paid,
			&o.PaymentMethod, &o.Note, &o.Version, &o.StaffID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, wrap("list_orders", err)
		}
		o.Status = model.Status(status)
		o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
		out = append(out, o)
	}
	return out, wrap("list_orders", rows.Err())
}

func (p *Postgres) ListOrderItems(ctx context.Context, orderIDs []string) ([]model.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []model.OrderItem{}, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, order_id, menu_item_id, name, quantity, price, note
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position, id
	`, orderIDs)
	if err != nil {
		return nil, wrap("list_items", err)
	}
	defer rows.Close()

	out := []model.OrderItem{}
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.Price, &it.Note); err != nil {
			return nil, wrap("list_items", err)
		}
		out = append(out, it)
	}
	return out, wrap("list_items", rows.Err())
}
