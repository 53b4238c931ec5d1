package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/offpos/internal/events"
)

// querier is satisfied by both *sql.DB and *sql.Tx so reads can run inside
// or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a local store transaction. It records which collections were
// written so the change can be published after commit.
type Tx struct {
	tx     *sql.Tx
	change events.Change
	seen   map[events.Collection]bool
	orders map[string]bool
}

func (t *Tx) touch(col events.Collection, orderIDs ...string) {
	if !t.seen[col] {
		t.seen[col] = true
		t.change.Collections = append(t.change.Collections, col)
	}
	for _, id := range orderIDs {
		if id == "" || t.orders[id] {
			continue
		}
		t.orders[id] = true
		t.change.OrderIDs = append(t.change.OrderIDs, id)
	}
}

// WithTx runs fn inside one transaction. Any error returned by fn, or a
// panic, rolls back every write; nothing is published in that case.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	t := &Tx{
		tx:     sqlTx,
		seen:   make(map[events.Collection]bool),
		orders: make(map[string]bool),
	}
	if err := fn(t); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.publish(t.change)
	return nil
}
