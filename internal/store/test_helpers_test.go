package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/offpos/internal/model"
)

var testEpoch = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOrder creates an order with minimal required fields.
func createTestOrder(id, tableID string, status model.Status, createdOffset time.Duration) model.Order {
	created := testEpoch.Add(createdOffset)
	return model.Order{
		ID:        id,
		TableID:   tableID,
		Status:    status,
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func createTestItem(id, orderID, menu string, qty, price int64) model.OrderItem {
	return model.OrderItem{ID: id, OrderID: orderID, MenuItemID: menu, Name: menu, Quantity: qty, Price: price}
}

func putOrder(t *testing.T, s *Store, o model.Order, items ...model.OrderItem) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.PutOrder(context.Background(), o); err != nil {
			return err
		}
		return tx.ReplaceItems(context.Background(), o.ID, items)
	})
	if err != nil {
		t.Fatalf("putOrder(%s) failed: %v", o.ID, err)
	}
}

func enqueue(t *testing.T, s *Store, id string, op model.Op, orderID string) int64 {
	t.Helper()
	var seq int64
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		var err error
		seq, err = tx.Enqueue(context.Background(), model.QueueEntry{
			ID:        id,
			Op:        op,
			OrderID:   orderID,
			Payload:   []byte(fmt.Sprintf(`{"id":%q}`, orderID)),
			CreatedAt: testEpoch,
		})
		return err
	})
	if err != nil {
		t.Fatalf("enqueue(%s) failed: %v", id, err)
	}
	return seq
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
