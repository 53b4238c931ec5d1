package store

import (
	"context"
	"fmt"

	"github.com/roach88/offpos/internal/events"
	"github.com/roach88/offpos/internal/model"
)

// Enqueue appends a queue entry inside the transaction and returns its seq.
// Because the entry commits together with the local write it describes,
// the queue never holds intent for a write that rolled back.
func (t *Tx) Enqueue(ctx context.Context, e model.QueueEntry) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO offline_queue (id, op, order_id, payload, retry_count, last_error, created_at)
		VALUES (?, ?, ?, ?, 0, '', ?)
	`, e.ID, string(e.Op), e.OrderID, string(e.Payload), toNanos(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", e.Op, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: last insert id: %w", e.Op, err)
	}
	t.touch(events.Queue, e.OrderID)
	return seq, nil
}

// QueueEntries returns up to limit entries in FIFO order (all when limit <= 0).
func (s *Store) QueueEntries(ctx context.Context, limit int) ([]model.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM offline_queue ORDER BY seq ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return scanQueueEntries(rows)
}

// QueueLen returns the number of pending entries.
func (s *Store) QueueLen(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// QueuedOrderIDs returns the set of order ids referenced by pending entries.
func (s *Store) QueuedOrderIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT order_id FROM offline_queue WHERE order_id <> ''`)
	if err != nil {
		return nil, fmt.Errorf("query queued orders: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan queued order: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued orders: %w", err)
	}
	return ids, nil
}

// DeleteQueueEntry removes an entry. removed is false when another drain
// already took it, in which case the caller must skip post-processing.
func (s *Store) DeleteQueueEntry(ctx context.Context, id string) (removed bool, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete queue entry: rows affected: %w", err)
	}
	if n > 0 {
		s.publish(events.Change{Collections: []events.Collection{events.Queue}})
	}
	return n > 0, nil
}

// MarkQueueRetry records a failed attempt on an entry.
func (s *Store) MarkQueueRetry(ctx context.Context, id string, retryCount int, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE offline_queue SET retry_count = ?, last_error = ? WHERE id = ?
	`, retryCount, lastErr, id)
	if err != nil {
		return fmt.Errorf("mark queue retry: %w", err)
	}
	return nil
}

// DropQueueEntry moves an entry to queue_failures in one transaction.
// dropped is false when the entry was already gone.
func (s *Store) DropQueueEntry(ctx context.Context, e model.QueueEntry, cause string, failedAt int64) (dropped bool, err error) {
	err = s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, e.ID)
		if err != nil {
			return fmt.Errorf("drop queue entry: delete: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("drop queue entry: rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		dropped = true
		_, err = tx.tx.ExecContext(ctx, `
			INSERT INTO queue_failures (entry_id, op, order_id, payload, retry_count, error, failed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, string(e.Op), e.OrderID, string(e.Payload), e.RetryCount, cause, failedAt)
		if err != nil {
			return fmt.Errorf("drop queue entry: record failure: %w", err)
		}
		tx.touch(events.Queue, e.OrderID)
		return nil
	})
	return dropped, err
}

// QueueFailure is one entry dropped after exhausting retries.
type QueueFailure struct {
	EntryID    string
	Op         model.Op
	OrderID    string
	Payload    string
	RetryCount int
	Error      string
	FailedAt   int64
}

// QueueFailures returns dropped entries, oldest first.
func (s *Store) QueueFailures(ctx context.Context) ([]QueueFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, op, order_id, payload, retry_count, error, failed_at
		FROM queue_failures ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query queue failures: %w", err)
	}
	defer rows.Close()

	out := []QueueFailure{}
	for rows.Next() {
		var (
			f  QueueFailure
			op string
		)
		if err := rows.Scan(&f.EntryID, &op, &f.OrderID, &f.Payload, &f.RetryCount, &f.Error, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("scan queue failure: %w", err)
		}
		f.Op = model.Op(op)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue failures: %w", err)
	}
	return out, nil
}
