package outbox

import (
	"context"
	"fmt"
	"time"
)

const (
	stateLastError  = "outbox.last_error"
	stateLastSyncAt = "outbox.last_sync_at"
)

// Status is the aggregate sync indicator shown to users in place of
// per-operation errors.
type Status struct {
	Pending    int       `json:"pending"`
	Failures   int       `json:"failures"`
	LastError  string    `json:"last_error,omitempty"`
	LastSyncAt time.Time `json:"last_sync_at,omitzero"`
	Online     bool      `json:"online"`
}

// Status reads the current indicator.
func (q *Queue) Status(ctx context.Context) (Status, error) {
	var s Status
	var err error
	if s.Pending, err = q.store.QueueLen(ctx); err != nil {
		return s, err
	}
	failures, err := q.store.QueueFailures(ctx)
	if err != nil {
		return s, err
	}
	s.Failures = len(failures)
	if s.LastError, err = q.store.SyncState(ctx, stateLastError); err != nil {
		return s, err
	}
	raw, err := q.store.SyncState(ctx, stateLastSyncAt)
	if err != nil {
		return s, err
	}
	if raw != "" {
		if s.LastSyncAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return s, fmt.Errorf("parse last sync time: %w", err)
		}
	}
	s.Online = q.conn == nil || q.conn.Online()
	return s, nil
}
