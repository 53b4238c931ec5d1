// Package audit records the sync core's own outcomes (drain passes,
// reconciliation runs) for the audit collaborator. Audit policy lives
// elsewhere; this package only writes entries.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Result values used by the sync core.
const (
	ResultOK      = "ok"
	ResultPartial = "partial"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Entry is one audit record.
type Entry struct {
	Action   string
	Result   string
	Metadata map[string]any
}

// Recorder accepts audit entries. Implementations must not block for long
// and must not fail the caller; errors are for logging only.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// SlogRecorder writes entries to a structured logger.
type SlogRecorder struct {
	Logger *slog.Logger
}

func (r SlogRecorder) Record(ctx context.Context, e Entry) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"action", e.Action, "result", e.Result}
	for k, v := range e.Metadata {
		attrs = append(attrs, k, v)
	}
	level := slog.LevelInfo
	if e.Result == ResultFailed {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "audit", attrs...)
	return nil
}

// Sink is the subset of the local store used by StoreRecorder.
type Sink interface {
	InsertAudit(ctx context.Context, action, result, metadata string, at int64) error
}

// StoreRecorder appends entries to the local audit_logs table.
type StoreRecorder struct {
	Sink Sink
	Now  func() time.Time
}

func (r StoreRecorder) Record(ctx context.Context, e Entry) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	meta := "{}"
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
		meta = string(b)
	}
	return r.Sink.InsertAudit(ctx, e.Action, e.Result, meta, now().UTC().UnixNano())
}

// Multi fans an entry out to several recorders and returns the first error.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Entry) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
