package outbox

import (
	"context"
	"time"

	"github.com/roach88/offpos/internal/audit"
	"github.com/roach88/offpos/internal/backend"
	"github.com/roach88/offpos/internal/model"
)

// Skip reasons reported by Drain.
const (
	SkipOffline    = "offline"
	SkipInProgress = "in_progress"
)

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	Processed int `json:"processed"` // entries attempted
	Applied   int `json:"applied"`   // applied and removed
	Retried   int `json:"retried"`   // failed and kept
	Dropped   int `json:"dropped"`   // moved to queue_failures
	Raced     int `json:"raced"`     // removed by a concurrent pass before post-processing
	Held      int `json:"held"`      // left queued behind an earlier failed entry for the same order

	// Stopped is true when a transient failure ended the pass early.
	Stopped   bool   `json:"stopped"`
	LastError string `json:"last_error,omitempty"`
	Remaining int    `json:"remaining"`
}

// Drain applies queued entries to the backend in seq order.
//
// Unless force is set, Drain does nothing while the gatekeeper reports
// offline. Only one pass runs at a time; a call that finds a pass running
// returns immediately with SkipInProgress.
//
// A transient failure keeps the entry and ends the pass, so later entries
// for the same order never overtake it. A permanent failure keeps the entry
// until it reaches MaxRetries attempts, then drops it into queue_failures.
// While such an entry is kept, the rest of the pass holds back every later
// entry for its order; other orders carry on.
// Remote errors never escape Drain; the returned error reports local store
// failures only.
func (q *Queue) Drain(ctx context.Context, force bool) (DrainReport, error) {
	var r DrainReport
	if !force && q.conn != nil && !q.conn.Online() {
		r.Skipped, r.SkipReason = true, SkipOffline
		return r, nil
	}
	if !q.draining.TryLock() {
		r.Skipped, r.SkipReason = true, SkipInProgress
		return r, nil
	}
	defer q.draining.Unlock()

	entries, err := q.store.QueueEntries(ctx, 0)
	if err != nil {
		return r, err
	}

	blocked := make(map[string]bool)
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.OrderID != "" && blocked[e.OrderID] {
			r.Held++
			continue
		}
		r.Processed++

		res, err := q.process(ctx, e, &r)
		if err != nil {
			return r, err
		}
		if res == outcomeStop {
			r.Stopped = true
			break
		}
		if res == outcomeKept && e.OrderID != "" {
			blocked[e.OrderID] = true
		}
	}

	if r.Remaining, err = q.store.QueueLen(ctx); err != nil {
		return r, err
	}
	if err := q.recordPass(ctx, r); err != nil {
		return r, err
	}

	q.logger.Info("drain pass",
		"processed", r.Processed,
		"applied", r.Applied,
		"retried", r.Retried,
		"dropped", r.Dropped,
		"held", r.Held,
		"remaining", r.Remaining,
		"stopped", r.Stopped)
	q.recordAudit(ctx, r)
	return r, nil
}

type outcome int

const (
	outcomeDone outcome = iota // applied, raced or dropped
	outcomeKept                // failed permanently, kept for retry
	outcomeStop                // failed transiently, pass ends
)

// process handles one entry.
func (q *Queue) process(ctx context.Context, e model.QueueEntry, r *DrainReport) (outcome, error) {
	applyCtx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	entityID, applyErr := apply(applyCtx, q.api, e)
	cancel()

	if applyErr == nil {
		removed, err := q.store.DeleteQueueEntry(ctx, e.ID)
		if err != nil {
			return outcomeDone, err
		}
		if !removed {
			r.Raced++
			return outcomeDone, nil
		}
		r.Applied++
		return outcomeDone, q.afterApply(ctx, e, entityID)
	}

	e.RetryCount++
	r.LastError = applyErr.Error()
	class := backend.Classify(applyErr)

	if class == backend.ClassPermanent && e.RetryCount >= q.cfg.MaxRetries {
		dropped, err := q.store.DropQueueEntry(ctx, e, applyErr.Error(), q.now().UnixNano())
		if err != nil {
			return outcomeDone, err
		}
		if dropped {
			r.Dropped++
			q.logger.Error("queue entry dropped",
				"entry_id", e.ID,
				"op", e.Op,
				"order_id", e.OrderID,
				"retry_count", e.RetryCount,
				"error", applyErr)
		}
		return outcomeDone, nil
	}

	if err := q.store.MarkQueueRetry(ctx, e.ID, e.RetryCount, applyErr.Error()); err != nil {
		return outcomeDone, err
	}
	r.Retried++
	q.logger.Warn("queue entry failed",
		"entry_id", e.ID,
		"op", e.Op,
		"class", class,
		"retry_count", e.RetryCount,
		"error", applyErr)
	if class == backend.ClassTransient {
		return outcomeStop, nil
	}
	return outcomeKept, nil
}

func (q *Queue) afterApply(ctx context.Context, e model.QueueEntry, entityID string) error {
	switch e.Op {
	case model.OpMenuUpsert:
		return q.store.AckMenuItem(ctx, entityID)
	case model.OpTableUpsert:
		return q.store.AckTable(ctx, entityID)
	}
	if e.OrderID != "" {
		return q.store.MarkSynced(ctx, e.OrderID)
	}
	return nil
}

// recordPass updates the aggregate indicator read by Status.
func (q *Queue) recordPass(ctx context.Context, r DrainReport) error {
	if r.LastError != "" {
		if err := q.store.SetSyncState(ctx, stateLastError, r.LastError); err != nil {
			return err
		}
	}
	if r.Stopped {
		return nil
	}
	if r.LastError == "" {
		if err := q.store.SetSyncState(ctx, stateLastError, ""); err != nil {
			return err
		}
	}
	return q.store.SetSyncState(ctx, stateLastSyncAt, q.now().UTC().Format(time.RFC3339Nano))
}

func (q *Queue) recordAudit(ctx context.Context, r DrainReport) {
	result := audit.ResultOK
	switch {
	case r.Stopped:
		result = audit.ResultFailed
	case r.Retried > 0 || r.Dropped > 0 || r.Held > 0:
		result = audit.ResultPartial
	}
	err := q.audit.Record(ctx, audit.Entry{
		Action: "outbox.drain",
		Result: result,
		Metadata: map[string]any{
			"processed": r.Processed,
			"applied":   r.Applied,
			"retried":   r.Retried,
			"dropped":   r.Dropped,
			"remaining": r.Remaining,
			"error":     r.LastError,
		},
	})
	if err != nil {
		q.logger.Warn("audit record failed", "action", "outbox.drain", "error", err)
	}
}
