package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offpos/internal/model"
)

func TestQueue_FIFO(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s1 := enqueue(t, s, "q-b", model.OpOrderUpsert, "o-1")
	s2 := enqueue(t, s, "q-a", model.OpItemsReplace, "o-1")
	s3 := enqueue(t, s, "q-c", model.OpOrderPatch, "o-2")
	assert.Less(t, s1, s2)
	assert.Less(t, s2, s3)

	entries, err := s.QueueEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"q-b", "q-a", "q-c"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, model.OpItemsReplace, entries[1].Op)
	assert.JSONEq(t, `{"id":"o-1"}`, string(entries[0].Payload))

	limited, err := s.QueueEntries(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := s.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, err := s.QueuedOrderIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"o-1": true, "o-2": true}, ids)
}

func TestDeleteQueueEntry_SecondDeleteReportsGone(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueue(t, s, "q-1", model.OpOrderUpsert, "o-1")

	removed, err := s.DeleteQueueEntry(ctx, "q-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeleteQueueEntry(ctx, "q-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMarkQueueRetry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueue(t, s, "q-1", model.OpOrderUpsert, "o-1")

	require.NoError(t, s.MarkQueueRetry(ctx, "q-1", 2, "timeout"))

	entries, err := s.QueueEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].RetryCount)
	assert.Equal(t, "timeout", entries[0].LastError)
}

func TestDropQueueEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueue(t, s, "q-1", model.OpOrderPatch, "o-1")

	entries, _ := s.QueueEntries(ctx, 0)
	e := entries[0]
	e.RetryCount = 5

	dropped, err := s.DropQueueEntry(ctx, e, "rejected", 42)
	require.NoError(t, err)
	assert.True(t, dropped)

	dropped, err = s.DropQueueEntry(ctx, e, "rejected", 43)
	require.NoError(t, err)
	assert.False(t, dropped)

	n, _ := s.QueueLen(ctx)
	assert.Equal(t, 0, n)

	failures, err := s.QueueFailures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "q-1", failures[0].EntryID)
	assert.Equal(t, model.OpOrderPatch, failures[0].Op)
	assert.Equal(t, 5, failures[0].RetryCount)
	assert.Equal(t, "rejected", failures[0].Error)
	assert.Equal(t, int64(42), failures[0].FailedAt)
}

func TestEnqueue_RollsBackWithWrite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_ = s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Enqueue(ctx, model.QueueEntry{ID: "q-1", Op: model.OpOrderUpsert, Payload: []byte("{}"), CreatedAt: testEpoch}); err != nil {
			return err
		}
		return tx.ReplaceItems(ctx, "o-1", []model.OrderItem{createTestItem("i", "o-1", "x", 1, 1)})
	})

	n, err := s.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "foreign key failure must roll back the enqueue")
}
