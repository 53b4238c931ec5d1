package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offpos/internal/model"
)

var epoch = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassOK},
		{"explicit transient", &TransientError{Op: "x", Err: errors.New("down")}, ClassTransient},
		{"explicit permanent", &PermanentError{Op: "x", Err: errors.New("rejected")}, ClassPermanent},
		{"wrapped permanent", fmt.Errorf("apply: %w", &PermanentError{Op: "x", Err: ErrNotFound}), ClassPermanent},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"unavailable", fmt.Errorf("ping: %w", ErrUnavailable), ClassTransient},
		{"not found", ErrNotFound, ClassPermanent},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ClassTransient},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, ClassPermanent},
		{"pg bad data", &pgconn.PgError{Code: "22P02"}, ClassPermanent},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, ClassTransient},
		{"pg connection", &pgconn.PgError{Code: "08006"}, ClassTransient},
		{"pg disk full", &pgconn.PgError{Code: "53100"}, ClassTransient},
		{"pg short code", &pgconn.PgError{Code: "X"}, ClassPermanent},
		{"connection dropped", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), ClassTransient},
		{"connect error", &pgconn.ConnectError{Config: &pgconn.Config{}}, ClassTransient},
		{"client-side encode", errors.New("unable to encode 12 into text format"), ClassPermanent},
		{"unknown", errors.New("mystery"), ClassPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "ok", ClassOK.String())
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "permanent", ClassPermanent.String())
}

func TestMemory_UpsertIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	o := model.Order{ID: "o-1", TableID: "t-1", Status: model.StatusPending, Total: 40000, CreatedAt: epoch}

	require.NoError(t, m.UpsertOrders(ctx, []model.Order{o}))
	require.NoError(t, m.UpsertOrders(ctx, []model.Order{o}))
	assert.Equal(t, 1, m.OrderCount())

	items := []model.OrderItem{{ID: "i-1", MenuItemID: "x", Quantity: 2, Price: 20000}}
	require.NoError(t, m.ReplaceOrderItems(ctx, "o-1", items))
	require.NoError(t, m.ReplaceOrderItems(ctx, "o-1", items))

	_, got, ok := m.Order("o-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "o-1", got[0].OrderID)
}

func TestMemory_ReplaceItemsMovesLine(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.UpsertOrders(ctx, []model.Order{{ID: "a"}, {ID: "b"}}))
	line := model.OrderItem{ID: "i-1", MenuItemID: "x", Quantity: 1, Price: 1}

	require.NoError(t, m.ReplaceOrderItems(ctx, "a", []model.OrderItem{line}))
	require.NoError(t, m.ReplaceOrderItems(ctx, "b", []model.OrderItem{line}))

	_, a, _ := m.Order("a")
	_, b, _ := m.Order("b")
	assert.Empty(t, a)
	assert.Len(t, b, 1)
}

func TestMemory_PatchOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.UpsertOrders(ctx, []model.Order{{ID: "o-1", TableID: "t-1", Status: model.StatusPending, Version: 1}}))

	status := model.StatusCompleted
	total := int64(70000)
	require.NoError(t, m.PatchOrder(ctx, model.OrderPatch{ID: "o-1", Status: &status, Total: &total, Version: 3, UpdatedAt: epoch}))

	o, _, _ := m.Order("o-1")
	assert.Equal(t, model.StatusCompleted, o.Status)
	assert.Equal(t, int64(70000), o.Total)
	assert.Equal(t, "t-1", o.TableID)
	assert.Equal(t, int64(3), o.Version)

	err := m.PatchOrder(ctx, model.OrderPatch{ID: "missing"})
	assert.Equal(t, ClassPermanent, Classify(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListOrders_CompletedWindow(t *testing.T) {
	m := NewMemory()
	m.Seed([]model.Order{
		{ID: "active", Status: model.StatusCooking, CreatedAt: epoch},
		{ID: "recent", Status: model.StatusCompleted, CreatedAt: epoch, UpdatedAt: epoch},
		{ID: "old", Status: model.StatusCompleted, CreatedAt: epoch, UpdatedAt: epoch.Add(-48 * time.Hour)},
		{ID: "void", Status: model.StatusCancelled, CreatedAt: epoch, UpdatedAt: epoch},
	}, nil, nil, nil)

	got, err := m.ListOrders(context.Background(), OrderQuery{
		Statuses:       model.OperationalStatuses,
		CompletedSince: epoch.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	ids := []string{}
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"active", "recent"}, ids)
}

func TestMemory_FailureInjection(t *testing.T) {
	m := NewMemory()
	m.Fail = func(op string) error {
		if op == "ping" {
			return ErrUnavailable
		}
		return nil
	}
	assert.ErrorIs(t, m.Ping(context.Background()), ErrUnavailable)
	assert.NoError(t, m.UpsertTables(context.Background(), []model.Table{{ID: "t-1"}}))
	assert.Equal(t, 1, m.Calls("ping"))
}

type countingAPI struct {
	*Memory
	batches [][]string
}

func (c *countingAPI) ListOrderItems(ctx context.Context, ids []string) ([]model.OrderItem, error) {
	c.batches = append(c.batches, append([]string(nil), ids...))
	return c.Memory.ListOrderItems(ctx, ids)
}

func TestFetchItems_Chunks(t *testing.T) {
	mem := NewMemory()
	var ids []string
	var items []model.OrderItem
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("o-%d", i)
		ids = append(ids, id)
		if i%2 == 0 {
			items = append(items, model.OrderItem{ID: "i-" + id, OrderID: id, MenuItemID: "x", Quantity: 1, Price: 1})
		}
	}
	mem.Seed(nil, items, nil, nil)
	api := &countingAPI{Memory: mem}

	got, err := FetchItems(context.Background(), api, ids, 3)
	require.NoError(t, err)

	require.Len(t, api.batches, 3)
	assert.Len(t, api.batches[0], 3)
	assert.Len(t, api.batches[2], 1)
	assert.Len(t, got, 7, "every requested order present")
	assert.Len(t, got["o-0"], 1)
	assert.Empty(t, got["o-1"])
}

func TestFetchItems_PropagatesError(t *testing.T) {
	mem := NewMemory()
	mem.Fail = func(string) error { return &TransientError{Op: "list_items", Err: ErrUnavailable} }
	_, err := FetchItems(context.Background(), mem, []string{"a"}, 0)
	assert.Equal(t, ClassTransient, Classify(err))
}
