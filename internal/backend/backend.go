// Package backend defines the remote API the sync core talks to and the
// failure taxonomy the outbound queue relies on.
//
// Every write is an id-keyed upsert, so replaying an entry that already
// succeeded leaves remote state unchanged.
package backend

import (
	"context"
	"time"

	"github.com/roach88/offpos/internal/model"
)

// DefaultBatchSize bounds the number of order ids in one "id in [...]" fetch.
const DefaultBatchSize = 100

// OrderQuery selects orders to pull.
type OrderQuery struct {
	// Statuses to include regardless of age.
	Statuses []model.Status
	// CompletedSince additionally includes completed orders updated at or
	// after this instant. Zero disables.
	CompletedSince time.Time
}

// API is the remote backend.
type API interface {
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	UpsertOrders(ctx context.Context, orders []model.Order) error
	PatchOrder(ctx context.Context, patch model.OrderPatch) error
	// ReplaceOrderItems makes items the complete line set of orderID.
	ReplaceOrderItems(ctx context.Context, orderID string, items []model.OrderItem) error
	UpsertMenuItems(ctx context.Context, items []model.MenuItem) error
	UpsertTables(ctx context.Context, tables []model.Table) error

	ListMenuItems(ctx context.Context) ([]model.MenuItem, error)
	ListTables(ctx context.Context) ([]model.Table, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]model.Order, error)
	// ListOrderItems returns the lines of every order in orderIDs. Callers
	// keep len(orderIDs) within the backend's batch size; see FetchItems.
	ListOrderItems(ctx context.Context, orderIDs []string) ([]model.OrderItem, error)
}

// FetchItems pulls lines for orderIDs in chunks of batchSize and groups them
// by order id. Every requested id is present in the result, possibly with
// an empty slice.
func FetchItems(ctx context.Context, api API, orderIDs []string, batchSize int) (map[string][]model.OrderItem, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make(map[string][]model.OrderItem, len(orderIDs))
	for _, id := range orderIDs {
		out[id] = []model.OrderItem{}
	}
	for start := 0; start < len(orderIDs); start += batchSize {
		end := start + batchSize
		if end > len(orderIDs) {
			end = len(orderIDs)
		}
		items, err := api.ListOrderItems(ctx, orderIDs[start:end])
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if _, ok := out[it.OrderID]; ok {
				out[it.OrderID] = append(out[it.OrderID], it)
			}
		}
	}
	return out, nil
}
