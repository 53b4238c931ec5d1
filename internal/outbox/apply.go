package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/offpos/internal/backend"
	"github.com/roach88/offpos/internal/model"
)

// apply performs the remote call for one entry and returns the id of the
// entity it touched. Every call is an id-keyed upsert or replace, so
// re-applying an entry that already succeeded leaves remote state unchanged.
func apply(ctx context.Context, api backend.API, e model.QueueEntry) (string, error) {
	switch e.Op {
	case model.OpOrderUpsert:
		var o model.Order
		if err := decode(e, &o); err != nil {
			return "", err
		}
		return o.ID, api.UpsertOrders(ctx, []model.Order{o})

	case model.OpOrderPatch:
		var p model.OrderPatch
		if err := decode(e, &p); err != nil {
			return "", err
		}
		return p.ID, api.PatchOrder(ctx, p)

	case model.OpItemsReplace:
		var set model.ItemSet
		if err := decode(e, &set); err != nil {
			return "", err
		}
		return set.OrderID, api.ReplaceOrderItems(ctx, set.OrderID, set.Items)

	case model.OpMenuUpsert:
		var m model.MenuItem
		if err := decode(e, &m); err != nil {
			return "", err
		}
		return m.ID, api.UpsertMenuItems(ctx, []model.MenuItem{m})

	case model.OpTableUpsert:
		var tb model.Table
		if err := decode(e, &tb); err != nil {
			return "", err
		}
		return tb.ID, api.UpsertTables(ctx, []model.Table{tb})

	default:
		return "", &backend.PermanentError{Op: string(e.Op), Err: fmt.Errorf("unknown op %q", e.Op)}
	}
}

// decode rejects malformed payloads as permanent: retrying cannot fix them.
func decode(e model.QueueEntry, v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return &backend.PermanentError{Op: string(e.Op), Err: fmt.Errorf("decode payload: %w", err)}
	}
	return nil
}
