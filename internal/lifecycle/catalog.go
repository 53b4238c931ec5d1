package lifecycle

import (
	"context"

	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/store"
)

// CreateMenuItem adds a menu entry on this device. It stays pending until
// the backend acknowledges it, and reconciliation pulls never drop it
// meanwhile.
func (m *Manager) CreateMenuItem(ctx context.Context, mi model.MenuItem) (model.MenuItem, error) {
	if mi.Name == "" {
		return model.MenuItem{}, model.Invalid("menu item name is required")
	}
	if mi.Price < 0 {
		return model.MenuItem{}, model.Invalid("menu item price must not be negative")
	}
	if mi.ID == "" {
		mi.ID = m.ids.Generate()
	}
	mi.PendingCreate = true

	err := m.commit(ctx, func(tx *store.Tx, _ *[]printJob) error {
		if err := tx.PutMenuItem(ctx, mi); err != nil {
			return err
		}
		_, err := m.outbox.EnqueueTx(ctx, tx, model.OpMenuUpsert, "", mi)
		return err
	})
	if err != nil {
		return model.MenuItem{}, err
	}
	return mi, nil
}

// CreateTable adds a dining table on this device, pending like
// CreateMenuItem.
func (m *Manager) CreateTable(ctx context.Context, tb model.Table) (model.Table, error) {
	if tb.ID == "" {
		return model.Table{}, model.Invalid("table id is required")
	}
	if model.IsTakeaway(tb.ID) {
		return model.Table{}, model.Invalid("%q is reserved", model.TakeawayTable)
	}
	if tb.Label == "" {
		tb.Label = tb.ID
	}
	tb.PendingCreate = true

	err := m.commit(ctx, func(tx *store.Tx, _ *[]printJob) error {
		if err := tx.PutTable(ctx, tb); err != nil {
			return err
		}
		_, err := m.outbox.EnqueueTx(ctx, tx, model.OpTableUpsert, "", tb)
		return err
	})
	if err != nil {
		return model.Table{}, err
	}
	return tb, nil
}
