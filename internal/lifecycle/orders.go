package lifecycle

import (
	"context"

	"github.com/roach88/offpos/internal/merge"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/printing"
	"github.com/roach88/offpos/internal/store"
)

// Create opens an order on tableID (or model.TakeawayTable) with the given
// lines and returns its id. A physical table that already holds an active
// order is rejected with TABLE_OCCUPIED.
func (m *Manager) Create(ctx context.Context, tableID string, lines []model.OrderItem) (string, error) {
	if tableID == "" {
		return "", model.Invalid("table is required")
	}

	var id string
	err := m.commit(ctx, func(tx *store.Tx, jobs *[]printJob) error {
		if err := checkTableKnown(ctx, tx, tableID); err != nil {
			return err
		}
		if !model.IsTakeaway(tableID) {
			cur, ok, err := tx.ActiveOrderForTable(ctx, tableID)
			if err != nil {
				return err
			}
			if ok {
				return model.Occupied(tableID, cur.ID)
			}
		}

		resolved, err := resolveLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		o := model.Order{
			ID:        m.ids.Generate(),
			TableID:   tableID,
			Status:    model.StatusPending,
			Version:   1,
			StaffID:   m.staffID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		items := own(o.ID, merge.Normalize(resolved, m.ids.Generate))
		model.Recompute(&o, items)

		if err := save(ctx, tx, o, items); err != nil {
			return err
		}
		if _, err := m.outbox.EnqueueTx(ctx, tx, model.OpOrderUpsert, o.ID, o); err != nil {
			return err
		}
		if err := m.enqueueItems(ctx, tx, o.ID, items); err != nil {
			return err
		}

		id = o.ID
		*jobs = append(*jobs, printJob{printing.ActionProvisional, o, items})
		return nil
	})
	if err != nil {
		return "", err
	}
	m.logger.Debug("order created", "order_id", id, "table_id", tableID)
	return id, nil
}

// AddItems merges lines into an order. Lines matching an existing
// (menu item, note) key add to its quantity at the existing price.
func (m *Manager) AddItems(ctx context.Context, orderID string, lines []model.OrderItem) (model.Order, error) {
	if len(lines) == 0 {
		return model.Order{}, model.Invalid("no items to add")
	}

	var out model.Order
	err := m.commit(ctx, func(tx *store.Tx, jobs *[]printJob) error {
		o, existing, err := loadMutable(ctx, tx, orderID)
		if err != nil {
			return err
		}
		resolved, err := resolveLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		items := own(o.ID, merge.Merge(existing, resolved, m.ids.Generate))
		model.Recompute(&o, items)
		m.bump(&o)

		if err := save(ctx, tx, o, items); err != nil {
			return err
		}
		if err := m.enqueuePatch(ctx, tx, withTotals(basePatch(o), o)); err != nil {
			return err
		}
		if err := m.enqueueItems(ctx, tx, o.ID, items); err != nil {
			return err
		}

		out = o
		*jobs = append(*jobs, printJob{printing.ActionEditReprint, o, items})
		return nil
	})
	return out, err
}

// Patch is a generic order edit. Nil fields are left unchanged. Items, when
// present, are merged into the order the same way AddItems merges them.
type Patch struct {
	TableID *string
	Note    *string
	Items   []model.OrderItem
}

// Update applies a patch. It always bumps the version and enqueues only the
// fields the patch touched.
func (m *Manager) Update(ctx context.Context, orderID string, p Patch) (model.Order, error) {
	var out model.Order
	err := m.commit(ctx, func(tx *store.Tx, jobs *[]printJob) error {
		o, existing, err := loadMutable(ctx, tx, orderID)
		if err != nil {
			return err
		}

		var items []model.OrderItem
		if len(p.Items) > 0 {
			resolved, err := resolveLines(ctx, tx, p.Items)
			if err != nil {
				return err
			}
			items = own(o.ID, merge.Merge(existing, resolved, m.ids.Generate))
			model.Recompute(&o, items)
		}
		if p.TableID != nil && *p.TableID != o.TableID {
			if err := checkTableFree(ctx, tx, *p.TableID, o.ID); err != nil {
				return err
			}
			o.TableID = *p.TableID
		}
		if p.Note != nil {
			o.Note = *p.Note
		}
		m.bump(&o)

		patch := basePatch(o)
		if p.TableID != nil {
			patch.TableID = &o.TableID
		}
		if p.Note != nil {
			patch.Note = &o.Note
		}
		if items != nil {
			patch = withTotals(patch, o)
		}

		if err := save(ctx, tx, o, items); err != nil {
			return err
		}
		if err := m.enqueuePatch(ctx, tx, patch); err != nil {
			return err
		}
		if items != nil {
			if err := m.enqueueItems(ctx, tx, o.ID, items); err != nil {
				return err
			}
			*jobs = append(*jobs, printJob{printing.ActionEditReprint, o, items})
		}
		out = o
		return nil
	})
	return out, err
}

// checkTableKnown rejects a table id missing from the tables cache.
func checkTableKnown(ctx context.Context, tx *store.Tx, tableID string) error {
	if model.IsTakeaway(tableID) {
		return nil
	}
	ok, err := tx.KnownTable(ctx, tableID)
	if err != nil {
		return err
	}
	if !ok {
		return model.Invalid("unknown table %q", tableID)
	}
	return nil
}

// checkTableFree fails with TABLE_OCCUPIED when tableID already holds an
// active order other than selfID.
func checkTableFree(ctx context.Context, tx *store.Tx, tableID, selfID string) error {
	if tableID == "" {
		return model.Invalid("table is required")
	}
	if model.IsTakeaway(tableID) {
		return nil
	}
	if err := checkTableKnown(ctx, tx, tableID); err != nil {
		return err
	}
	cur, ok, err := tx.ActiveOrderForTable(ctx, tableID)
	if err != nil {
		return err
	}
	if ok && cur.ID != selfID {
		return model.Occupied(tableID, cur.ID)
	}
	return nil
}

// Advance moves an order along the kitchen flow: pending to cooking to
// ready. Completion goes through Checkout and cancellation through Cancel.
// Advancing to the current status is a no-op.
func (m *Manager) Advance(ctx context.Context, orderID string, to model.Status) (model.Order, error) {
	switch to {
	case model.StatusCompleted:
		return model.Order{}, model.Invalid("orders are completed by checkout")
	case model.StatusCancelled:
		return model.Order{}, model.Invalid("orders are cancelled by cancel")
	}
	if !to.Valid() {
		return model.Order{}, model.Invalid("unknown status %q", to)
	}

	var out model.Order
	err := m.commit(ctx, func(tx *store.Tx, _ *[]printJob) error {
		o, _, err := loadMutable(ctx, tx, orderID)
		if err != nil {
			return err
		}
		out = o
		if o.Status == to {
			return nil
		}
		if !model.CanTransition(o.Status, to) {
			return model.InvalidTransition(o, to)
		}
		o.Status = to
		m.bump(&o)
		if err := save(ctx, tx, o, nil); err != nil {
			return err
		}
		out = o
		return m.enqueuePatch(ctx, tx, withStatus(basePatch(o), o))
	})
	return out, err
}

// CheckoutRequest describes payment.
type CheckoutRequest struct {
	Method string
	// Discount, when set, replaces any discount already on the order.
	Discount *model.Discount
	// ExplicitAmount, when set, overrides the computed total.
	ExplicitAmount *int64
}

// Checkout completes and pays an order from any operational status. The
// subtotal keeps the pre-discount amount; the total is
// max(0, subtotal - discount) unless an explicit amount overrides it.
func (m *Manager) Checkout(ctx context.Context, orderID string, req CheckoutRequest) (model.Order, error) {
	if req.Method == "" {
		return model.Order{}, model.Invalid("payment method is required")
	}
	if req.Discount != nil && req.Discount.Amount < 0 {
		return model.Order{}, model.Invalid("discount must not be negative")
	}
	if req.ExplicitAmount != nil && *req.ExplicitAmount < 0 {
		return model.Order{}, model.Invalid("amount must not be negative")
	}

	var out model.Order
	err := m.commit(ctx, func(tx *store.Tx, jobs *[]printJob) error {
		o, items, err := loadMutable(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if req.Discount != nil {
			o.Discount = req.Discount.Amount
		}
		model.Recompute(&o, items)
		if req.ExplicitAmount != nil {
			o.Total = *req.ExplicitAmount
		}
		o.Status = model.StatusCompleted
		o.Paid = true
		o.PaymentMethod = req.Method
		m.bump(&o)

		if err := save(ctx, tx, o, nil); err != nil {
			return err
		}
		patch := withStatus(withTotals(basePatch(o), o), o)
		patch.Paid, patch.PaymentMethod = &o.Paid, &o.PaymentMethod
		if err := m.enqueuePatch(ctx, tx, patch); err != nil {
			return err
		}

		out = o
		*jobs = append(*jobs, printJob{printing.ActionFinal, o, items})
		return nil
	})
	return out, err
}

// Cancel moves an operational order to cancelled without touching its
// lines. Cancelling a cancelled order is a no-op; a completed order
// cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, orderID, note string) (model.Order, error) {
	var out model.Order
	err := m.commit(ctx, func(tx *store.Tx, _ *[]printJob) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		out = o
		switch o.Status {
		case model.StatusCancelled:
			return nil
		case model.StatusCompleted:
			return model.Terminal(o)
		}
		o.Status = model.StatusCancelled
		if note != "" {
			o.Note = note
		}
		m.bump(&o)
		if err := save(ctx, tx, o, nil); err != nil {
			return err
		}
		out = o
		patch := withStatus(basePatch(o), o)
		if note != "" {
			patch.Note = &o.Note
		}
		return m.enqueuePatch(ctx, tx, patch)
	})
	return out, err
}

// Get returns an order and its lines.
func (m *Manager) Get(ctx context.Context, orderID string) (model.Order, []model.OrderItem, error) {
	o, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, nil, err
	}
	items, err := m.store.ListItems(ctx, orderID)
	if err != nil {
		return model.Order{}, nil, err
	}
	return o, items, nil
}

// ActiveForTable returns the canonical active order on a table.
func (m *Manager) ActiveForTable(ctx context.Context, tableID string) (model.Order, error) {
	o, ok, err := m.store.ActiveOrderForTable(ctx, tableID)
	if err != nil {
		return model.Order{}, err
	}
	if !ok {
		return model.Order{}, model.NoActiveOrder(tableID)
	}
	return o, nil
}

// Reprint sends a ticket for an order in any status. An empty action picks
// final for completed orders and edit_reprint otherwise.
func (m *Manager) Reprint(ctx context.Context, orderID string, action printing.Action) error {
	o, items, err := m.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if action == "" {
		action = printing.ActionEditReprint
		if o.Status == model.StatusCompleted {
			action = printing.ActionFinal
		}
	}
	m.print(ctx, printJob{action, o, items})
	return nil
}
