package lifecycle

import (
	"context"

	"github.com/roach88/offpos/internal/merge"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/printing"
	"github.com/roach88/offpos/internal/store"
)

// SplitLine requests moving Quantity units of one line.
type SplitLine struct {
	ItemID   string
	Quantity int64
}

// Split moves quantities of lines from one order to the order on
// targetTable and returns the target order id.
//
// A line moved in full is reassigned; a partial move decrements the source
// line and adds a new line of the moved quantity to the target. If the
// target table already holds an active order the moved lines merge into
// it. Takeaway never merges: each split to takeaway opens a new order. A
// source left with no lines is cancelled.
func (m *Manager) Split(ctx context.Context, sourceID string, moves []SplitLine, targetTable string) (string, error) {
	if len(moves) == 0 {
		return "", model.Invalid("nothing to split")
	}
	if targetTable == "" {
		return "", model.Invalid("target table is required")
	}
	want := make(map[string]int64, len(moves))
	for _, mv := range moves {
		if mv.Quantity <= 0 {
			return "", model.Invalid("split quantity must be positive, got %d for %s", mv.Quantity, mv.ItemID)
		}
		want[mv.ItemID] += mv.Quantity
	}

	var targetID string
	err := m.commit(ctx, func(tx *store.Tx, jobs *[]printJob) error {
		src, srcItems, err := loadMutable(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		if !model.IsTakeaway(targetTable) && targetTable == src.TableID {
			return model.Invalid("order %s is already on table %s", src.ID, targetTable)
		}
		if err := checkTableKnown(ctx, tx, targetTable); err != nil {
			return err
		}

		byID := make(map[string]model.OrderItem, len(srcItems))
		for _, it := range srcItems {
			byID[it.ID] = it
		}
		for id, qty := range want {
			it, ok := byID[id]
			if !ok {
				return model.Invalid("item %s is not on order %s", id, src.ID)
			}
			if qty > it.Quantity {
				return model.Invalid("cannot move %d of %d units of item %s", qty, it.Quantity, id)
			}
		}

		remaining := make([]model.OrderItem, 0, len(srcItems))
		var moved []model.OrderItem
		for _, it := range srcItems {
			qty := want[it.ID]
			switch {
			case qty == 0:
				remaining = append(remaining, it)
			case qty == it.Quantity:
				moved = append(moved, it)
			default:
				part := it
				part.ID = ""
				part.Quantity = qty
				moved = append(moved, part)
				it.Quantity -= qty
				remaining = append(remaining, it)
			}
		}

		tgt, tgtItems, isNew, err := m.splitTarget(ctx, tx, targetTable)
		if err != nil {
			return err
		}
		tgtItems = own(tgt.ID, merge.Merge(tgtItems, moved, m.ids.Generate))
		model.Recompute(&tgt, tgtItems)
		if !isNew {
			m.bump(&tgt)
		}

		model.Recompute(&src, remaining)
		emptied := len(remaining) == 0
		if emptied {
			src.Status = model.StatusCancelled
			src.Note = "split into " + tgt.ID
		}
		m.bump(&src)

		// Source first: its moved lines must leave before the target
		// re-inserts them.
		if err := save(ctx, tx, src, remaining); err != nil {
			return err
		}
		if err := save(ctx, tx, tgt, tgtItems); err != nil {
			return err
		}

		if isNew {
			if _, err := m.outbox.EnqueueTx(ctx, tx, model.OpOrderUpsert, tgt.ID, tgt); err != nil {
				return err
			}
		}
		srcPatch := withTotals(basePatch(src), src)
		if emptied {
			srcPatch = withStatus(srcPatch, src)
			srcPatch.Note = &src.Note
		}
		if err := m.enqueuePatch(ctx, tx, srcPatch); err != nil {
			return err
		}
		if err := m.enqueueItems(ctx, tx, src.ID, remaining); err != nil {
			return err
		}
		if !isNew {
			if err := m.enqueuePatch(ctx, tx, withTotals(basePatch(tgt), tgt)); err != nil {
				return err
			}
		}
		if err := m.enqueueItems(ctx, tx, tgt.ID, tgtItems); err != nil {
			return err
		}

		targetID = tgt.ID
		if isNew {
			*jobs = append(*jobs, printJob{printing.ActionProvisional, tgt, tgtItems})
		} else {
			*jobs = append(*jobs, printJob{printing.ActionEditReprint, tgt, tgtItems})
		}
		if !emptied {
			*jobs = append(*jobs, printJob{printing.ActionEditReprint, src, remaining})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	m.logger.Debug("order split", "source_id", sourceID, "target_id", targetID, "table_id", targetTable)
	return targetID, nil
}

// splitTarget returns the active order on tableID, or a fresh unsaved order
// when there is none or tableID is takeaway.
func (m *Manager) splitTarget(ctx context.Context, tx *store.Tx, tableID string) (model.Order, []model.OrderItem, bool, error) {
	if !model.IsTakeaway(tableID) {
		cur, ok, err := tx.ActiveOrderForTable(ctx, tableID)
		if err != nil {
			return model.Order{}, nil, false, err
		}
		if ok {
			items, err := tx.ListItems(ctx, cur.ID)
			if err != nil {
				return model.Order{}, nil, false, err
			}
			return cur, items, false, nil
		}
	}
	now := m.now().UTC()
	return model.Order{
		ID:        m.ids.Generate(),
		TableID:   tableID,
		Status:    model.StatusPending,
		Version:   1,
		StaffID:   m.staffID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil, true, nil
}

// physicalTables rejects empty, identical or takeaway table pairs for
// operations that address an order by its table.
func physicalTables(source, target string) error {
	switch {
	case source == "" || target == "":
		return model.Invalid("source and target tables are required")
	case source == target:
		return model.Invalid("source and target table are both %s", source)
	case model.IsTakeaway(source):
		return model.Invalid("takeaway orders are addressed by order id")
	}
	return nil
}

// MergeOrders folds the active order on sourceTable into the active order
// on targetTable and returns the target order id. Lines sharing a key
// collapse. The emptied source is cancelled with a note naming the target.
func (m *Manager) MergeOrders(ctx context.Context, sourceTable, targetTable string) (string, error) {
	if err := physicalTables(sourceTable, targetTable); err != nil {
		return "", err
	}
	if model.IsTakeaway(targetTable) {
		return "", model.Invalid("takeaway orders are addressed by order id")
	}

	var targetID string
	err := m.commit(ctx, func(tx *store.Tx, jobs *[]printJob) error {
		src, srcItems, err := activeWithItems(ctx, tx, sourceTable)
		if err != nil {
			return err
		}
		dst, dstItems, err := activeWithItems(ctx, tx, targetTable)
		if err != nil {
			return err
		}

		merged := own(dst.ID, merge.Merge(dstItems, srcItems, m.ids.Generate))
		model.Recompute(&dst, merged)
		m.bump(&dst)

		empty := []model.OrderItem{}
		model.Recompute(&src, empty)
		src.Status = model.StatusCancelled
		src.Note = "merged into " + dst.ID
		m.bump(&src)

		if err := save(ctx, tx, src, empty); err != nil {
			return err
		}
		if err := save(ctx, tx, dst, merged); err != nil {
			return err
		}

		srcPatch := withStatus(withTotals(basePatch(src), src), src)
		srcPatch.Note = &src.Note
		if err := m.enqueuePatch(ctx, tx, srcPatch); err != nil {
			return err
		}
		if err := m.enqueueItems(ctx, tx, src.ID, empty); err != nil {
			return err
		}
		if err := m.enqueuePatch(ctx, tx, withTotals(basePatch(dst), dst)); err != nil {
			return err
		}
		if err := m.enqueueItems(ctx, tx, dst.ID, merged); err != nil {
			return err
		}

		targetID = dst.ID
		*jobs = append(*jobs, printJob{printing.ActionEditReprint, dst, merged})
		return nil
	})
	if err != nil {
		return "", err
	}
	return targetID, nil
}

func activeWithItems(ctx context.Context, tx *store.Tx, tableID string) (model.Order, []model.OrderItem, error) {
	o, ok, err := tx.ActiveOrderForTable(ctx, tableID)
	if err != nil {
		return model.Order{}, nil, err
	}
	if !ok {
		return model.Order{}, nil, model.NoActiveOrder(tableID)
	}
	items, err := tx.ListItems(ctx, o.ID)
	if err != nil {
		return model.Order{}, nil, err
	}
	return o, items, nil
}

// MoveTable repoints the active order on sourceTable to targetTable. The
// target must be free; takeaway is always free.
func (m *Manager) MoveTable(ctx context.Context, sourceTable, targetTable string) error {
	if err := physicalTables(sourceTable, targetTable); err != nil {
		return err
	}
	return m.commit(ctx, func(tx *store.Tx, _ *[]printJob) error {
		o, ok, err := tx.ActiveOrderForTable(ctx, sourceTable)
		if err != nil {
			return err
		}
		if !ok {
			return model.NoActiveOrder(sourceTable)
		}
		if err := checkTableFree(ctx, tx, targetTable, o.ID); err != nil {
			return err
		}
		o.TableID = targetTable
		m.bump(&o)
		if err := save(ctx, tx, o, nil); err != nil {
			return err
		}
		patch := basePatch(o)
		patch.TableID = &o.TableID
		return m.enqueuePatch(ctx, tx, patch)
	})
}
