package lifecycle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offpos/internal/backend"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/outbox"
	"github.com/roach88/offpos/internal/printing"
	"github.com/roach88/offpos/internal/store"
	"github.com/roach88/offpos/internal/testutil"
)

type fixture struct {
	store   *store.Store
	api     *backend.Memory
	queue   *outbox.Queue
	printer *printing.Recorder
	disp    *printing.Dispatcher
	mgr     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewTickingClock(testutil.Epoch, 1_000_000)
	f := &fixture{
		store:   st,
		api:     backend.NewMemory(),
		printer: &printing.Recorder{},
	}
	f.queue = outbox.New(st, f.api, outbox.WithIDs(testutil.NewSeqIDs("q")), outbox.WithClock(clock.Now))
	f.disp = printing.NewDispatcher(f.printer)
	f.mgr = New(st, f.queue,
		WithPrinter(f.disp),
		WithIDs(testutil.NewSeqIDs("id")),
		WithClock(clock.Now),
		WithStaff("staff-1"))

	_, err = f.mgr.CreateMenuItem(ctx, model.MenuItem{ID: "X", Name: "Item X", Price: 20000, Available: true})
	require.NoError(t, err)
	_, err = f.mgr.CreateMenuItem(ctx, model.MenuItem{ID: "Y", Name: "Item Y", Price: 15000, Available: true})
	require.NoError(t, err)
	return f
}

func x(qty int64, note string) model.OrderItem {
	return model.OrderItem{MenuItemID: "X", Quantity: qty, Note: note}
}

func y(qty int64) model.OrderItem {
	return model.OrderItem{MenuItemID: "Y", Quantity: qty}
}

func (f *fixture) order(t *testing.T, id string) (model.Order, []model.OrderItem) {
	t.Helper()
	o, items, err := f.mgr.Get(context.Background(), id)
	require.NoError(t, err)
	return o, items
}

func (f *fixture) queueOps(t *testing.T) []model.Op {
	t.Helper()
	entries, err := f.store.QueueEntries(context.Background(), 0)
	require.NoError(t, err)
	ops := make([]model.Op, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, e.Op)
	}
	return ops
}

// assertTotals checks total == Σ price×qty minus discount.
func assertTotals(t *testing.T, o model.Order, items []model.OrderItem) {
	t.Helper()
	sum := model.ItemsTotal(items)
	assert.Equal(t, sum, o.Subtotal, "subtotal of %s", o.ID)
	assert.Equal(t, model.ApplyDiscount(sum, o.Discount), o.Total, "total of %s", o.ID)
}

// assertOneActivePerTable checks no physical table has two active orders.
func assertOneActivePerTable(t *testing.T, st *store.Store) {
	t.Helper()
	active, err := st.ActiveOrders(context.Background())
	require.NoError(t, err)
	seen := map[string]string{}
	for _, o := range active {
		if model.IsTakeaway(o.TableID) {
			continue
		}
		prev, dup := seen[o.TableID]
		assert.False(t, dup, "table %s has active orders %s and %s", o.TableID, prev, o.ID)
		seen[o.TableID] = o.ID
	}
}

func TestCreateAndAddItems_MergesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(2, "")})
	require.NoError(t, err)
	o, items := f.order(t, id)
	assert.Equal(t, int64(40000), o.Total)
	assert.Equal(t, int64(1), o.Version)
	assert.Equal(t, model.StatusPending, o.Status)
	assert.Equal(t, "staff-1", o.StaffID)

	_, err = f.mgr.AddItems(ctx, id, []model.OrderItem{x(1, "")})
	require.NoError(t, err)
	o, items = f.order(t, id)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].Quantity)
	assert.Equal(t, int64(60000), o.Total)

	_, err = f.mgr.AddItems(ctx, id, []model.OrderItem{x(1, "ít đá")})
	require.NoError(t, err)
	o, items = f.order(t, id)
	require.Len(t, items, 2)
	assert.Equal(t, int64(3), items[0].Quantity)
	assert.Equal(t, int64(1), items[1].Quantity)
	assert.Equal(t, "ít đá", items[1].Note)
	assert.Equal(t, int64(80000), o.Total)
	assert.Equal(t, int64(3), o.Version)
	assertTotals(t, o, items)

	f.disp.Wait()
	assert.ElementsMatch(t,
		[]printing.Action{printing.ActionProvisional, printing.ActionEditReprint, printing.ActionEditReprint},
		f.printer.Actions())
}

func TestCreate_EnqueuesUpsertThenItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.NoError(t, err)

	ops := f.queueOps(t)
	// two menu.upsert entries from the fixture come first
	assert.Equal(t, []model.Op{model.OpMenuUpsert, model.OpMenuUpsert, model.OpOrderUpsert, model.OpItemsReplace}, ops)
}

func TestCreate_InvalidLinesLeaveNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := len(f.queueOps(t))

	_, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, ""), {MenuItemID: "ghost", Quantity: 1}})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	_, err = f.mgr.Create(ctx, "T1", []model.OrderItem{x(0, "")})
	assert.True(t, model.IsValidation(err))

	assert.Len(t, f.queueOps(t), before)
	_, err = f.mgr.ActiveForTable(ctx, "T1")
	assert.True(t, model.IsNotFound(err))
}

func TestCreate_UnknownMenuItemWithSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.Create(ctx, model.TakeawayTable, []model.OrderItem{
		{MenuItemID: "special", Name: "Chef special", Price: 50000, Quantity: 1},
	})
	require.NoError(t, err)
	o, items := f.order(t, id)
	require.Len(t, items, 1)
	assert.Equal(t, "Chef special", items[0].Name)
	assert.Equal(t, int64(50000), o.Total)
}

func TestCreate_TableOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.NoError(t, err)

	_, err = f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.Error(t, err)
	assert.True(t, model.IsTableOccupied(err))

	// Takeaway allows any number of active orders.
	_, err = f.mgr.Create(ctx, model.TakeawayTable, nil)
	require.NoError(t, err)
	_, err = f.mgr.Create(ctx, model.TakeawayTable, nil)
	require.NoError(t, err)

	// A closed table session frees the table.
	_, err = f.mgr.Checkout(ctx, first, CheckoutRequest{Method: "cash"})
	require.NoError(t, err)
	_, err = f.mgr.Create(ctx, "T1", nil)
	require.NoError(t, err)
	assertOneActivePerTable(t, f.store)
}

func TestAddItems_KeepsPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.NoError(t, err)

	// Menu price changes after the line was added.
	err = f.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.PutMenuItem(ctx, model.MenuItem{ID: "X", Name: "Item X", Price: 25000, Available: true})
	})
	require.NoError(t, err)

	_, err = f.mgr.AddItems(ctx, id, []model.OrderItem{x(1, ""), x(1, "no ice")})
	require.NoError(t, err)

	o, items := f.order(t, id)
	require.Len(t, items, 2)
	assert.Equal(t, int64(20000), items[0].Price, "existing line is never re-priced")
	assert.Equal(t, int64(2), items[0].Quantity)
	assert.Equal(t, int64(25000), items[1].Price, "new line snapshots the current price")
	assert.Equal(t, int64(65000), o.Total)
}

func TestAddItems_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.AddItems(ctx, "missing", []model.OrderItem{x(1, "")})
	assert.True(t, model.IsNotFound(err))

	id, err := f.mgr.Create(ctx, "T1", nil)
	require.NoError(t, err)
	_, err = f.mgr.AddItems(ctx, id, nil)
	assert.True(t, model.IsValidation(err))

	_, err = f.mgr.Cancel(ctx, id, "")
	require.NoError(t, err)
	_, err = f.mgr.AddItems(ctx, id, []model.OrderItem{x(1, "")})
	assert.True(t, model.IsTerminal(err))
}

func TestAddItems_UnavailableMenuItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.PutMenuItem(ctx, model.MenuItem{ID: "Z", Name: "Sold out", Price: 1000})
	})
	require.NoError(t, err)

	_, err = f.mgr.Create(ctx, "T1", []model.OrderItem{{MenuItemID: "Z", Quantity: 1}})
	assert.True(t, model.IsValidation(err))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(2, ""), y(1)})
	require.NoError(t, err)
	_, before := f.order(t, id)

	note := "birthday"
	o, err := f.mgr.Update(ctx, id, Patch{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, "birthday", o.Note)
	assert.Equal(t, int64(2), o.Version)

	// Menu price changes; lines in an update merge like AddItems.
	err = f.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.PutMenuItem(ctx, model.MenuItem{ID: "X", Name: "Item X", Price: 25000, Available: true})
	})
	require.NoError(t, err)

	o, err = f.mgr.Update(ctx, id, Patch{Items: []model.OrderItem{x(1, ""), x(1, " extra spicy ")}})
	require.NoError(t, err)
	_, items := f.order(t, id)
	require.Len(t, items, 3)
	assert.Equal(t, before[0].ID, items[0].ID, "matching key keeps its line id")
	assert.Equal(t, int64(3), items[0].Quantity, "quantities add up")
	assert.Equal(t, int64(20000), items[0].Price, "existing line is never re-priced")
	assert.Equal(t, before[1].ID, items[1].ID, "lines absent from the update stay")
	assert.Equal(t, "extra spicy", items[2].Note)
	assert.Equal(t, int64(25000), items[2].Price)
	assert.Equal(t, int64(100000), o.Total)
	assert.Equal(t, int64(3), o.Version)
	assertTotals(t, o, items)

	entries, err := f.store.QueueEntries(ctx, 0)
	require.NoError(t, err)
	var notePatch model.OrderPatch
	for _, e := range entries {
		if e.Op == model.OpOrderPatch {
			require.NoError(t, unmarshal(e.Payload, &notePatch))
			break
		}
	}
	require.NotNil(t, notePatch.Note)
	assert.Nil(t, notePatch.Total, "a note patch carries only the note")
	assert.Nil(t, notePatch.Status)

	other, err := f.mgr.Create(ctx, "T2", nil)
	require.NoError(t, err)
	t2 := "T2"
	_, err = f.mgr.Update(ctx, id, Patch{TableID: &t2})
	assert.True(t, model.IsTableOccupied(err))

	t3 := "T3"
	o, err = f.mgr.Update(ctx, other, Patch{TableID: &t3})
	require.NoError(t, err)
	assert.Equal(t, "T3", o.TableID)
	assertOneActivePerTable(t, f.store)
}

func TestAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.NoError(t, err)

	_, err = f.mgr.Advance(ctx, id, model.StatusReady)
	assert.True(t, model.IsInvalidTransition(err))

	o, err := f.mgr.Advance(ctx, id, model.StatusCooking)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCooking, o.Status)
	assert.Equal(t, int64(2), o.Version)

	o, err = f.mgr.Advance(ctx, id, model.StatusCooking)
	require.NoError(t, err)
	assert.Equal(t, int64(2), o.Version, "same status is a no-op")

	_, err = f.mgr.Advance(ctx, id, model.StatusCompleted)
	assert.True(t, model.IsValidation(err))

	o, err = f.mgr.Advance(ctx, id, model.StatusReady)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, o.Status)
}

func TestCheckout_WithDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(3, ""), x(1, "ít đá")})
	require.NoError(t, err)

	o, err := f.mgr.Checkout(ctx, id, CheckoutRequest{
		Method:   "cash",
		Discount: &model.Discount{Amount: 10000, Reason: "regular"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(70000), o.Total)
	assert.Equal(t, int64(80000), o.Subtotal)
	assert.Equal(t, model.StatusCompleted, o.Status)
	assert.True(t, o.Paid)
	assert.Equal(t, "cash", o.PaymentMethod)

	f.disp.Wait()
	var final []printing.Ticket
	for _, tk := range f.printer.Tickets() {
		if tk.Action == printing.ActionFinal {
			final = append(final, tk)
		}
	}
	require.Len(t, final, 1)
	assert.Equal(t, int64(70000), final[0].Total)
	assert.Equal(t, "Item X", final[0].Lines[0].Name)

	_, err = f.mgr.Checkout(ctx, id, CheckoutRequest{Method: "cash"})
	assert.True(t, model.IsTerminal(err))
	_, err = f.mgr.Cancel(ctx, id, "")
	assert.True(t, model.IsTerminal(err))
}

func TestCheckout_DiscountFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, model.TakeawayTable, []model.OrderItem{y(1)})
	require.NoError(t, err)

	o, err := f.mgr.Checkout(ctx, id, CheckoutRequest{Method: "card", Discount: &model.Discount{Amount: 99999}})
	require.NoError(t, err)
	assert.Zero(t, o.Total)
	assert.Equal(t, int64(15000), o.Subtotal)
}

func TestCheckout_ExplicitAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(2, "")})
	require.NoError(t, err)
	_, err = f.mgr.Advance(ctx, id, model.StatusCooking)
	require.NoError(t, err)

	amount := int64(35000)
	o, err := f.mgr.Checkout(ctx, id, CheckoutRequest{Method: "card", ExplicitAmount: &amount})
	require.NoError(t, err)
	assert.Equal(t, int64(35000), o.Total)
	assert.Equal(t, int64(40000), o.Subtotal)

	_, err = f.mgr.Checkout(ctx, id, CheckoutRequest{})
	assert.True(t, model.IsValidation(err))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.NoError(t, err)

	o, err := f.mgr.Cancel(ctx, id, "customer left")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, o.Status)
	assert.Equal(t, "customer left", o.Note)

	_, items := f.order(t, id)
	assert.Len(t, items, 1, "cancel leaves lines alone")

	again, err := f.mgr.Cancel(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, o.Version, again.Version)

	_, err = f.mgr.Cancel(ctx, "missing", "")
	assert.True(t, model.IsNotFound(err))
}

func TestSplit_PartialToTakeaway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(3, "")})
	require.NoError(t, err)
	_, srcItems := f.order(t, src)

	tgt, err := f.mgr.Split(ctx, src, []SplitLine{{ItemID: srcItems[0].ID, Quantity: 2}}, model.TakeawayTable)
	require.NoError(t, err)
	assert.NotEqual(t, src, tgt)

	so, sItems := f.order(t, src)
	require.Len(t, sItems, 1)
	assert.Equal(t, int64(1), sItems[0].Quantity)
	assert.Equal(t, srcItems[0].ID, sItems[0].ID)
	assert.Equal(t, int64(20000), so.Total)
	assert.Equal(t, model.StatusPending, so.Status)
	assertTotals(t, so, sItems)

	to, tItems := f.order(t, tgt)
	require.Len(t, tItems, 1)
	assert.Equal(t, int64(2), tItems[0].Quantity)
	assert.NotEqual(t, srcItems[0].ID, tItems[0].ID)
	assert.Equal(t, int64(40000), to.Total)
	assert.Equal(t, model.TakeawayTable, to.TableID)
	assertTotals(t, to, tItems)

	// A second split to takeaway never joins the first.
	other, err := f.mgr.Split(ctx, src, []SplitLine{{ItemID: srcItems[0].ID, Quantity: 1}}, model.TakeawayTable)
	require.NoError(t, err)
	assert.NotEqual(t, tgt, other)

	so, _ = f.order(t, src)
	assert.Equal(t, model.StatusCancelled, so.Status, "emptied source is cancelled")
	assert.Equal(t, "split into "+other, so.Note)
}

func TestSplit_IntoActiveTableMerges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(2, ""), y(2)})
	require.NoError(t, err)
	dst, err := f.mgr.Create(ctx, "T2", []model.OrderItem{x(1, "")})
	require.NoError(t, err)
	_, srcItems := f.order(t, src)

	got, err := f.mgr.Split(ctx, src, []SplitLine{
		{ItemID: srcItems[0].ID, Quantity: 1},
		{ItemID: srcItems[1].ID, Quantity: 2},
	}, "T2")
	require.NoError(t, err)
	assert.Equal(t, dst, got)

	do, dItems := f.order(t, dst)
	require.Len(t, dItems, 2)
	assert.Equal(t, int64(2), dItems[0].Quantity, "moved X collapses into the existing X line")
	assert.Equal(t, srcItems[1].ID, dItems[1].ID, "a fully moved line keeps its id")
	assert.Equal(t, int64(70000), do.Total)
	assert.Equal(t, int64(2), do.Version)

	so, sItems := f.order(t, src)
	require.Len(t, sItems, 1)
	assert.Equal(t, int64(20000), so.Total)
	assertOneActivePerTable(t, f.store)
}

func TestSplit_ToFreeTableCreatesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, ""), y(1)})
	require.NoError(t, err)
	_, items := f.order(t, src)

	tgt, err := f.mgr.Split(ctx, src, []SplitLine{{ItemID: items[1].ID, Quantity: 1}}, "T4")
	require.NoError(t, err)

	active, err := f.mgr.ActiveForTable(ctx, "T4")
	require.NoError(t, err)
	assert.Equal(t, tgt, active.ID)
	assertOneActivePerTable(t, f.store)
}

func TestSplit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(3, "")})
	require.NoError(t, err)
	_, items := f.order(t, src)
	before := len(f.queueOps(t))

	cases := []struct {
		name  string
		moves []SplitLine
		table string
	}{
		{"too many", []SplitLine{{ItemID: items[0].ID, Quantity: 4}}, model.TakeawayTable},
		{"repeated over limit", []SplitLine{{ItemID: items[0].ID, Quantity: 2}, {ItemID: items[0].ID, Quantity: 2}}, model.TakeawayTable},
		{"zero", []SplitLine{{ItemID: items[0].ID, Quantity: 0}}, model.TakeawayTable},
		{"unknown item", []SplitLine{{ItemID: "nope", Quantity: 1}}, model.TakeawayTable},
		{"same table", []SplitLine{{ItemID: items[0].ID, Quantity: 1}}, "T1"},
		{"empty", nil, model.TakeawayTable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.mgr.Split(ctx, src, tc.moves, tc.table)
			require.Error(t, err)
			assert.True(t, model.IsValidation(err), "got %v", err)
		})
	}

	o, after := f.order(t, src)
	assert.Equal(t, int64(3), after[0].Quantity)
	assert.Equal(t, int64(1), o.Version)
	assert.Len(t, f.queueOps(t), before)
}

func TestMergeOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, ""), x(1, "no ice")})
	require.NoError(t, err)
	dst, err := f.mgr.Create(ctx, "T2", []model.OrderItem{x(2, ""), y(1)})
	require.NoError(t, err)

	got, err := f.mgr.MergeOrders(ctx, "T1", "T2")
	require.NoError(t, err)
	assert.Equal(t, dst, got)

	do, dItems := f.order(t, dst)
	require.Len(t, dItems, 3)
	assert.Equal(t, int64(3), dItems[0].Quantity)
	assert.Equal(t, "no ice", dItems[2].Note)
	assert.Equal(t, int64(95000), do.Total)
	assertTotals(t, do, dItems)

	so, sItems := f.order(t, src)
	assert.Empty(t, sItems)
	assert.Equal(t, model.StatusCancelled, so.Status)
	assert.Equal(t, "merged into "+dst, so.Note)
	assert.Zero(t, so.Total)

	_, err = f.mgr.ActiveForTable(ctx, "T1")
	assert.True(t, model.IsNotFound(err))
	assertOneActivePerTable(t, f.store)

	_, err = f.mgr.MergeOrders(ctx, "T1", "T2")
	assert.True(t, model.IsNotFound(err))
	_, err = f.mgr.MergeOrders(ctx, "T2", "T2")
	assert.True(t, model.IsValidation(err))
}

func TestMoveTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.NoError(t, err)
	_, err = f.mgr.Create(ctx, "T2", nil)
	require.NoError(t, err)

	err = f.mgr.MoveTable(ctx, "T1", "T2")
	assert.True(t, model.IsTableOccupied(err))

	require.NoError(t, f.mgr.MoveTable(ctx, "T1", "T3"))
	o, _ := f.order(t, id)
	assert.Equal(t, "T3", o.TableID)
	assert.Equal(t, int64(2), o.Version)

	err = f.mgr.MoveTable(ctx, "T1", "T5")
	assert.True(t, model.IsNotFound(err))
	assertOneActivePerTable(t, f.store)
}

func TestReprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(1, "")})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Reprint(ctx, id, printing.ActionTest))
	require.NoError(t, f.mgr.Reprint(ctx, id, ""))
	assert.True(t, model.IsNotFound(f.mgr.Reprint(ctx, "missing", "")))

	f.disp.Wait()
	assert.ElementsMatch(t,
		[]printing.Action{printing.ActionProvisional, printing.ActionTest, printing.ActionEditReprint},
		f.printer.Actions())
}

func TestCreateTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tb, err := f.mgr.CreateTable(ctx, model.Table{ID: "T9"})
	require.NoError(t, err)
	assert.Equal(t, "T9", tb.Label)
	assert.True(t, tb.PendingCreate)

	_, err = f.mgr.CreateTable(ctx, model.Table{ID: model.TakeawayTable})
	assert.True(t, model.IsValidation(err))
}

func TestUnknownTableRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.CreateTable(ctx, model.Table{ID: "T1"})
	require.NoError(t, err)
	_, err = f.mgr.CreateTable(ctx, model.Table{ID: "T2"})
	require.NoError(t, err)

	_, err = f.mgr.Create(ctx, "T8", []model.OrderItem{x(1, "")})
	assert.True(t, model.IsValidation(err))

	id, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(2, "")})
	require.NoError(t, err)
	_, items := f.order(t, id)

	_, err = f.mgr.Split(ctx, id, []SplitLine{{ItemID: items[0].ID, Quantity: 1}}, "T8")
	assert.True(t, model.IsValidation(err))
	assert.True(t, model.IsValidation(f.mgr.MoveTable(ctx, "T1", "T8")))
	t8 := "T8"
	_, err = f.mgr.Update(ctx, id, Patch{TableID: &t8})
	assert.True(t, model.IsValidation(err))

	require.NoError(t, f.mgr.MoveTable(ctx, "T1", "T2"))
	_, err = f.mgr.Create(ctx, model.TakeawayTable, []model.OrderItem{x(1, "")})
	require.NoError(t, err)

	o, _ := f.order(t, id)
	assert.Equal(t, "T2", o.TableID)
}

func TestDrainConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.mgr.Create(ctx, "T1", []model.OrderItem{x(3, "")})
	require.NoError(t, err)
	_, items := f.order(t, src)
	tgt, err := f.mgr.Split(ctx, src, []SplitLine{{ItemID: items[0].ID, Quantity: 2}}, model.TakeawayTable)
	require.NoError(t, err)
	_, err = f.mgr.Checkout(ctx, tgt, CheckoutRequest{Method: "cash"})
	require.NoError(t, err)

	r, err := f.queue.Drain(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, r.Remaining)
	assert.Zero(t, r.Dropped)

	for _, id := range []string{src, tgt} {
		local, localItems := f.order(t, id)
		assert.True(t, local.Synced)
		remote, remoteItems, ok := f.api.Order(id)
		require.True(t, ok)
		assert.Equal(t, local.Total, remote.Total)
		assert.Equal(t, local.Status, remote.Status)
		assert.Equal(t, local.Version, remote.Version)
		assert.Len(t, remoteItems, len(localItems))
	}
}
