package printing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offpos/internal/model"
)

var printedAt = time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)

func sampleOrder() (model.Order, []model.OrderItem) {
	o := model.Order{
		ID:            "ord-1",
		TableID:       "T5",
		Status:        model.StatusCompleted,
		Subtotal:      80000,
		Discount:      10000,
		Total:         70000,
		Paid:          true,
		PaymentMethod: "cash",
		Version:       4,
	}
	items := []model.OrderItem{
		{ID: "li-1", OrderID: "ord-1", MenuItemID: "pho", Name: "Pho bo", Quantity: 2, Price: 40000},
		{ID: "li-2", OrderID: "ord-1", MenuItemID: "gone", Name: "Tra da", Quantity: 1, Price: 0, Note: "it da"},
	}
	return o, items
}

func TestBuildTicket_ResolvesNames(t *testing.T) {
	o, items := sampleOrder()
	lookup := func(id string) (string, bool) {
		if id == "pho" {
			return "Pho bo dac biet", true
		}
		return "", false
	}

	tk := BuildTicket(ActionFinal, o, items, lookup, printedAt)

	require.Len(t, tk.Lines, 2)
	assert.Equal(t, "Pho bo dac biet", tk.Lines[0].Name, "live menu name wins")
	assert.Equal(t, int64(80000), tk.Lines[0].Amount)
	assert.Equal(t, "Tra da", tk.Lines[1].Name, "deleted menu entry falls back to snapshot")
	assert.Equal(t, int64(70000), tk.Total)
}

func TestBuildTicket_Golden(t *testing.T) {
	o, items := sampleOrder()
	tk := BuildTicket(ActionFinal, o, items, nil, printedAt)

	data, err := json.MarshalIndent(tk, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "final_ticket", append(data, '\n'))
}

func TestDispatcher_DeliversInBackground(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec)

	o, items := sampleOrder()
	d.Dispatch(BuildTicket(ActionProvisional, o, items, nil, printedAt))
	d.Dispatch(BuildTicket(ActionEditReprint, o, items, nil, printedAt))
	d.Wait()

	assert.ElementsMatch(t, []Action{ActionProvisional, ActionEditReprint}, rec.Actions())
}

func TestDispatcher_FailureDoesNotPropagate(t *testing.T) {
	var calls int
	var mu sync.Mutex
	d := NewDispatcher(PrinterFunc(func(ctx context.Context, _ Ticket) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("printer offline")
	}))

	d.Dispatch(Ticket{OrderID: "ord-1", Action: ActionFinal})
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestDispatcher_TimeoutBoundsSlowPrinter(t *testing.T) {
	done := make(chan error, 1)
	d := NewDispatcher(PrinterFunc(func(ctx context.Context, _ Ticket) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	}), WithTimeout(20*time.Millisecond))

	d.Dispatch(Ticket{OrderID: "ord-1"})
	d.Wait()

	assert.ErrorIs(t, <-done, context.DeadlineExceeded)
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(Ticket{})
	d.Wait()

	NewDispatcher(nil).Dispatch(Ticket{})
}

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQPPrinter_Publish(t *testing.T) {
	pub := &fakePublisher{}
	p := NewAMQPPrinter(pub, "")

	o, items := sampleOrder()
	require.NoError(t, p.Print(context.Background(), BuildTicket(ActionFinal, o, items, nil, printedAt)))

	assert.Equal(t, DefaultExchange, pub.exchange)
	assert.Equal(t, "print.final", pub.key)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, "ord-1:4:final", pub.msg.MessageId)

	var got Ticket
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Len(t, got.Lines, 2)
}

func TestAMQPPrinter_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	p := NewAMQPPrinter(pub, "kitchen")

	err := p.Print(context.Background(), Ticket{OrderID: "x", Action: ActionTest})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish ticket")
	assert.Equal(t, "kitchen", pub.exchange)
	assert.Equal(t, "print.test", pub.key)
}
