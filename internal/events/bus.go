// Package events carries change notifications from store writers to view
// subscribers.
//
// Writers publish one Change per committed transaction naming every
// collection it touched. Subscribers re-read the store on each signal, so a
// subscriber that falls behind only needs the latest signal: delivery is
// coalesced through a buffered channel of size 1 and never blocks a writer.
package events

import "sync"

// Collection names a local store collection.
type Collection string

const (
	Orders     Collection = "orders"
	OrderItems Collection = "order_items"
	MenuItems  Collection = "menu_items"
	Tables     Collection = "tables"
	Queue      Collection = "offline_queue"
)

// Change describes one committed write.
type Change struct {
	Collections []Collection
	OrderIDs    []string
}

// Touches reports whether the change affects any of the given collections.
func (c Change) Touches(cols ...Collection) bool {
	for _, have := range c.Collections {
		for _, want := range cols {
			if have == want {
				return true
			}
		}
	}
	return false
}

type subscriber struct {
	filter []Collection
	ch     chan Change
}

// Bus is a non-blocking fan-out of Change signals.
//
// Thread-safety: all methods are safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	next   int
	subs   map[int]*subscriber
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers for changes touching any of cols (all changes when
// cols is empty). The returned cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(cols ...Collection) (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = &subscriber{filter: cols, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish delivers c to every matching subscriber without blocking. A
// subscriber whose buffer is full already has a pending signal and will
// re-read the store anyway.
func (b *Bus) Publish(c Change) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if len(s.filter) > 0 && !c.Touches(s.filter...) {
			continue
		}
		select {
		case s.ch <- c:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}
