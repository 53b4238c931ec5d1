package model

import (
	"encoding/json"
	"time"
)

// TakeawayTable is the reserved table reference for orders that are not
// bound to a physical table. Any number of takeaway orders may be active.
const TakeawayTable = "takeaway"

// IsTakeaway reports whether tableID is the takeaway sentinel.
func IsTakeaway(tableID string) bool {
	return tableID == TakeawayTable
}

// Order is one bill. Total is always derived from the items.
type Order struct {
	ID            string    `json:"id"`
	TableID       string    `json:"table_id"`
	Status        Status    `json:"status"`
	Subtotal      int64     `json:"subtotal_amount"`
	Discount      int64     `json:"discount_amount"`
	Total         int64     `json:"total_amount"`
	Paid          bool      `json:"paid"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Note          string    `json:"note,omitempty"`
	Version       int64     `json:"version"`
	StaffID       string    `json:"staff_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Local-only fields, never sent to the backend.
	Synced      bool   `json:"-"`
	DuplicateOf string `json:"-"`
}

// Active reports whether the order holds an operational status and has not
// been quarantined as a duplicate.
func (o Order) Active() bool {
	return o.Status.Operational() && o.DuplicateOf == ""
}

// OrderItem is one line on an order. Price and Name are snapshots taken when
// the line was added and are never re-priced from the live menu.
type OrderItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	Price      int64  `json:"price"`
	Note       string `json:"note"`
}

// LineTotal returns Price × Quantity.
func (i OrderItem) LineTotal() int64 {
	return i.Price * i.Quantity
}

// MenuItem is a cached menu entry.
type MenuItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Category  string `json:"category,omitempty"`
	Available bool   `json:"available"`

	// PendingCreate marks an entry created on this device that the backend
	// has not acknowledged yet. A pull never discards it.
	PendingCreate bool `json:"-"`
}

// Table is a cached dining table.
type Table struct {
	ID    string `json:"id"`
	Label string `json:"label"`

	PendingCreate bool `json:"-"`
}

// Discount is applied at checkout.
type Discount struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// Op names a remote operation carried by a queue entry.
type Op string

const (
	OpOrderUpsert  Op = "order.upsert"
	OpOrderPatch   Op = "order.patch"
	OpItemsReplace Op = "items.replace"
	OpMenuUpsert   Op = "menu.upsert"
	OpTableUpsert  Op = "table.upsert"
)

// QueueEntry is one durable outbound operation. Seq gives strict FIFO order.
type QueueEntry struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	Op         Op              `json:"op"`
	OrderID    string          `json:"order_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OrderPatch is the payload of an order.patch entry. Nil fields are left
// untouched remotely.
type OrderPatch struct {
	ID            string    `json:"id"`
	TableID       *string   `json:"table_id,omitempty"`
	Status        *Status   `json:"status,omitempty"`
	Subtotal      *int64    `json:"subtotal_amount,omitempty"`
	Discount      *int64    `json:"discount_amount,omitempty"`
	Total         *int64    `json:"total_amount,omitempty"`
	Paid          *bool     `json:"paid,omitempty"`
	PaymentMethod *string   `json:"payment_method,omitempty"`
	Note          *string   `json:"note,omitempty"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ItemSet is the payload of an items.replace entry: the full authoritative
// line set for one order.
type ItemSet struct {
	OrderID string      `json:"order_id"`
	Items   []OrderItem `json:"items"`
}
