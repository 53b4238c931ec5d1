// Package merge combines order-item lists into deduplicated line sets.
//
// Two lines are the same logical line when they share a menu item and a
// normalized note. A differently worded note is a different line, since it
// changes what the kitchen makes.
//
// Merge is pure: it is used both to preview totals and to compute the value
// that is persisted, so both paths must agree bit for bit.
package merge

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/offpos/internal/model"
)

// LineKey identifies a logical order line.
type LineKey struct {
	MenuItemID string
	Note       string
}

// NormalizeNote trims whitespace and applies NFC so that composed and
// decomposed forms of the same text ("ít đá") compare equal. The empty
// string is the canonical "no note".
func NormalizeNote(note string) string {
	return strings.TrimSpace(norm.NFC.String(note))
}

// Key returns the composite key for an item.
func Key(it model.OrderItem) LineKey {
	return LineKey{MenuItemID: it.MenuItemID, Note: NormalizeNote(it.Note)}
}

// Merge folds incoming into existing and returns a new slice.
//
// Matching lines have their quantities summed; the existing line keeps its
// id, price and name. Unmatched incoming lines are appended in incoming
// order, with newID supplying an id when the line has none. Neither input
// is modified.
func Merge(existing, incoming []model.OrderItem, newID func() string) []model.OrderItem {
	out := make([]model.OrderItem, 0, len(existing)+len(incoming))
	index := make(map[LineKey]int, len(existing)+len(incoming))

	add := func(it model.OrderItem, assignID bool) {
		it.Note = NormalizeNote(it.Note)
		k := LineKey{MenuItemID: it.MenuItemID, Note: it.Note}
		if i, ok := index[k]; ok {
			out[i].Quantity += it.Quantity
			return
		}
		if assignID && it.ID == "" && newID != nil {
			it.ID = newID()
		}
		index[k] = len(out)
		out = append(out, it)
	}

	for _, it := range existing {
		add(it, false)
	}
	for _, it := range incoming {
		add(it, true)
	}
	return out
}

// Preview returns the total the merged line set would have without
// allocating ids.
func Preview(existing, incoming []model.OrderItem) int64 {
	return model.ItemsTotal(Merge(existing, incoming, nil))
}

// Normalize collapses duplicate keys within a single list.
func Normalize(items []model.OrderItem, newID func() string) []model.OrderItem {
	return Merge(nil, items, newID)
}
