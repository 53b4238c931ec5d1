package model

// ItemsTotal returns Σ(price × quantity) over items.
func ItemsTotal(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}

// ApplyDiscount returns max(0, base - discount).
func ApplyDiscount(base, discount int64) int64 {
	if discount <= 0 {
		return base
	}
	if discount >= base {
		return 0
	}
	return base - discount
}

// Recompute sets Subtotal and Total on o from items, keeping the discount
// already recorded on the order.
func Recompute(o *Order, items []OrderItem) {
	o.Subtotal = ItemsTotal(items)
	o.Total = ApplyDiscount(o.Subtotal, o.Discount)
}
