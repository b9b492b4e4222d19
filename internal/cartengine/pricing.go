package cartengine

// Totals aggregates a set of cart lines. Subtotal always uses the snapshot
// price carried from the raw cart, never the live catalog price: the
// snapshot is what the customer is billed.
type Totals struct {
	ItemCount int   `json:"itemCount"`
	Subtotal  int64 `json:"subtotal"`
	Discount  int64 `json:"discount"`
	Total     int64 `json:"total"`
}

// AppliedVoucher carries the externally computed discount. The engine only
// wires it through; it performs no discount math.
type AppliedVoucher struct {
	Code           string `json:"code"`
	VoucherID      string `json:"voucherId"`
	DiscountAmount int64  `json:"discountAmount"`
}

func aggregate(lines []*ResolvedLine, include func(*ResolvedLine) bool, discount int64) Totals {
	t := Totals{Discount: discount}
	for _, line := range lines {
		if include != nil && !include(line) {
			continue
		}
		t.ItemCount += line.Quantity
		t.Subtotal += line.Price * int64(line.Quantity)
	}
	t.Total = t.Subtotal - discount
	return t
}

func includeAll(*ResolvedLine) bool { return true }

func (e *Engine) discountAmount() int64 {
	if e.voucher == nil {
		return 0
	}
	return e.voucher.DiscountAmount
}

// Totals aggregates the whole cart.
func (e *Engine) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return aggregate(e.projection.ordered(), includeAll, e.discountAmount())
}

// SelectedTotals aggregates only the lines marked for checkout.
func (e *Engine) SelectedTotals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedTotalsLocked()
}

func (e *Engine) selectedTotalsLocked() Totals {
	return aggregate(e.projection.ordered(), func(line *ResolvedLine) bool {
		return e.selection.has(line.Identity)
	}, e.discountAmount())
}
