package cartengine

// LineView is one projected line plus its engine-side flags.
type LineView struct {
	ResolvedLine
	Key      string `json:"key"`
	Selected bool   `json:"selected"`
	Pending  bool   `json:"pending"`
}

// CartView is a consistent snapshot of the whole engine state, safe to hold
// after the lock is released.
type CartView struct {
	Lines            []LineView      `json:"lines"`
	Totals           Totals          `json:"totals"`
	SelectedTotals   Totals          `json:"selectedTotals"`
	SelectedBranchID string          `json:"selectedBranchId,omitempty"`
	PendingCount     int             `json:"pendingCount"`
	Voucher          *AppliedVoucher `json:"voucher,omitempty"`
	LastError        string          `json:"lastError,omitempty"`
}

// View assembles a snapshot of the current state.
func (e *Engine) View() CartView {
	e.mu.Lock()
	defer e.mu.Unlock()

	ordered := e.projection.ordered()
	view := CartView{
		Lines:            make([]LineView, 0, len(ordered)),
		Totals:           aggregate(ordered, includeAll, e.discountAmount()),
		SelectedTotals:   e.selectedTotalsLocked(),
		SelectedBranchID: e.selection.Branch(e.projection.byIdentity()),
		PendingCount:     len(e.pending),
	}

	for _, line := range ordered {
		_, pending := e.pending[line.Identity]
		view.Lines = append(view.Lines, LineView{
			ResolvedLine: *line.Clone(),
			Key:          line.Key(),
			Selected:     e.selection.has(line.Identity),
			Pending:      pending,
		})
	}

	if e.voucher != nil {
		copied := *e.voucher
		view.Voucher = &copied
	}
	if e.lastMutationErr != nil {
		view.LastError = e.lastMutationErr.Message()
	}
	return view
}
