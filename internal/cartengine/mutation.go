package cartengine

import (
	"context"
	"time"

	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
	"github.com/mahendraputra/storefront-backend/pkg/metrics"
)

// UpdateRequest is one edit against a projected line. BranchID moves the
// line to another fulfillment branch; Price resyncs the billing snapshot.
type UpdateRequest struct {
	Quantity int     `json:"quantity"`
	BranchID *string `json:"branchId,omitempty"`
	Price    *int64  `json:"price,omitempty"`
}

// UpdateResult reports what the optimistic patch did.
type UpdateResult struct {
	NoOp             bool     `json:"noOp"`
	ClampedTo        int      `json:"clampedTo,omitempty"`
	SelectionCleared bool     `json:"selectionCleared"`
	Notices          []Notice `json:"notices,omitempty"`
}

// pendingChange is the latest desired state for a line awaiting commit.
// Later edits overwrite it wholesale, so only the final state ships.
type pendingChange struct {
	quantity int
	branchID *string
	price    *int64
}

// mutationSnapshot captures what rollback needs for one line: the line as it
// was before the first uncommitted edit, plus the selection at that moment.
type mutationSnapshot struct {
	line      *ResolvedLine
	selection []LineIdentity
}

// UpdateLine applies an edit optimistically and schedules the upstream
// commit behind the debounce window. Quantity is clamped to [1, max stock];
// identical state short-circuits without touching the network.
func (e *Engine) UpdateLine(key string, req UpdateRequest) (UpdateResult, error) {
	e.mu.Lock()

	line := e.projection.find(key)
	if line == nil {
		e.mu.Unlock()
		return UpdateResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	id := line.Identity

	var res UpdateResult

	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}
	if line.MaxQuantity > 0 && quantity > line.MaxQuantity {
		quantity = line.MaxQuantity
		res.ClampedTo = quantity
		res.Notices = append(res.Notices, newNotice(NoticeQuantityClamped,
			"only %d in stock, quantity was adjusted", quantity))
	}

	branchChanged := req.BranchID != nil && *req.BranchID != line.SelectedBranchID
	priceChanged := req.Price != nil && *req.Price != line.Price

	if quantity == line.Quantity && !branchChanged && !priceChanged {
		e.mu.Unlock()
		e.metrics.IncMutation(metrics.MutationNoop)
		res.NoOp = true
		return res, nil
	}

	if _, inFlight := e.pending[id]; !inFlight {
		if _, owned := e.snapshots[id]; !owned {
			e.snapshots[id] = &mutationSnapshot{
				line:      line.Clone(),
				selection: e.selection.snapshot(),
			}
		}
	} else {
		e.metrics.IncMutation(metrics.MutationCoalesced)
	}

	patched := line.Clone()
	patched.Quantity = quantity
	if branchChanged {
		patched.SelectedBranchID = *req.BranchID
	}
	if priceChanged {
		patched.Price = *req.Price
	}
	e.projection.replaceLine(patched)

	// Moving a line across branches invalidates whatever branch the current
	// selection was built around, so the selection is cleared wholesale.
	if branchChanged && !e.selection.Empty() {
		e.selection.Clear()
		res.SelectionCleared = true
		res.Notices = append(res.Notices, newNotice(NoticeSelectionCleared,
			"the branch change cleared your checkout selection"))
		e.metrics.IncSelectionConflict()
	}

	e.pending[id] = pendingChange{
		quantity: quantity,
		branchID: req.BranchID,
		price:    req.Price,
	}

	if timer, ok := e.timers[id]; ok {
		timer.Stop()
	}
	e.timers[id] = time.AfterFunc(e.cfg.DebounceWindow, func() {
		e.commitLine(id)
	})

	e.mu.Unlock()

	e.metrics.IncMutation(metrics.MutationApplied)
	e.notify()
	return res, nil
}

// commitLine ships the debounced edit upstream and rolls the projection back
// when the upstream rejects it. The snapshot is consumed together with the
// pending change: an edit arriving while this commit is in flight snapshots
// the in-flight optimistic state for itself, and this commit must not touch
// that newer snapshot.
func (e *Engine) commitLine(id LineIdentity) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	change, ok := e.pending[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pending, id)
	delete(e.timers, id)
	snapshot := e.snapshots[id]
	delete(e.snapshots, id)

	line := e.projection.get(id)
	if line == nil {
		e.mu.Unlock()
		return
	}

	ref := id.Ref()
	input := rawcart.UpdateInput{
		Quantity:        change.quantity,
		SelectedOptions: commitOptions(line),
		Price:           change.price,
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommitTimeout)
	defer cancel()

	err := e.store.UpdateItem(ctx, ref, input)

	e.mu.Lock()
	if err == nil {
		e.lastMutationErr = nil
		e.mu.Unlock()
		e.metrics.IncMutation(metrics.MutationConfirmed)
		e.notify()
		return
	}

	// A newer edit arrived while this one was in flight. Its snapshot holds
	// this commit's now-rejected state, so swap the older confirmed one back
	// in and let the newer commit reconcile.
	if _, superseded := e.pending[id]; superseded {
		if snapshot != nil {
			e.snapshots[id] = snapshot
		}
		e.mu.Unlock()
		if e.logg != nil {
			e.logg.Warn(e.logg.WithLineKey(context.Background(), id.Key()), "cart.commit_superseded_failure")
		}
		return
	}

	if snapshot != nil && snapshot.line != nil {
		e.projection.replaceLine(snapshot.line.Clone())
		e.selection.restore(snapshot.selection)
		e.selection.Revalidate(e.projection.byIdentity())
	}
	e.lastMutationErr = classifyMutationErr(err)
	e.mu.Unlock()

	e.metrics.IncMutation(metrics.MutationRolledBack)
	if e.logg != nil {
		e.logg.Error(e.logg.WithLineKey(context.Background(), id.Key()), "cart.commit_failed", err)
	}

	// The rejection usually means the cached stock is stale.
	if inv, ok := e.products.(productInvalidator); ok {
		if err := inv.Invalidate(ctx, id.ProductID); err != nil && e.logg != nil {
			e.logg.Warn(e.logg.WithLineKey(context.Background(), id.Key()), "cart.cache_invalidate_failed")
		}
	}

	e.notify()
}

// commitOptions rebuilds the upstream option map from the line: display
// attributes pass through, the engine-owned keys reflect current state.
func commitOptions(line *ResolvedLine) map[string]string {
	options := make(map[string]string, len(line.SelectedOptions)+2)
	for k, v := range line.SelectedOptions {
		options[k] = v
	}
	if line.Identity.CombinationID != "" {
		options[rawcart.OptionCombinationID] = line.Identity.CombinationID
	}
	if line.SelectedBranchID != "" {
		options[rawcart.OptionBranchID] = line.SelectedBranchID
	} else {
		delete(options, rawcart.OptionBranchID)
	}
	return options
}

func classifyMutationErr(err error) *pkgerrors.Error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
}

// LastMutationError returns the most recent rolled-back commit's error, or
// nil after a successful commit.
func (e *Engine) LastMutationError() *pkgerrors.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastMutationErr
}

// Flush commits every pending edit immediately. Intended for tests and
// graceful shutdown; requests never wait on it.
func (e *Engine) Flush() {
	e.mu.Lock()
	ids := make([]LineIdentity, 0, len(e.pending))
	for id := range e.pending {
		if timer, ok := e.timers[id]; ok {
			timer.Stop()
			delete(e.timers, id)
		}
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.commitLine(id)
	}
}

// AddItem adds a product upstream and rebuilds the projection. Adds are not
// optimistic: the upstream owns merge semantics for duplicate lines.
func (e *Engine) AddItem(ctx context.Context, input rawcart.AddInput) (RefreshResult, error) {
	if input.ProductID == "" {
		return RefreshResult{}, pkgerrors.New(pkgerrors.CodeValidation, "productId required")
	}
	if input.Quantity < 1 {
		input.Quantity = 1
	}

	if err := e.store.AddItem(ctx, input); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return RefreshResult{}, typed
		}
		return RefreshResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}

	return e.Refresh(ctx)
}

// RemoveLine strips the line optimistically and deletes it upstream within
// the request. On failure the whole projection rolls back.
func (e *Engine) RemoveLine(ctx context.Context, key string) error {
	e.mu.Lock()

	line := e.projection.find(key)
	if line == nil {
		e.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	id := line.Identity

	if timer, ok := e.timers[id]; ok {
		timer.Stop()
		delete(e.timers, id)
	}
	delete(e.pending, id)
	delete(e.snapshots, id)

	rollback := e.projection.clone()
	rollbackSelection := e.selection.snapshot()
	ref := id.Ref()

	e.projection.removeLine(id)
	e.selection.Unselect(id)
	e.mu.Unlock()

	e.notify()

	err := e.store.RemoveItem(ctx, ref)
	if err == nil {
		return nil
	}

	e.mu.Lock()
	e.projection = rollback
	e.selection.restore(rollbackSelection)
	e.mu.Unlock()
	e.notify()

	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart line")
}

// Clear empties the cart upstream and locally, dropping selection, pending
// edits, and any applied voucher.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}

	e.mu.Lock()
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
	e.pending = map[LineIdentity]pendingChange{}
	e.snapshots = map[LineIdentity]*mutationSnapshot{}
	e.projection = newProjection(nil)
	e.selection.Clear()
	e.voucher = nil
	e.lastMutationErr = nil
	e.mu.Unlock()

	e.notify()
	return nil
}
