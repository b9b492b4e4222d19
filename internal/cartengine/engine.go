package cartengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/mahendraputra/storefront-backend/internal/catalog"
	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	"github.com/mahendraputra/storefront-backend/internal/voucher"
	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
	"github.com/mahendraputra/storefront-backend/pkg/logger"
	"github.com/mahendraputra/storefront-backend/pkg/metrics"
)

// ProductLoader fetches one populated catalog product.
type ProductLoader interface {
	Product(ctx context.Context, productID string) (*catalog.Product, error)
}

// productInvalidator is the optional cache surface of a ProductLoader. A
// rejected commit usually means the cached stock is stale, so the engine
// drops the entry before the next refresh.
type productInvalidator interface {
	Invalidate(ctx context.Context, productID string) error
}

// VoucherApplier is the voucher collaborator surface the engine wires.
type VoucherApplier interface {
	Apply(ctx context.Context, code string, baseAmount int64, productIDs []string) (*voucher.Applied, error)
}

// Config tunes the engine's timing behavior.
type Config struct {
	// DebounceWindow delays the outbound call after a quantity edit so
	// rapid edits on the same line coalesce into one request.
	DebounceWindow time.Duration
	// OrphanPurgeDelay defers remote deletion of orphaned lines so a flaky
	// catalog populate does not destroy data prematurely.
	OrphanPurgeDelay time.Duration
	// CommitTimeout bounds the upstream calls issued after the originating
	// request already returned.
	CommitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 500 * time.Millisecond
	}
	if c.OrphanPurgeDelay <= 0 {
		c.OrphanPurgeDelay = 2 * time.Second
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 10 * time.Second
	}
	return c
}

// Engine reconciles one user's raw cart against live catalog data and
// manages selection and optimistic mutation. It is the explicit observable
// store: every visible state change notifies subscribers.
type Engine struct {
	store    rawcart.Store
	products ProductLoader
	vouchers VoucherApplier
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	cfg      Config

	mu         sync.Mutex
	projection *projection
	selection  selectionSet
	pending    map[LineIdentity]pendingChange
	timers     map[LineIdentity]*time.Timer
	snapshots  map[LineIdentity]*mutationSnapshot
	voucher    *AppliedVoucher

	purgeTimers map[int]*time.Timer
	nextPurgeID int

	lastMutationErr *pkgerrors.Error

	refreshWait chan struct{}
	lastRefresh RefreshResult
	refreshErr  error

	subscribers map[int]func(CartView)
	nextSubID   int

	closed bool
}

// NewEngine builds a cart engine backed by the provided collaborators. The
// voucher applier may be nil when no voucher service is deployed.
func NewEngine(store rawcart.Store, products ProductLoader, vouchers VoucherApplier, logg *logger.Logger, m *metrics.EngineMetrics, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &Engine{
		store:       store,
		products:    products,
		vouchers:    vouchers,
		logg:        logg,
		metrics:     m,
		cfg:         cfg.withDefaults(),
		projection:  newProjection(nil),
		pending:     map[LineIdentity]pendingChange{},
		timers:      map[LineIdentity]*time.Timer{},
		snapshots:   map[LineIdentity]*mutationSnapshot{},
		purgeTimers: map[int]*time.Timer{},
		subscribers: map[int]func(CartView){},
	}, nil
}

// RefreshResult reports what a projection rebuild produced.
type RefreshResult struct {
	Lines   int      `json:"lines"`
	Dropped int      `json:"dropped"`
	Notices []Notice `json:"notices,omitempty"`
}

// Refresh rebuilds the projection from the raw cart. Concurrent calls share
// one in-flight rebuild rather than duplicating network work.
func (e *Engine) Refresh(ctx context.Context) (RefreshResult, error) {
	e.mu.Lock()
	if wait := e.refreshWait; wait != nil {
		e.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return RefreshResult{}, ctx.Err()
		}
		e.mu.Lock()
		res, err := e.lastRefresh, e.refreshErr
		e.mu.Unlock()
		return res, err
	}
	wait := make(chan struct{})
	e.refreshWait = wait
	e.mu.Unlock()

	res, err := e.doRefresh(ctx)

	e.mu.Lock()
	e.lastRefresh, e.refreshErr = res, err
	e.refreshWait = nil
	e.mu.Unlock()
	close(wait)

	if err == nil {
		e.notify()
	}
	return res, err
}

func (e *Engine) doRefresh(ctx context.Context) (RefreshResult, error) {
	start := time.Now()

	raws, err := e.store.Fetch(ctx)
	if err != nil {
		return RefreshResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch cart")
	}

	resolved := make([]*ResolvedLine, len(raws))
	var (
		resolveMu sync.Mutex
		orphans   []Orphan
		errs      error
		wg        sync.WaitGroup
	)

	for i, raw := range raws {
		wg.Add(1)
		go func(i int, raw rawcart.Line) {
			defer wg.Done()

			product, err := e.products.Product(ctx, raw.ProductID)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
					resolveMu.Lock()
					orphans = append(orphans, Orphan{Raw: raw, Reason: OrphanProductNotFound})
					resolveMu.Unlock()
					return
				}
				resolveMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("resolve product %s: %w", raw.ProductID, err))
				resolveMu.Unlock()
				return
			}

			line, orphan := ResolveLine(raw, product)
			resolveMu.Lock()
			if orphan != nil {
				orphans = append(orphans, *orphan)
			} else {
				resolved[i] = line
			}
			resolveMu.Unlock()
		}(i, raw)
	}
	wg.Wait()

	if errs != nil {
		// A transient catalog failure must not wipe the projection; leave
		// the previous state visible.
		return RefreshResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "resolve cart")
	}

	compacted := make([]*ResolvedLine, 0, len(resolved))
	for _, line := range resolved {
		if line != nil {
			compacted = append(compacted, line)
		}
	}

	var notices []Notice

	e.mu.Lock()
	e.projection = newProjection(compacted)
	notices = append(notices, e.selection.Revalidate(e.projection.byIdentity())...)
	lineCount := e.projection.len()
	e.mu.Unlock()

	e.metrics.IncRefresh()
	e.metrics.ObserveResolveDuration(time.Since(start))

	if len(orphans) > 0 {
		notices = append(notices, newNotice(NoticeOrphansDropped,
			"%d item(s) are no longer available and were removed from your cart", len(orphans)))
		e.metrics.AddOrphansDropped(len(orphans))
		e.schedulePurge(orphans)
	}

	return RefreshResult{Lines: lineCount, Dropped: len(orphans), Notices: notices}, nil
}

// schedulePurge deletes orphaned raw lines upstream after a delay. Timers
// are tracked so Close can cancel purges for an evicted session. Failures
// are logged and swallowed: a leftover orphan resurfaces on the next refresh.
func (e *Engine) schedulePurge(orphans []Orphan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	for _, orphan := range orphans {
		orphan := orphan
		id := e.nextPurgeID
		e.nextPurgeID++
		e.purgeTimers[id] = time.AfterFunc(e.cfg.OrphanPurgeDelay, func() {
			e.mu.Lock()
			_, live := e.purgeTimers[id]
			delete(e.purgeTimers, id)
			closed := e.closed
			e.mu.Unlock()
			if !live || closed {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CommitTimeout)
			defer cancel()
			if err := e.store.RemoveItem(ctx, orphan.Ref()); err != nil && e.logg != nil {
				ctx = e.logg.WithFields(ctx, map[string]any{
					"product_id": orphan.Raw.ProductID,
					"reason":     string(orphan.Reason),
				})
				e.logg.Warn(ctx, "cart.orphan_purge_failed")
			}
		})
	}
}

// Subscribe registers a listener invoked with a fresh view after every
// visible state change. The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(CartView)) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

func (e *Engine) notify() {
	view := e.View()

	e.mu.Lock()
	subs := make([]func(CartView), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

// SelectionResult reports the side effects of a selection operation.
type SelectionResult struct {
	Cleared bool     `json:"cleared"`
	Notices []Notice `json:"notices,omitempty"`
}

// CanSelect reports whether the line could join the current selection.
func (e *Engine) CanSelect(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.CanSelect(e.projection.find(key), e.projection.byIdentity())
}

// Select marks a line for checkout. Selecting across branches replaces the
// existing selection and reports it was cleared.
func (e *Engine) Select(key string) (SelectionResult, error) {
	e.mu.Lock()
	line := e.projection.find(key)
	cleared, err := e.selection.Select(line, e.projection.byIdentity())
	e.mu.Unlock()

	if err != nil {
		return SelectionResult{}, err
	}

	res := SelectionResult{Cleared: cleared}
	if cleared {
		e.metrics.IncSelectionConflict()
		res.Notices = append(res.Notices, newNotice(NoticeSelectionCleared,
			"items from another branch were unselected"))
	}
	e.notify()
	return res, nil
}

// Unselect removes a line from the checkout selection.
func (e *Engine) Unselect(key string) {
	e.mu.Lock()
	if line := e.projection.find(key); line != nil {
		e.selection.Unselect(line.Identity)
	}
	e.mu.Unlock()
	e.notify()
}

// SelectBranch selects every line assigned to the branch.
func (e *Engine) SelectBranch(branchID string) (SelectionResult, error) {
	e.mu.Lock()
	selected, cleared := e.selection.SelectAllInBranch(branchID, e.projection.ordered(), e.projection.byIdentity())
	e.mu.Unlock()

	if !selected {
		return SelectionResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "no cart lines assigned to this branch")
	}

	res := SelectionResult{Cleared: cleared}
	if cleared {
		e.metrics.IncSelectionConflict()
		res.Notices = append(res.Notices, newNotice(NoticeSelectionCleared,
			"items from another branch were unselected"))
	}
	e.notify()
	return res, nil
}

// UnselectBranch drops every selected line assigned to the branch.
func (e *Engine) UnselectBranch(branchID string) {
	e.mu.Lock()
	e.selection.UnselectAllInBranch(branchID, e.projection.byIdentity())
	e.mu.Unlock()
	e.notify()
}

// ClearSelection empties the checkout selection.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	e.selection.Clear()
	e.mu.Unlock()
	e.notify()
}

// SelectedBranch returns the branch of the current selection, or "".
func (e *Engine) SelectedBranch() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.Branch(e.projection.byIdentity())
}

// ApplyVoucher asks the voucher collaborator for a discount over the
// selected subset (or the whole cart when nothing is selected).
func (e *Engine) ApplyVoucher(ctx context.Context, code string) (*AppliedVoucher, error) {
	if e.vouchers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "voucher service not configured")
	}

	e.mu.Lock()
	useSelection := !e.selection.Empty()
	base := int64(0)
	var productIDs []string
	seen := map[string]struct{}{}
	for _, line := range e.projection.ordered() {
		if useSelection && !e.selection.has(line.Identity) {
			continue
		}
		base += line.Price * int64(line.Quantity)
		if _, ok := seen[line.Identity.ProductID]; !ok {
			seen[line.Identity.ProductID] = struct{}{}
			productIDs = append(productIDs, line.Identity.ProductID)
		}
	}
	e.mu.Unlock()

	applied, err := e.vouchers.Apply(ctx, code, base, productIDs)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply voucher")
	}

	voucher := &AppliedVoucher{
		Code:           code,
		VoucherID:      applied.VoucherID,
		DiscountAmount: applied.DiscountAmount,
	}

	e.mu.Lock()
	e.voucher = voucher
	e.mu.Unlock()
	e.notify()
	return voucher, nil
}

// ClearVoucher drops the applied discount.
func (e *Engine) ClearVoucher() {
	e.mu.Lock()
	e.voucher = nil
	e.mu.Unlock()
	e.notify()
}

// Close stops all debounce and purge timers. Pending edits that have not
// fired are abandoned; callers that must not lose them flush first.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
	for id, timer := range e.purgeTimers {
		timer.Stop()
		delete(e.purgeTimers, id)
	}
	e.pending = map[LineIdentity]pendingChange{}
	e.snapshots = map[LineIdentity]*mutationSnapshot{}
}
