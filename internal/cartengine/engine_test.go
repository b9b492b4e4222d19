package cartengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mahendraputra/storefront-backend/internal/catalog"
	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	"github.com/mahendraputra/storefront-backend/internal/voucher"
	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
)

type fakeStore struct {
	mu    sync.Mutex
	lines []rawcart.Line

	updateErr  func(ref rawcart.ItemRef) error
	updateHook func(ref rawcart.ItemRef, input rawcart.UpdateInput) error
	removeErr  error

	updates []struct {
		Ref   rawcart.ItemRef
		Input rawcart.UpdateInput
	}
	removes []rawcart.ItemRef
	adds    []rawcart.AddInput
	clears  int
}

func (f *fakeStore) Fetch(ctx context.Context) ([]rawcart.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rawcart.Line, len(f.lines))
	copy(out, f.lines)
	return out, nil
}

func (f *fakeStore) AddItem(ctx context.Context, input rawcart.AddInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, input)
	return nil
}

func (f *fakeStore) UpdateItem(ctx context.Context, ref rawcart.ItemRef, input rawcart.UpdateInput) error {
	f.mu.Lock()
	hook := f.updateHook
	f.mu.Unlock()
	if hook != nil {
		// Invoked unlocked so a test can block a commit in flight.
		if err := hook(ref, input); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		if err := f.updateErr(ref); err != nil {
			return err
		}
	}
	f.updates = append(f.updates, struct {
		Ref   rawcart.ItemRef
		Input rawcart.UpdateInput
	}{ref, input})
	return nil
}

func (f *fakeStore) RemoveItem(ctx context.Context, ref rawcart.ItemRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removes = append(f.removes, ref)
	return nil
}

func (f *fakeStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeStore) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeStore) removeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removes)
}

type fakeLoader struct {
	mu          sync.Mutex
	products    map[string]*catalog.Product
	err         error
	delay       time.Duration
	calls       int
	invalidated []string
}

func (f *fakeLoader) Product(ctx context.Context, productID string) (*catalog.Product, error) {
	f.mu.Lock()
	f.calls++
	err, delay := f.err, f.delay
	product := f.products[productID]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (f *fakeLoader) Invalidate(ctx context.Context, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, productID)
	return nil
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLoader) invalidatedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.invalidated))
	copy(out, f.invalidated)
	return out
}

type fakeVouchers struct {
	applied *voucher.Applied
	err     error

	gotCode string
	gotBase int64
}

func (f *fakeVouchers) Apply(ctx context.Context, code string, baseAmount int64, productIDs []string) (*voucher.Applied, error) {
	f.gotCode = code
	f.gotBase = baseAmount
	if f.err != nil {
		return nil, f.err
	}
	return f.applied, nil
}

func stockedProduct(id string, stock int) *catalog.Product {
	return &catalog.Product{
		ID:        id,
		Name:      "Product " + id,
		BasePrice: 10000,
		Inventory: []catalog.BranchStock{{BranchID: "B1", Quantity: stock}},
		Variants:  []catalog.Variant{{VariantID: "V-" + id}},
	}
}

func rawLine(productID string, quantity int, branch string) rawcart.Line {
	line := rawcart.Line{
		ProductID: productID,
		VariantID: "V-" + productID,
		Quantity:  quantity,
		Price:     10000,
	}
	if branch != "" {
		line.SelectedOptions = map[string]string{rawcart.OptionBranchID: branch}
	}
	return line
}

func testConfig() Config {
	return Config{
		DebounceWindow:   20 * time.Millisecond,
		OrphanPurgeDelay: 10 * time.Millisecond,
		CommitTimeout:    time.Second,
	}
}

func newTestEngine(t *testing.T, store *fakeStore, loader *fakeLoader, vouchers VoucherApplier) *Engine {
	t.Helper()
	engine, err := NewEngine(store, loader, vouchers, nil, nil, testConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRefreshDropsOrphansAndPurgesUpstream(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{
		rawLine("P1", 1, ""),
		rawLine("P2", 2, ""),
		rawLine("GONE", 1, ""),
	}}
	loader := &fakeLoader{products: map[string]*catalog.Product{
		"P1": stockedProduct("P1", 5),
		"P2": stockedProduct("P2", 5),
	}}
	engine := newTestEngine(t, store, loader, nil)

	res, err := engine.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Lines != 2 || res.Dropped != 1 {
		t.Fatalf("lines=%d dropped=%d, want 2 and 1", res.Lines, res.Dropped)
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != NoticeOrphansDropped {
		t.Fatalf("notices = %v, want one orphans_dropped", res.Notices)
	}

	view := engine.View()
	if len(view.Lines) != 2 {
		t.Fatalf("view has %d lines, want 2", len(view.Lines))
	}
	for _, line := range view.Lines {
		if line.Identity.ProductID == "GONE" {
			t.Fatal("orphan leaked into the projection")
		}
	}

	waitFor(t, "orphan purge", func() bool { return store.removeCount() == 1 })
	store.mu.Lock()
	ref := store.removes[0]
	store.mu.Unlock()
	if ref.ProductID != "GONE" {
		t.Fatalf("purged ref = %+v, want product GONE", ref)
	}
}

func TestRefreshFailureKeepsPreviousProjection(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 1, "")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 5)}}
	engine := newTestEngine(t, store, loader, nil)

	if _, err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	loader.mu.Lock()
	loader.err = pkgerrors.New(pkgerrors.CodeDependency, "catalog down")
	loader.mu.Unlock()

	if _, err := engine.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := len(engine.View().Lines); got != 1 {
		t.Fatalf("projection was wiped, %d lines left", got)
	}
}

func TestRefreshSharesInflightRebuild(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 1, "")}}
	loader := &fakeLoader{
		products: map[string]*catalog.Product{"P1": stockedProduct("P1", 5)},
		delay:    50 * time.Millisecond,
	}
	engine := newTestEngine(t, store, loader, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Refresh(context.Background()); err != nil {
				t.Errorf("refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := loader.callCount(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestUpdateLineClampsToStock(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 1, "")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 5)}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	res, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: 9})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.ClampedTo != 5 {
		t.Fatalf("clamped to %d, want 5", res.ClampedTo)
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != NoticeQuantityClamped {
		t.Fatalf("notices = %v, want one quantity_clamped", res.Notices)
	}
	if got := engine.View().Lines[0].Quantity; got != 5 {
		t.Fatalf("projected quantity = %d, want 5", got)
	}

	// Below one clamps up without a notice.
	res, err = engine.UpdateLine("V-P1", UpdateRequest{Quantity: -3})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.Notices) != 0 {
		t.Fatalf("unexpected notices: %v", res.Notices)
	}
	if got := engine.View().Lines[0].Quantity; got != 1 {
		t.Fatalf("projected quantity = %d, want 1", got)
	}
}

func TestUpdateLineNoOpSkipsNetwork(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 2, "")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 5)}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	res, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: 2})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.NoOp {
		t.Fatal("expected no-op")
	}

	time.Sleep(60 * time.Millisecond)
	if store.updateCount() != 0 {
		t.Fatalf("no-op still hit the store %d times", store.updateCount())
	}
}

func TestUpdateLineDebounceCoalesces(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 1, "")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	for _, quantity := range []int{2, 3, 4} {
		if _, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: quantity}); err != nil {
			t.Fatalf("update to %d: %v", quantity, err)
		}
	}

	waitFor(t, "debounced commit", func() bool { return store.updateCount() > 0 })
	time.Sleep(60 * time.Millisecond)

	store.mu.Lock()
	updates := store.updates
	store.mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("store saw %d updates, want 1", len(updates))
	}
	if updates[0].Input.Quantity != 4 {
		t.Fatalf("committed quantity = %d, want the final 4", updates[0].Input.Quantity)
	}
}

func TestRollbackPreservesUnrelatedCommits(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{
		rawLine("P1", 1, ""),
		rawLine("P2", 1, ""),
	}}
	store.updateErr = func(ref rawcart.ItemRef) error {
		if ref.VariantID == "V-P1" {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "item out of stock")
		}
		return nil
	}
	loader := &fakeLoader{products: map[string]*catalog.Product{
		"P1": stockedProduct("P1", 9),
		"P2": stockedProduct("P2", 9),
	}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	if _, err := engine.UpdateLine("V-P2", UpdateRequest{Quantity: 3}); err != nil {
		t.Fatalf("update P2: %v", err)
	}
	if _, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: 5}); err != nil {
		t.Fatalf("update P1: %v", err)
	}
	engine.Flush()

	waitFor(t, "rollback", func() bool { return engine.LastMutationError() != nil })

	quantities := map[string]int{}
	for _, line := range engine.View().Lines {
		quantities[line.Key] = line.Quantity
	}
	if quantities["V-P1"] != 1 {
		t.Fatalf("failed line quantity = %d, want rollback to 1", quantities["V-P1"])
	}
	if quantities["V-P2"] != 3 {
		t.Fatalf("unrelated line quantity = %d, want 3 preserved", quantities["V-P2"])
	}
	if engine.LastMutationError().Code() != pkgerrors.CodeOutOfStock {
		t.Fatalf("error code = %s, want OUT_OF_STOCK", engine.LastMutationError().Code())
	}
}

func TestEditDuringInflightCommitKeepsItsRollback(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 1, "")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}

	// Commits are driven by Flush so the test controls exactly when each
	// one reaches the store.
	engine, err := NewEngine(store, loader, nil, nil, nil, Config{
		DebounceWindow:   time.Hour,
		OrphanPurgeDelay: 10 * time.Millisecond,
		CommitTimeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(engine.Close)
	engine.Refresh(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	var commits int
	store.mu.Lock()
	store.updateHook = func(ref rawcart.ItemRef, input rawcart.UpdateInput) error {
		store.mu.Lock()
		commits++
		n := commits
		store.mu.Unlock()
		if n == 1 {
			close(entered)
			<-release
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "item out of stock")
	}
	store.mu.Unlock()

	if _, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: 2}); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	firstDone := make(chan struct{})
	go func() {
		engine.Flush()
		close(firstDone)
	}()
	<-entered

	// A second edit lands while the first commit is still on the wire.
	if _, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: 3}); err != nil {
		t.Fatalf("second edit: %v", err)
	}

	close(release)
	<-firstDone

	// The second commit is rejected; it must roll back to the quantity the
	// first commit confirmed, not keep the rejected one.
	engine.Flush()
	if engine.LastMutationError() == nil {
		t.Fatal("expected the second commit to fail")
	}
	if got := engine.View().Lines[0].Quantity; got != 2 {
		t.Fatalf("quantity after failed commit = %d, want rollback to confirmed 2", got)
	}
}

func TestCloseCancelsScheduledOrphanPurge(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{
		rawLine("P1", 1, ""),
		rawLine("GONE", 1, ""),
	}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}
	engine, err := NewEngine(store, loader, nil, nil, nil, Config{
		DebounceWindow:   20 * time.Millisecond,
		OrphanPurgeDelay: 50 * time.Millisecond,
		CommitTimeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res, err := engine.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", res.Dropped)
	}

	engine.Close()
	time.Sleep(120 * time.Millisecond)
	if got := store.removeCount(); got != 0 {
		t.Fatalf("closed engine still purged %d orphan(s) upstream", got)
	}
}

func TestRolledBackCommitInvalidatesCachedProduct(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 1, "")}}
	store.updateErr = func(ref rawcart.ItemRef) error {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "item out of stock")
	}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	if _, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: 3}); err != nil {
		t.Fatalf("update: %v", err)
	}
	engine.Flush()

	waitFor(t, "rollback", func() bool { return engine.LastMutationError() != nil })
	ids := loader.invalidatedIDs()
	if len(ids) != 1 || ids[0] != "P1" {
		t.Fatalf("invalidated = %v, want [P1]", ids)
	}
}

func TestBranchChangeClearsSelection(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{
		rawLine("P1", 1, "B1"),
		rawLine("P2", 1, "B1"),
	}}
	loader := &fakeLoader{products: map[string]*catalog.Product{
		"P1": stockedProduct("P1", 9),
		"P2": stockedProduct("P2", 9),
	}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	for _, key := range []string{"V-P1", "V-P2"} {
		if _, err := engine.Select(key); err != nil {
			t.Fatalf("select %s: %v", key, err)
		}
	}

	branch := "B2"
	res, err := engine.UpdateLine("V-P1", UpdateRequest{Quantity: 1, BranchID: &branch})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.SelectionCleared {
		t.Fatal("expected the selection to be cleared")
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != NoticeSelectionCleared {
		t.Fatalf("notices = %v, want one selection_cleared", res.Notices)
	}
	if got := engine.SelectedBranch(); got != "" {
		t.Fatalf("selected branch = %q, want none", got)
	}
	for _, line := range engine.View().Lines {
		if line.Selected {
			t.Fatalf("line %s stayed selected after the branch change", line.Key)
		}
	}
}

func TestBranchChangeOfUnselectedLineClearsSelection(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{
		rawLine("P1", 1, "B1"),
		rawLine("P2", 1, "B1"),
	}}
	loader := &fakeLoader{products: map[string]*catalog.Product{
		"P1": stockedProduct("P1", 9),
		"P2": stockedProduct("P2", 9),
	}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	if _, err := engine.Select("V-P1"); err != nil {
		t.Fatalf("select: %v", err)
	}

	branch := "B2"
	res, err := engine.UpdateLine("V-P2", UpdateRequest{Quantity: 1, BranchID: &branch})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.SelectionCleared {
		t.Fatal("expected the selection to be cleared")
	}
	if got := engine.SelectedBranch(); got != "" {
		t.Fatalf("selected branch = %q, want none", got)
	}
}

func TestSelectReplacesAcrossBranches(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{
		rawLine("P1", 1, "B1"),
		rawLine("P2", 1, "B2"),
	}}
	loader := &fakeLoader{products: map[string]*catalog.Product{
		"P1": stockedProduct("P1", 9),
		"P2": stockedProduct("P2", 9),
	}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	if _, err := engine.Select("V-P1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	res, err := engine.Select("V-P2")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !res.Cleared {
		t.Fatal("expected cross-branch select to clear")
	}
	if got := engine.SelectedBranch(); got != "B2" {
		t.Fatalf("selected branch = %q, want B2", got)
	}
}

func TestRemoveLineRollsBackOnFailure(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 2, "B1")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())
	engine.Select("V-P1")

	store.mu.Lock()
	store.removeErr = pkgerrors.New(pkgerrors.CodeDependency, "upstream down")
	store.mu.Unlock()

	if err := engine.RemoveLine(context.Background(), "V-P1"); err == nil {
		t.Fatal("expected remove error")
	}

	view := engine.View()
	if len(view.Lines) != 1 {
		t.Fatalf("projection has %d lines, want the rollback to restore 1", len(view.Lines))
	}
	if !view.Lines[0].Selected {
		t.Fatal("selection was lost in rollback")
	}

	store.mu.Lock()
	store.removeErr = nil
	store.mu.Unlock()

	if err := engine.RemoveLine(context.Background(), "V-P1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(engine.View().Lines); got != 0 {
		t.Fatalf("projection has %d lines after remove, want 0", got)
	}
}

func TestAddItemRefreshesProjection(t *testing.T) {
	store := &fakeStore{}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}
	engine := newTestEngine(t, store, loader, nil)

	store.mu.Lock()
	store.lines = []rawcart.Line{rawLine("P1", 1, "")}
	store.mu.Unlock()

	res, err := engine.AddItem(context.Background(), rawcart.AddInput{ProductID: "P1", VariantID: "V-P1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Lines != 1 {
		t.Fatalf("lines = %d, want 1", res.Lines)
	}
	store.mu.Lock()
	adds := len(store.adds)
	quantity := store.adds[0].Quantity
	store.mu.Unlock()
	if adds != 1 || quantity != 1 {
		t.Fatalf("adds=%d quantity=%d, want one add with quantity 1", adds, quantity)
	}
}

func TestTotalsUseSnapshotPrices(t *testing.T) {
	lines := []rawcart.Line{rawLine("P1", 2, "B1"), rawLine("P2", 1, "B2")}
	lines[0].Price = 15000
	store := &fakeStore{lines: lines}
	loader := &fakeLoader{products: map[string]*catalog.Product{
		"P1": stockedProduct("P1", 9),
		"P2": stockedProduct("P2", 9),
	}}
	engine := newTestEngine(t, store, loader, nil)
	engine.Refresh(context.Background())

	totals := engine.Totals()
	if totals.ItemCount != 3 {
		t.Fatalf("item count = %d, want 3", totals.ItemCount)
	}
	if totals.Subtotal != 2*15000+10000 {
		t.Fatalf("subtotal = %d, want 40000", totals.Subtotal)
	}

	engine.Select("V-P1")
	selected := engine.SelectedTotals()
	if selected.Subtotal != 30000 || selected.ItemCount != 2 {
		t.Fatalf("selected totals = %+v", selected)
	}
}

func TestApplyVoucherWiresDiscountThrough(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 2, "B1")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}
	vouchers := &fakeVouchers{applied: &voucher.Applied{DiscountAmount: 5000, VoucherID: "VC1"}}
	engine := newTestEngine(t, store, loader, vouchers)
	engine.Refresh(context.Background())

	applied, err := engine.ApplyVoucher(context.Background(), "SAVE5")
	if err != nil {
		t.Fatalf("apply voucher: %v", err)
	}
	if applied.DiscountAmount != 5000 || applied.Code != "SAVE5" {
		t.Fatalf("applied = %+v", applied)
	}
	if vouchers.gotBase != 20000 {
		t.Fatalf("voucher base = %d, want 20000", vouchers.gotBase)
	}

	totals := engine.Totals()
	if totals.Discount != 5000 || totals.Total != 15000 {
		t.Fatalf("totals = %+v", totals)
	}

	engine.ClearVoucher()
	if engine.Totals().Discount != 0 {
		t.Fatal("discount survived ClearVoucher")
	}
}

func TestSubscribersSeeStateChanges(t *testing.T) {
	store := &fakeStore{lines: []rawcart.Line{rawLine("P1", 1, "B1")}}
	loader := &fakeLoader{products: map[string]*catalog.Product{"P1": stockedProduct("P1", 9)}}
	engine := newTestEngine(t, store, loader, nil)

	var mu sync.Mutex
	var views []CartView
	unsubscribe := engine.Subscribe(func(view CartView) {
		mu.Lock()
		views = append(views, view)
		mu.Unlock()
	})

	engine.Refresh(context.Background())
	engine.Select("V-P1")

	mu.Lock()
	count := len(views)
	last := views[count-1]
	mu.Unlock()
	if count < 2 {
		t.Fatalf("subscriber saw %d views, want at least 2", count)
	}
	if !last.Lines[0].Selected {
		t.Fatal("last view does not reflect the selection")
	}

	unsubscribe()
	engine.ClearSelection()
	mu.Lock()
	after := len(views)
	mu.Unlock()
	if after != count {
		t.Fatal("subscriber still notified after unsubscribe")
	}
}
