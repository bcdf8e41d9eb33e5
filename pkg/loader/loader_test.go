package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// gatedFetcher is a Fetcher whose completions are released by the test.
// Each Fetch blocks until release is signalled, then returns the configured
// outcome. Calls are counted per id.
type gatedFetcher struct {
	mu      sync.Mutex
	calls   map[ChunkID]int
	release chan struct{}
	asset   []byte
	err     error
}

func newGatedFetcher(asset []byte, err error) *gatedFetcher {
	return &gatedFetcher{
		calls:   make(map[ChunkID]int),
		release: make(chan struct{}),
		asset:   asset,
		err:     err,
	}
}

func (f *gatedFetcher) Fetch(ctx context.Context, id ChunkID) ([]byte, error) {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()

	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.asset, f.err
}

func (f *gatedFetcher) callCount(id ChunkID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// immediateFetcher returns its outcome as soon as it is called.
func immediateFetcher(asset []byte, err error, calls *atomic.Int32) Fetcher {
	return FetcherFunc(func(ctx context.Context, id ChunkID) ([]byte, error) {
		calls.Add(1)
		return asset, err
	})
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// Request Tests
// ============================================================================

func TestRequest_FetchesAndCaches(t *testing.T) {
	var calls atomic.Int32
	l := New(immediateFetcher([]byte("payload"), nil, &calls), nil)
	defer func() { _ = l.Close() }()

	asset, err := l.Request("main").Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(asset) != "payload" {
		t.Errorf("expected payload, got %q", asset)
	}
	if got := l.State("main"); got != StateSettled {
		t.Errorf("expected settled state, got %v", got)
	}

	// Second request returns the cached asset without another fetch.
	asset, err = l.Request("main").Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("second Wait failed: %v", err)
	}
	if string(asset) != "payload" {
		t.Errorf("expected cached payload, got %q", asset)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
}

func TestRequest_SingleFlightDedup(t *testing.T) {
	f := newGatedFetcher([]byte("V"), nil)
	l := New(f, nil)
	defer func() { _ = l.Close() }()

	h1 := l.Request("c")
	h2 := l.Request("c")

	if h1 != h2 {
		t.Error("concurrent requests must share one in-flight handle")
	}
	if h1.Settled() {
		t.Error("handle must not settle before the fetch completes")
	}

	close(f.release)

	a1, err1 := h1.Wait(waitCtx(t))
	a2, err2 := h2.Wait(waitCtx(t))
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if string(a1) != "V" || string(a2) != "V" {
		t.Errorf("both waiters must observe V, got %q and %q", a1, a2)
	}
	if n := f.callCount("c"); n != 1 {
		t.Errorf("fetcher must be invoked exactly once, got %d", n)
	}
}

func TestRequest_ConcurrentCallers(t *testing.T) {
	f := newGatedFetcher([]byte("shared"), nil)
	l := New(f, nil)
	defer func() { _ = l.Close() }()

	const callers = 16
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Request("x").Wait(waitCtx(t))
		}(i)
	}

	close(f.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if string(results[i]) != "shared" {
			t.Errorf("caller %d observed %q", i, results[i])
		}
	}
	if n := f.callCount("x"); n != 1 {
		t.Errorf("expected a single fetch for all callers, got %d", n)
	}
}

func TestRequest_NeverBlocks(t *testing.T) {
	f := newGatedFetcher([]byte("V"), nil)
	l := New(f, nil)
	defer func() { _ = l.Close() }()
	defer close(f.release)

	done := make(chan struct{})
	go func() {
		_ = l.Request("slow")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Request must return immediately while the fetch is outstanding")
	}
}

func TestRequest_NilFetcherCreatesPlaceholder(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	h := l.Request("orphan")
	if h.Settled() {
		t.Fatal("placeholder must stay pending")
	}
	if got := l.State("orphan"); got != StatePending {
		t.Errorf("expected pending, got %v", got)
	}

	l.Deliver("orphan", []byte("late"))
	asset, err := h.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(asset) != "late" {
		t.Errorf("expected delivered asset, got %q", asset)
	}
}

// ============================================================================
// Failure and Eviction Tests
// ============================================================================

func TestRequest_FailureEvictsAndRetries(t *testing.T) {
	var calls atomic.Int32
	fail := errors.New("network down")
	outcomes := []error{fail, nil}
	f := FetcherFunc(func(ctx context.Context, id ChunkID) ([]byte, error) {
		n := calls.Add(1)
		if err := outcomes[n-1]; err != nil {
			return nil, err
		}
		return []byte("recovered"), nil
	})

	l := New(f, nil)
	defer func() { _ = l.Close() }()

	_, err := l.Request("y").Wait(waitCtx(t))
	if err == nil {
		t.Fatal("expected first request to fail")
	}
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChunkError, got %T", err)
	}
	if !errors.Is(err, fail) {
		t.Error("rejection must wrap the fetch cause")
	}
	if got := l.State("y"); got != StateUntracked {
		t.Errorf("failed chunk must be evicted, state %v", got)
	}

	// Eviction enables retry: a new request triggers a brand-new fetch.
	asset, err := l.Request("y").Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if string(asset) != "recovered" {
		t.Errorf("expected recovered asset, got %q", asset)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", n)
	}
}

func TestFail_RejectsEveryWaiter(t *testing.T) {
	f := newGatedFetcher(nil, nil)
	l := New(f, nil)
	defer func() { _ = l.Close() }()
	defer close(f.release)

	h1 := l.Request("z")
	h2 := l.Request("z")

	reason := errors.New("script tag error")
	if !l.Fail("z", reason) {
		t.Fatal("Fail must report terminating an in-flight load")
	}

	for i, h := range []*Handle{h1, h2} {
		_, err := h.Wait(waitCtx(t))
		if err == nil {
			t.Fatalf("waiter %d: expected rejection", i)
		}
		if !errors.Is(err, reason) {
			t.Errorf("waiter %d: rejection must carry the reason, got %v", i, err)
		}
	}
	if got := l.State("z"); got != StateUntracked {
		t.Errorf("expected eviction, state %v", got)
	}
}

func TestFail_UnknownIDIsNoOp(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	if l.Fail("never-seen", errors.New("boom")) {
		t.Error("failing an untracked id must be a no-op")
	}
}

func TestFail_SettledChunkUntouched(t *testing.T) {
	var calls atomic.Int32
	l := New(immediateFetcher([]byte("V"), nil, &calls), nil)
	defer func() { _ = l.Close() }()

	h := l.Request("done")
	if _, err := h.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if l.Fail("done", errors.New("too late")) {
		t.Error("failure signal after success must be ignored")
	}
	asset, ok := l.Asset("done")
	if !ok || string(asset) != "V" {
		t.Errorf("cached value must survive, got %q (ok=%t)", asset, ok)
	}
	if h.Err() != nil {
		t.Error("already-resolved handle must not be rejected")
	}
}

func TestFetch_LateSuccessAfterEvictionDropped(t *testing.T) {
	f := newGatedFetcher([]byte("stale"), nil)
	l := New(f, nil)
	defer func() { _ = l.Close() }()

	h := l.Request("raced")
	l.Fail("raced", errors.New("gave up"))

	// The fetch now completes successfully for the evicted era; its result
	// must not resurrect the entry or disturb the rejected handle.
	close(f.release)

	if _, err := h.Wait(waitCtx(t)); err == nil {
		t.Fatal("evicted era handle must stay rejected")
	}

	// Give the dropped completion a chance to run before asserting.
	time.Sleep(10 * time.Millisecond)
	if _, ok := l.Asset("raced"); ok {
		t.Error("late success must not populate the table")
	}
	if got := l.State("raced"); got != StateUntracked {
		t.Errorf("expected untracked after dropped completion, got %v", got)
	}
}

// ============================================================================
// Preload Tests
// ============================================================================

func TestPreload_RequestReusesPlaceholder(t *testing.T) {
	var calls atomic.Int32
	l := New(immediateFetcher([]byte("V"), nil, &calls), nil)
	defer func() { _ = l.Close() }()

	l.Preload("a", "b")

	h := l.Request("a")
	if n := calls.Load(); n != 0 {
		t.Fatalf("request for a preloaded id must not fetch, got %d calls", n)
	}
	if h.Settled() {
		t.Fatal("preloaded placeholder must stay pending until delivery")
	}

	l.Deliver("a", []byte("preloaded payload"))
	asset, err := h.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(asset) != "preloaded payload" {
		t.Errorf("expected delivered payload, got %q", asset)
	}
}

func TestPreload_Idempotent(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	l.Preload("a")
	h := l.Request("a")
	l.Preload("a") // must not replace the tracked entry

	if l.Request("a") != h {
		t.Error("re-registering a tracked id must not mint a new handle")
	}
}

func TestPreload_DoesNotDemoteSettled(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	l.Deliver("a", []byte("V"))
	l.Preload("a")

	if got := l.State("a"); got != StateSettled {
		t.Errorf("preload must not demote a settled chunk, state %v", got)
	}
}

func TestPreload_EvictableByErrorHook(t *testing.T) {
	var calls atomic.Int32
	l := New(immediateFetcher([]byte("fresh"), nil, &calls), nil)
	defer func() { _ = l.Close() }()

	l.Preload("a", "b")
	hook := l.ErrorHook()

	// The out-of-band load for "a" fails before anyone requested it.
	hook("a")

	if got := l.State("a"); got != StateUntracked {
		t.Fatalf("failed preload must be evicted, state %v", got)
	}
	if got := l.State("b"); got != StatePending {
		t.Fatalf("unrelated preload must stay pending, state %v", got)
	}

	// The eventual request starts a fresh fetch: the placeholder was
	// genuinely evictable, not pinned.
	asset, err := l.Request("a").Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("request after evicted preload failed: %v", err)
	}
	if string(asset) != "fresh" {
		t.Errorf("expected fresh fetch result, got %q", asset)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly one fetch, got %d", n)
	}
}

// ============================================================================
// Error Hook Tests
// ============================================================================

func TestErrorHook_UnknownIDSafe(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	hook := l.ErrorHook()
	hook("never-requested") // must not panic, must not create state

	if got := l.State("never-requested"); got != StateUntracked {
		t.Errorf("hook on unknown id must have no effect, state %v", got)
	}
}

func TestErrorHook_SettledIDSafe(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	l.Deliver("ok", []byte("V"))
	hook := l.ErrorHook()
	hook("ok")

	asset, found := l.Asset("ok")
	if !found || string(asset) != "V" {
		t.Errorf("hook must not change a settled value, got %q (found=%t)", asset, found)
	}
}

func TestErrorHook_DrainsBacklog(t *testing.T) {
	var calls atomic.Int32
	l := New(immediateFetcher([]byte("retry"), nil, &calls), nil)
	defer func() { _ = l.Close() }()

	// "d" failed before the hook was installed; it is pending from preload.
	l.Preload("d")
	h := l.Request("d")

	_ = l.ErrorHook("d")

	_, err := h.Wait(waitCtx(t))
	if err == nil {
		t.Fatal("backlogged failure must reject the pending handle")
	}
	if !errors.Is(err, ErrLoadingFailed) {
		t.Errorf("backlog rejection must use the generic reason, got %v", err)
	}
	if got := l.State("d"); got != StateUntracked {
		t.Fatalf("id from backlog must not be stuck pending, state %v", got)
	}

	// Starting over works.
	asset, err := l.Request("d").Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("request after backlog drain failed: %v", err)
	}
	if string(asset) != "retry" {
		t.Errorf("expected fresh fetch, got %q", asset)
	}
}

// ============================================================================
// Deliver Tests
// ============================================================================

func TestDeliver_UntrackedIDSettlesDirectly(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	l.Deliver("early", []byte("V"))

	if got := l.State("early"); got != StateSettled {
		t.Fatalf("expected settled, got %v", got)
	}
	asset, err := l.Request("early").Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(asset) != "V" {
		t.Errorf("expected delivered asset, got %q", asset)
	}
}

func TestDeliver_SuccessIsTerminal(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	l.Deliver("a", []byte("first"))
	l.Deliver("a", []byte("second"))

	asset, _ := l.Asset("a")
	if string(asset) != "first" {
		t.Errorf("first success must win, got %q", asset)
	}
}

// ============================================================================
// Error Message Contract
// ============================================================================

func TestChunkError_MessageContract(t *testing.T) {
	for _, tc := range []struct {
		err  *ChunkError
		want string
	}{
		{&ChunkError{ID: "vendor"}, "Loading chunk vendor failed."},
		{&ChunkError{ID: "5", Cause: errors.New("timeout")}, "Loading chunk 5 failed."},
	} {
		if !strings.Contains(tc.err.Error(), tc.want) {
			t.Errorf("error %q must contain %q", tc.err.Error(), tc.want)
		}
	}
}

func TestRejection_CarriesContractMessage(t *testing.T) {
	f := FetcherFunc(func(ctx context.Context, id ChunkID) ([]byte, error) {
		return nil, errors.New("404")
	})
	l := New(f, nil)
	defer func() { _ = l.Close() }()

	_, err := l.Request("settings").Wait(waitCtx(t))
	if err == nil {
		t.Fatal("expected failure")
	}
	want := "Loading chunk settings failed."
	if !strings.Contains(err.Error(), want) {
		t.Errorf("rejection %q must contain %q", err.Error(), want)
	}
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestClose_RejectsPending(t *testing.T) {
	f := newGatedFetcher(nil, nil)
	l := New(f, nil)

	h := l.Request("pending")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := h.Wait(waitCtx(t))
	if !errors.Is(err, ErrLoaderClosed) {
		t.Errorf("pending handle must settle with ErrLoaderClosed, got %v", err)
	}

	// Idempotent.
	if err := l.Close(); err != nil {
		t.Errorf("second Close must succeed, got %v", err)
	}

	_, err = l.Request("after").Wait(waitCtx(t))
	if !errors.Is(err, ErrLoaderClosed) {
		t.Errorf("Request after Close must reject with ErrLoaderClosed, got %v", err)
	}
}

func TestStats(t *testing.T) {
	l := New(nil, nil)
	defer func() { _ = l.Close() }()

	l.Preload("a", "b")
	l.Deliver("c", []byte("V"))

	s := l.Stats()
	if s.Pending != 2 || s.Settled != 1 {
		t.Errorf("expected 2 pending / 1 settled, got %+v", s)
	}
}

// ============================================================================
// Metrics Tests
// ============================================================================

// countingMetrics is an in-memory Metrics implementation for tests.
type countingMetrics struct {
	mu                                            sync.Mutex
	fetches, dedups, resolves, rejects, evictions int
	preloads                                      int
}

func (m *countingMetrics) ObserveFetchStart(string) {
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveDedup(string) {
	m.mu.Lock()
	m.dedups++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveResolve(_ string, _ int, _ time.Duration) {
	m.mu.Lock()
	m.resolves++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveReject(string) {
	m.mu.Lock()
	m.rejects++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveEvict(string) {
	m.mu.Lock()
	m.evictions++
	m.mu.Unlock()
}

func (m *countingMetrics) ObservePreload(n int) {
	m.mu.Lock()
	m.preloads += n
	m.mu.Unlock()
}

func TestMetrics_Observed(t *testing.T) {
	var calls atomic.Int32
	m := &countingMetrics{}
	l := New(immediateFetcher([]byte("V"), nil, &calls), m)
	defer func() { _ = l.Close() }()

	l.Preload("p1", "p2")
	if _, err := l.Request("m1").Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	_ = l.Request("m1") // dedup hit
	l.Fail("p1", fmt.Errorf("boom"))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.preloads != 2 {
		t.Errorf("expected 2 preloads, got %d", m.preloads)
	}
	if m.fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", m.fetches)
	}
	if m.dedups != 1 {
		t.Errorf("expected 1 dedup, got %d", m.dedups)
	}
	if m.resolves != 1 {
		t.Errorf("expected 1 resolve, got %d", m.resolves)
	}
	if m.rejects != 1 || m.evictions != 1 {
		t.Errorf("expected 1 reject/evict, got %d/%d", m.rejects, m.evictions)
	}
}
