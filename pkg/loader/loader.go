// Package loader implements on-demand chunk loading for bundled applications.
//
// The Loader owns a table mapping chunk ids to load states and guarantees
// single-flight fetching: concurrent requests for the same chunk share one
// underlying fetch and observe the same outcome. Chunks can also be
// registered as preloaded - tracked as in flight before any consumer asks
// for them - so an out-of-band delivery mechanism (resource hints, inlined
// payloads) converges onto the same handle an explicit request would use.
//
// State model for a single chunk id:
//
//	untracked --Preload/Request--> pending --resolve--> settled (terminal)
//	pending --Fail--> untracked (handle rejected, entry evicted)
//	settled --(any signal)--> settled (no-op)
//
// A failed chunk is evicted rather than remembered, so the next Request
// starts a fresh fetch. Retry policy is deliberately left to callers; the
// loader never retries on its own.
//
// Thread Safety:
// All operations are safe for concurrent use. The table is guarded by a
// single mutex; fetches run outside the lock.
package loader

import (
	"context"
	"sync"
	"time"
)

// ChunkID identifies an independently loadable unit of code.
type ChunkID string

// entry tracks one chunk id in the loader table.
//
// An entry is pending until its handle settles. A successful entry stays in
// the table forever (the asset is cached for the process lifetime); a failed
// entry is removed at rejection time, so the table never holds a failed
// state.
type entry struct {
	handle  *Handle
	settled bool
	asset   []byte
}

// Loader coordinates chunk fetching and caching.
//
// Construct with New; the zero value is not usable. Each Loader owns its own
// table, so independent loaders (e.g. in tests) never interfere.
type Loader struct {
	mu      sync.Mutex
	entries map[ChunkID]*entry
	closed  bool

	fetcher Fetcher
	metrics Metrics

	// ctx bounds the lifetime of fetches started by the loader. It is
	// cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Loader that delegates cache misses to fetcher.
//
// fetcher may be nil, in which case requests for untracked chunks create
// pending placeholders that only Deliver or Fail can settle. This matches
// environments where payloads always arrive out of band.
//
// metrics may be nil for zero-overhead operation.
func New(fetcher Fetcher, metrics Metrics) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		entries: make(map[ChunkID]*entry),
		fetcher: fetcher,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Preload registers chunk ids as already being fetched by an out-of-band
// mechanism.
//
// Each id not already tracked gets a pending entry with no fetch attached;
// a later Request for that id reuses the pending handle instead of starting
// a new fetch. Ids already tracked are left untouched, so Preload is
// idempotent and never demotes a settled chunk.
//
// Call this before the first Request for the ids involved; registration
// after a Request has already created an entry is a no-op for that id.
func (l *Loader) Preload(ids ...ChunkID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	registered := 0
	for _, id := range ids {
		if _, ok := l.entries[id]; ok {
			continue
		}
		l.entries[id] = &entry{handle: newHandle(id)}
		registered++
	}

	if l.metrics != nil && registered > 0 {
		l.metrics.ObservePreload(registered)
	}
}

// Request returns a handle for the chunk's eventual asset.
//
// Request never blocks; wait on the returned handle for the outcome.
//
//   - If the chunk already settled successfully, the returned handle is
//     already resolved with the cached asset. No new work is started.
//   - If the chunk is pending (an earlier request or a preload
//     registration), the existing in-flight handle is returned.
//   - Otherwise a pending entry is created and the fetcher is invoked
//     asynchronously. Success settles the entry; failure rejects the handle
//     and evicts the entry so a later Request retries from scratch.
//
// Every caller requesting the same id while it is pending observes the same
// outcome: the identical asset, or an equivalent rejection.
//
// After Close, Request returns a handle rejected with ErrLoaderClosed.
func (l *Loader) Request(id ChunkID) *Handle {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		h := newHandle(id)
		h.reject(ErrLoaderClosed)
		return h
	}

	if e, ok := l.entries[id]; ok {
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.ObserveDedup(string(id))
		}
		return e.handle
	}

	e := &entry{handle: newHandle(id)}
	l.entries[id] = e
	fetcher := l.fetcher
	l.mu.Unlock()

	if fetcher != nil {
		if l.metrics != nil {
			l.metrics.ObserveFetchStart(string(id))
		}
		go l.fetch(id, e)
	}

	return e.handle
}

// fetch runs the fetcher for id and routes the outcome back into the table.
// e is the entry the fetch was started for; if the table no longer maps id
// to e (the entry was evicted mid-flight), the outcome is dropped - the old
// handle was already rejected at eviction time and a newer era must not be
// touched.
func (l *Loader) fetch(id ChunkID, e *entry) {
	start := time.Now()
	asset, err := l.fetcher.Fetch(l.ctx, id)

	l.mu.Lock()
	cur, ok := l.entries[id]
	if !ok || cur != e {
		l.mu.Unlock()
		return
	}

	if err != nil {
		e.handle.reject(&ChunkError{ID: id, Cause: err})
		delete(l.entries, id)
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.ObserveReject(string(id))
			l.metrics.ObserveEvict(string(id))
		}
		return
	}

	e.asset = asset
	e.settled = true
	e.handle.resolve(asset)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.ObserveResolve(string(id), len(asset), time.Since(start))
	}
}

// Deliver settles a pending chunk with an asset that arrived out of band.
//
// This is how preloaded placeholders (and fetcher-less loaders) complete:
// the delivery mechanism announces the payload, and every waiter on the
// chunk's handle resolves with it.
//
// A chunk that already settled is left untouched - success is terminal and
// cannot be overwritten. An untracked id is recorded as settled directly,
// covering payloads that arrive before anything requests them.
func (l *Loader) Deliver(id ChunkID, asset []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	e, ok := l.entries[id]
	if !ok {
		e = &entry{handle: newHandle(id)}
		l.entries[id] = e
	}
	if e.settled {
		return
	}

	e.asset = asset
	e.settled = true
	e.handle.resolve(asset)

	if l.metrics != nil {
		l.metrics.ObserveResolve(string(id), len(asset), 0)
	}
}

// Fail rejects and evicts a pending chunk.
//
// This is the single failure path, shared by the fetch completion above and
// by external error signals (see ErrorHook). The handle is rejected with a
// ChunkError wrapping reason, then the entry is removed so the id returns to
// the untracked state and a later Request starts a fresh fetch.
//
// Idempotent and always safe: an id that is untracked, or that already
// settled successfully, is ignored - a failure signal cannot undo success
// and cannot fail something that is not in flight.
//
// Returns true if an in-flight load was terminated.
func (l *Loader) Fail(id ChunkID, reason error) bool {
	l.mu.Lock()

	e, ok := l.entries[id]
	if !ok || e.settled {
		l.mu.Unlock()
		return false
	}

	// Reject before removal so no waiter is left unresolved.
	e.handle.reject(&ChunkError{ID: id, Cause: reason})
	delete(l.entries, id)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.ObserveReject(string(id))
		l.metrics.ObserveEvict(string(id))
	}
	return true
}

// ErrorHook returns a callable that external code (a script error listener,
// a dev server endpoint, a test harness) can invoke with a failing chunk id.
// The callable is Fail bound with the generic loading failure reason.
//
// Chunk loads can fail before anything is wired to report them; pass those
// ids as failedBefore and each is run through Fail immediately, so no
// failure from the startup window is silently lost.
func (l *Loader) ErrorHook(failedBefore ...ChunkID) func(ChunkID) {
	for _, id := range failedBefore {
		l.Fail(id, ErrLoadingFailed)
	}
	return func(id ChunkID) {
		l.Fail(id, ErrLoadingFailed)
	}
}

// State reports the load state of a chunk id.
func (l *Loader) State(id ChunkID) LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	switch {
	case !ok:
		return StateUntracked
	case e.settled:
		return StateSettled
	default:
		return StatePending
	}
}

// Asset returns the cached asset for a settled chunk.
// The second return is false while the chunk is untracked or still pending.
func (l *Loader) Asset(id ChunkID) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || !e.settled {
		return nil, false
	}
	return e.asset, true
}

// Stats returns a snapshot of the loader table for observability.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{}
	for _, e := range l.entries {
		if e.settled {
			s.Settled++
		} else {
			s.Pending++
		}
	}
	return s
}

// Close tears the loader down.
//
// Every pending handle is rejected with ErrLoaderClosed, in-flight fetches
// are cancelled through the loader context, and subsequent Request calls
// return handles rejected with ErrLoaderClosed.
//
// Idempotent: safe to call multiple times.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	for _, e := range l.entries {
		if !e.settled {
			e.handle.reject(ErrLoaderClosed)
		}
	}
	l.entries = nil
	l.cancel()

	return nil
}

// LoadState enumerates the observable states of a chunk id.
type LoadState int

const (
	// StateUntracked means the id is absent from the table: never requested,
	// or evicted after a failure.
	StateUntracked LoadState = iota

	// StatePending means a fetch is outstanding or a preload placeholder is
	// waiting for delivery.
	StatePending

	// StateSettled means the chunk loaded successfully; terminal.
	StateSettled
)

func (s LoadState) String() string {
	switch s {
	case StateUntracked:
		return "untracked"
	case StatePending:
		return "pending"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of loader table occupancy.
type Stats struct {
	Pending int
	Settled int
}
