package loader

import "context"

// Fetcher retrieves chunk payloads on behalf of the Loader.
//
// The loader invokes Fetch at most once per id per era - the span between a
// chunk entering the table and (on failure) being evicted from it. Fetch
// runs on its own goroutine; implementations own their timeout and retry
// behavior, the loader treats any returned error as a plain failure.
//
// The ctx passed to Fetch is the loader's lifecycle context, not any single
// requester's: waiters come and go while a fetch is in flight, so one
// caller's cancellation must not abort the shared operation.
type Fetcher interface {
	Fetch(ctx context.Context, id ChunkID) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id ChunkID) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, id ChunkID) ([]byte, error) {
	return f(ctx, id)
}
