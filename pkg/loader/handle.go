package loader

import (
	"context"
)

// Handle represents the eventual outcome of a chunk load.
//
// A Handle settles exactly once, to either an asset or an error, and every
// holder observes the same settled value. Handles for the same in-flight
// chunk are shared: two Requests racing on one id get the same Handle.
type Handle struct {
	id    ChunkID
	done  chan struct{}
	asset []byte
	err   error
}

func newHandle(id ChunkID) *Handle {
	return &Handle{
		id:   id,
		done: make(chan struct{}),
	}
}

// resolve settles the handle with an asset. Later settles are no-ops; the
// first outcome wins and is immutable.
func (h *Handle) resolve(asset []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	h.asset = asset
	close(h.done)
}

// reject settles the handle with an error. Later settles are no-ops.
func (h *Handle) reject(err error) {
	select {
	case <-h.done:
		return
	default:
	}
	h.err = err
	close(h.done)
}

// ID returns the chunk id this handle belongs to.
func (h *Handle) ID() ChunkID {
	return h.id
}

// Done returns a channel closed when the handle settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle settles or ctx is done.
//
// The ctx bounds only this caller's wait; it does not cancel the underlying
// fetch, which runs to completion for the benefit of other waiters.
func (h *Handle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-h.done:
		return h.asset, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the handle has an outcome yet.
func (h *Handle) Settled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the settled error, or nil if unsettled or successful.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
