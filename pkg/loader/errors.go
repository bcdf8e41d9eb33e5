package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrLoaderClosed is returned when operations are attempted on a closed
	// loader, and handles pending at close time settle with it.
	ErrLoaderClosed = errors.New("loader is closed")

	// ErrLoadingFailed is the generic reason used when a chunk failure is
	// reported through the error hook without a more specific cause.
	ErrLoadingFailed = errors.New("chunk loading failed")
)

// ChunkError is the rejection error for a failed chunk load.
//
// Its message always contains the literal "Loading chunk <id> failed."
// phrasing; callers that pattern-match on it keep working. The underlying
// cause is available via Unwrap.
type ChunkError struct {
	ID    ChunkID
	Cause error
}

func (e *ChunkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Loading chunk %s failed. (%v)", e.ID, e.Cause)
	}
	return fmt.Sprintf("Loading chunk %s failed.", e.ID)
}

func (e *ChunkError) Unwrap() error {
	return e.Cause
}
