// Package fetch provides Fetcher implementations for the chunk loader.
//
// Two fetchers are included: a directory fetcher that reads emitted chunk
// files straight from a build output directory (the dev server case), and
// an HTTP fetcher for chunks served by a remote asset host. Both resolve
// chunk ids through the build manifest.
package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrChunkUnknown is returned when a chunk id has no manifest entry.
	ErrChunkUnknown = errors.New("chunk not present in manifest")

	// ErrHashMismatch is returned when an emitted file's content no longer
	// matches the hash recorded at build time.
	ErrHashMismatch = errors.New("chunk content hash mismatch")
)

// statusError reports a non-2xx HTTP response.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.code, e.url)
}
