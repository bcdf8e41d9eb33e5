package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lhorie/fusion-cli/pkg/loader"
	"github.com/lhorie/fusion-cli/pkg/manifest"
)

// DirFetcher reads chunk payloads from a build output directory.
//
// Chunk ids are resolved to file names through the manifest; the emitted
// content hash is verified on every read so a stale or truncated file is
// reported as a failure instead of being served.
//
// The manifest can be swapped at runtime (watch mode rebuilds emit a new
// one); swaps are safe under concurrent fetches.
type DirFetcher struct {
	dir string

	mu sync.RWMutex
	m  *manifest.Manifest
}

// NewDirFetcher creates a fetcher serving chunks from dir, described by m.
func NewDirFetcher(dir string, m *manifest.Manifest) *DirFetcher {
	return &DirFetcher{dir: dir, m: m}
}

// SetManifest replaces the manifest, typically after a rebuild.
func (f *DirFetcher) SetManifest(m *manifest.Manifest) {
	f.mu.Lock()
	f.m = m
	f.mu.Unlock()
}

// Manifest returns the current manifest.
func (f *DirFetcher) Manifest() *manifest.Manifest {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.m
}

// Fetch implements loader.Fetcher.
func (f *DirFetcher) Fetch(ctx context.Context, id loader.ChunkID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, ok := f.Manifest().Lookup(string(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChunkUnknown, id)
	}

	// Reject file names that would escape the output directory.
	if filepath.IsAbs(c.File) || strings.Contains(c.File, "..") {
		return nil, fmt.Errorf("refusing manifest file name %q for chunk %s", c.File, id)
	}

	data, err := os.ReadFile(filepath.Join(f.dir, c.File))
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", id, err)
	}

	if c.Hash != "" {
		sum := sha256.Sum256(data)
		got := hex.EncodeToString(sum[:])
		// A recorded hash longer than the digest can never match.
		if len(c.Hash) > len(got) || got[:len(c.Hash)] != c.Hash {
			return nil, fmt.Errorf("%w: chunk %s expected %s got %s", ErrHashMismatch, id, c.Hash, got[:min(len(c.Hash), len(got))])
		}
	}

	return data, nil
}
