// Package manifest defines the build manifest emitted by the compiler and
// consumed by the dev server and the chunk loader.
//
// The manifest is the contract between build time and run time: it names
// every chunk the build produced, maps chunk ids to emitted file names and
// content hashes, and carries the list of chunk ids the build decided to
// preload. It is written once per build and read once at startup.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the manifest file name inside the build output directory.
const FileName = "fusion-manifest.json"

// Chunk describes one emitted chunk.
type Chunk struct {
	// ID is the chunk identifier, stable across builds.
	ID string `json:"id"`

	// File is the emitted file name, including the content hash.
	File string `json:"file"`

	// Hash is the hex-encoded content hash of the emitted file.
	Hash string `json:"hash"`

	// Size is the emitted size in bytes.
	Size int64 `json:"size"`

	// Requires lists chunk ids this chunk references dynamically.
	Requires []string `json:"requires,omitempty"`
}

// Manifest is the build manifest document.
type Manifest struct {
	// BuildID uniquely identifies the compiler run that produced this build.
	BuildID string `json:"build_id"`

	// CreatedAt is the build completion time.
	CreatedAt time.Time `json:"created_at"`

	// Entry is the chunk id executed first.
	Entry string `json:"entry,omitempty"`

	// Chunks lists every emitted chunk.
	Chunks []Chunk `json:"chunks"`

	// Preload is the ordered list of chunk ids registered with the loader
	// as already being fetched at startup.
	Preload []string `json:"preload,omitempty"`
}

// Load reads a manifest from path.
//
// A missing file is not an error: it yields an empty manifest, matching the
// contract that an absent preload source must not fail startup.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// LoadDir reads the manifest from its conventional location inside a build
// output directory.
func LoadDir(outDir string) (*Manifest, error) {
	return Load(filepath.Join(outDir, FileName))
}

// Save writes the manifest to path atomically (write to a temp file in the
// same directory, then rename), so a concurrent reader never observes a
// partial document.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close manifest: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

// SaveDir writes the manifest to its conventional location inside a build
// output directory.
func (m *Manifest) SaveDir(outDir string) error {
	return m.Save(filepath.Join(outDir, FileName))
}

// Lookup returns the chunk record for id.
func (m *Manifest) Lookup(id string) (*Chunk, bool) {
	for i := range m.Chunks {
		if m.Chunks[i].ID == id {
			return &m.Chunks[i], true
		}
	}
	return nil, false
}

// IDs returns all chunk ids in manifest order.
func (m *Manifest) IDs() []string {
	ids := make([]string, len(m.Chunks))
	for i, c := range m.Chunks {
		ids[i] = c.ID
	}
	return ids
}

// IsPreloaded reports whether id appears in the preload list.
func (m *Manifest) IsPreloaded(id string) bool {
	for _, p := range m.Preload {
		if p == id {
			return true
		}
	}
	return false
}

// TotalSize returns the sum of all chunk sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, c := range m.Chunks {
		total += c.Size
	}
	return total
}
