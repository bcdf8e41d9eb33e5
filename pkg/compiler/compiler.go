// Package compiler implements the fusion build pipeline.
//
// A build splits the source directory into chunks (one chunk per top-level
// file or directory), scans chunk bodies for dynamic-import references,
// content-hashes and writes each chunk into the output directory, and emits
// the build manifest consumed by the dev server and the chunk loader.
package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lhorie/fusion-cli/internal/logger"
	"github.com/lhorie/fusion-cli/pkg/manifest"
)

// Compiler produces a build from a source tree.
//
// Start runs one full build and returns its Result. Clean removes build
// outputs. Implementations must be safe to call sequentially; concurrent
// builds of the same output directory are not supported.
type Compiler interface {
	Start(ctx context.Context) (*Result, error)
	Clean(ctx context.Context) error
}

// Result describes a completed build.
type Result struct {
	// BuildID uniquely identifies this compiler run.
	BuildID string

	// Manifest is the emitted build manifest.
	Manifest *manifest.Manifest

	// Duration is the wall-clock build time.
	Duration time.Duration

	// ChunkCount is the number of chunks emitted.
	ChunkCount int

	// TotalBytes is the sum of emitted chunk sizes.
	TotalBytes int64

	// ChunkErrors maps chunk ids to the error that prevented emitting them.
	ChunkErrors map[string]error
}

// Success reports whether every chunk was emitted.
func (r *Result) Success() bool {
	return len(r.ChunkErrors) == 0
}

// Options configure a Bundler.
type Options struct {
	// SrcDir is the source directory to split into chunks.
	SrcDir string

	// OutDir is the directory chunk files and the manifest are written to.
	OutDir string

	// Entry is the chunk id executed first. When empty, "main" is used if
	// the source tree produces a chunk with that id.
	Entry string

	// Preload lists chunk ids to record in the manifest's preload list.
	// Unknown ids are dropped with a warning.
	Preload []string

	// HashLength is the number of content hash characters embedded in
	// emitted file names.
	HashLength int
}

// Bundler is the built-in Compiler implementation.
type Bundler struct {
	opts Options
}

// New creates a Bundler with the given options.
func New(opts Options) *Bundler {
	if opts.HashLength == 0 {
		opts.HashLength = 8
	}
	return &Bundler{opts: opts}
}

// Start runs one build.
//
// Chunk discovery: every top-level .js file in SrcDir becomes a chunk named
// after the file; every top-level directory becomes a chunk holding the
// concatenation of its .js files in path order. A chunk that cannot be read
// or written is recorded in Result.ChunkErrors without aborting the rest of
// the build.
func (b *Bundler) Start(ctx context.Context) (*Result, error) {
	start := time.Now()
	buildID := uuid.NewString()

	// Build-scoped log context: every line of this run carries the build id.
	ctx = logger.WithContext(ctx, logger.NewLogContext().WithBuild(buildID))

	logger.InfoCtx(ctx, "build started", logger.KeyDir, b.opts.SrcDir)

	sources, err := b.discover()
	if err != nil {
		return nil, fmt.Errorf("failed to discover chunks: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no chunk sources found in %s", b.opts.SrcDir)
	}

	if err := os.MkdirAll(b.opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	res := &Result{
		BuildID:     buildID,
		ChunkErrors: make(map[string]error),
	}

	m := &manifest.Manifest{
		BuildID:   buildID,
		CreatedAt: time.Now().UTC(),
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := b.emit(src)
		if err != nil {
			logger.ErrorCtx(ctx, "chunk build failed",
				logger.KeyChunkID, src.id,
				logger.KeyError, err,
			)
			res.ChunkErrors[src.id] = err
			continue
		}

		logger.DebugCtx(ctx, "chunk emitted",
			logger.KeyChunkID, chunk.ID,
			logger.KeyFile, chunk.File,
			logger.KeySize, chunk.Size,
		)

		m.Chunks = append(m.Chunks, *chunk)
		res.TotalBytes += chunk.Size
	}

	m.Entry = b.resolveEntry(m)
	m.Preload = b.resolvePreload(m)

	if err := m.SaveDir(b.opts.OutDir); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	res.Manifest = m
	res.ChunkCount = len(m.Chunks)
	res.Duration = time.Since(start)

	logger.InfoCtx(ctx, "build finished",
		logger.KeyChunkCount, res.ChunkCount,
		logger.KeyTotalBytes, res.TotalBytes,
		logger.KeyDurationMs, logger.Duration(start),
	)

	return res, nil
}

// Clean removes the build output directory.
func (b *Bundler) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.RemoveAll(b.opts.OutDir); err != nil {
		return fmt.Errorf("failed to remove output directory: %w", err)
	}

	logger.Info("build output removed", logger.KeyDir, b.opts.OutDir)
	return nil
}

// source is one discovered chunk source before emission.
type source struct {
	id    string
	files []string // absolute paths, in concatenation order
}

// discover lists the chunk sources under SrcDir, sorted by chunk id.
func (b *Bundler) discover() ([]source, error) {
	entries, err := os.ReadDir(b.opts.SrcDir)
	if err != nil {
		return nil, err
	}

	var sources []source
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		if e.IsDir() {
			files, err := collectJS(filepath.Join(b.opts.SrcDir, name))
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				continue
			}
			sources = append(sources, source{id: name, files: files})
			continue
		}

		if filepath.Ext(name) != ".js" {
			continue
		}
		sources = append(sources, source{
			id:    strings.TrimSuffix(name, ".js"),
			files: []string{filepath.Join(b.opts.SrcDir, name)},
		})
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].id < sources[j].id })
	return sources, nil
}

// collectJS walks dir and returns every .js file in path order.
func collectJS(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".js" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// emit concatenates, hashes and writes one chunk, returning its manifest
// record.
func (b *Bundler) emit(src source) (*manifest.Chunk, error) {
	var buf bytes.Buffer
	for i, path := range src.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}

	content := buf.Bytes()
	hash := contentHash(content, b.opts.HashLength)
	file := fmt.Sprintf("%s.%s.js", src.id, hash)

	if err := os.WriteFile(filepath.Join(b.opts.OutDir, file), content, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", file, err)
	}

	requires := ScanRequires(content)
	// A chunk referencing itself is not a dependency.
	requires = remove(requires, src.id)

	return &manifest.Chunk{
		ID:       src.id,
		File:     file,
		Hash:     hash,
		Size:     int64(len(content)),
		Requires: requires,
	}, nil
}

// resolveEntry picks the entry chunk id for the manifest.
func (b *Bundler) resolveEntry(m *manifest.Manifest) string {
	entry := b.opts.Entry
	if entry == "" {
		entry = "main"
	}
	if _, ok := m.Lookup(entry); ok {
		return entry
	}
	if b.opts.Entry != "" {
		logger.Warn("configured entry chunk not found", logger.KeyEntry, b.opts.Entry)
	}
	return ""
}

// resolvePreload filters the configured preload list to chunks the build
// actually produced, preserving order.
func (b *Bundler) resolvePreload(m *manifest.Manifest) []string {
	var preload []string
	for _, id := range b.opts.Preload {
		if _, ok := m.Lookup(id); !ok {
			logger.Warn("preload chunk not found, skipping",
				logger.KeyChunkID, id,
			)
			continue
		}
		preload = append(preload, id)
	}
	return preload
}

// contentHash returns the first length hex characters of the SHA-256 of
// content.
func contentHash(content []byte, length int) string {
	sum := sha256.Sum256(content)
	h := hex.EncodeToString(sum[:])
	if length > 0 && length < len(h) {
		return h[:length]
	}
	return h
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
