package devserver

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/lhorie/fusion-cli/internal/logger"
	"github.com/lhorie/fusion-cli/pkg/loader"
	"github.com/lhorie/fusion-cli/pkg/manifest"
)

// ManifestSource provides the current build manifest.
//
// In watch mode the manifest is swapped after every rebuild, so handlers
// read it through this accessor instead of holding a snapshot.
type ManifestSource interface {
	Manifest() *manifest.Manifest
}

// Handlers holds the HTTP handlers for the dev server routes.
//
// The loader can be swapped at runtime (SwapLoader); watch mode replaces
// it after every rebuild so settled chunks from a previous build are not
// served against a new manifest.
type Handlers struct {
	mu        sync.RWMutex
	loader    *loader.Loader
	errorHook func(loader.ChunkID)

	manifests ManifestSource
}

// NewHandlers creates the dev server handlers around one loader.
//
// Installing the error hook here means failures reported before the server
// existed can be passed as failedBefore and are replayed immediately.
func NewHandlers(ld *loader.Loader, manifests ManifestSource, failedBefore ...loader.ChunkID) *Handlers {
	return &Handlers{
		loader:    ld,
		manifests: manifests,
		errorHook: ld.ErrorHook(failedBefore...),
	}
}

// Loader returns the current loader.
func (h *Handlers) Loader() *loader.Loader {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loader
}

// SwapLoader replaces the current loader and installs a fresh error hook
// on the replacement. The previous loader is returned so the caller can
// close it.
func (h *Handlers) SwapLoader(ld *loader.Loader) *loader.Loader {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.loader
	h.loader = ld
	h.errorHook = ld.ErrorHook()
	return old
}

func (h *Handlers) hook() func(loader.ChunkID) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.errorHook
}

// GetChunk requests a chunk and waits for it to settle.
//
// A successful load returns the chunk body as JavaScript. A failed load
// returns 502 with the loader's error message. Waiting is bounded by the
// request context, so the route middleware timeout applies.
func (h *Handlers) GetChunk(w http.ResponseWriter, r *http.Request) {
	id := loader.ChunkID(chi.URLParam(r, "id"))
	ctx := logger.WithContext(r.Context(), logger.FromContext(r.Context()).WithChunk(string(id)))

	handle := h.Loader().Request(id)
	asset, err := handle.Wait(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			JSON(w, http.StatusGatewayTimeout, ErrorResponse(err.Error()))
			return
		}
		logger.DebugCtx(ctx, "chunk load failed", logger.KeyError, err)
		JSON(w, http.StatusBadGateway, ErrorResponse(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(asset); err != nil {
		logger.DebugCtx(ctx, "failed to write chunk body", logger.KeyError, err)
	}
}

// ReportChunkError reports an external load failure for a chunk.
//
// The report is forwarded to the loader's error hook. Reports for unknown,
// already-settled, or already-failed chunks are no-ops, so the route always
// answers 202.
func (h *Handlers) ReportChunkError(w http.ResponseWriter, r *http.Request) {
	id := loader.ChunkID(chi.URLParam(r, "id"))
	ctx := logger.WithContext(r.Context(), logger.FromContext(r.Context()).WithChunk(string(id)))

	h.hook()(id)
	logger.InfoCtx(ctx, "external chunk failure reported")

	JSON(w, http.StatusAccepted, OKResponse(map[string]string{
		"chunk": string(id),
	}))
}

// GetManifest returns the current build manifest.
func (h *Handlers) GetManifest(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.manifests.Manifest()))
}

// Liveness reports that the server process is up.
func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthyResponse(h.Loader().Stats()))
}

// Readiness reports whether a build is available to serve.
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	m := h.manifests.Manifest()
	if m == nil || len(m.Chunks) == 0 {
		JSON(w, http.StatusServiceUnavailable, UnhealthyResponse("no build available"))
		return
	}

	JSON(w, http.StatusOK, HealthyResponse(map[string]interface{}{
		"build_id": m.BuildID,
		"chunks":   len(m.Chunks),
	}))
}
