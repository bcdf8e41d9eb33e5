package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lhorie/fusion-cli/internal/logger"
	"github.com/lhorie/fusion-cli/pkg/compiler"
	"github.com/lhorie/fusion-cli/pkg/config"
	"github.com/lhorie/fusion-cli/pkg/devserver"
	"github.com/lhorie/fusion-cli/pkg/fetch"
	"github.com/lhorie/fusion-cli/pkg/loader"
	"github.com/lhorie/fusion-cli/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/lhorie/fusion-cli/pkg/metrics/prometheus"
)

var devNoWatch bool

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Build and serve the project with rebuild on change",
	Long: `Run an initial build, start the dev server, and rebuild whenever
the source tree changes.

The dev server serves chunks through a single-flight loader: concurrent
requests for the same chunk share one fetch, failed chunks can be retried,
and the manifest's preload list is registered at startup.

Examples:
  # Build, watch and serve
  fusion dev

  # Serve without watching for changes
  fusion dev --no-watch

  # Override the port through the environment
  FUSION_SERVER_PORT=3000 fusion dev`,
	RunE: runDev,
}

func init() {
	devCmd.Flags().BoolVar(&devNoWatch, "no-watch", false, "Serve without rebuilding on source changes")
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Initial build
	bundler := newBundler(cfg)
	res, err := bundler.Start(ctx)
	if err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}
	if !res.Success() {
		for id, cerr := range res.ChunkErrors {
			logger.Error("chunk build failed", logger.KeyChunkID, id, logger.KeyError, cerr)
		}
		return fmt.Errorf("initial build finished with %d failed chunk(s)", len(res.ChunkErrors))
	}

	fetcher := fetch.NewDirFetcher(cfg.Build.OutDir, res.Manifest)
	ld := newDevLoader(fetcher, res.Manifest.Preload)
	defer func() { _ = ld.Close() }()

	handlers := devserver.NewHandlers(ld, fetcher)
	server := devserver.NewServer(cfg.Server, handlers)

	// Watch mode: rebuild on change and swap in a loader over the new
	// build so stale chunks from the previous build are not served.
	if !devNoWatch {
		watcher := compiler.NewWatcher(cfg.Build.SrcDir, cfg.Build.WatchDebounce, func(ctx context.Context) {
			rebuild(ctx, bundler, fetcher, handlers)
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("watcher stopped", logger.KeyError, err)
			}
		}()
	}

	// Run the server until a signal arrives or it fails.
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("dev server is running, press Ctrl+C to stop", logger.KeyPort, server.Port())

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
		cancel()
		return <-serverDone
	case err := <-serverDone:
		return err
	}
}

// newDevLoader creates a loader over fetcher and registers preloads.
func newDevLoader(fetcher loader.Fetcher, preload []string) *loader.Loader {
	ld := loader.New(fetcher, metrics.NewLoaderMetrics())

	ids := make([]loader.ChunkID, len(preload))
	for i, id := range preload {
		ids[i] = loader.ChunkID(id)
	}
	ld.Preload(ids...)

	// Preloaded placeholders resolve from disk in the background.
	for _, id := range ids {
		go resolvePreload(ld, fetcher, id)
	}

	return ld
}

// resolvePreload fetches a preloaded chunk and delivers it out of band.
func resolvePreload(ld *loader.Loader, fetcher loader.Fetcher, id loader.ChunkID) {
	asset, err := fetcher.Fetch(context.Background(), id)
	if err != nil {
		logger.Warn("preload fetch failed",
			logger.KeyChunkID, string(id),
			logger.KeyError, err,
		)
		ld.Fail(id, err)
		return
	}
	ld.Deliver(id, asset)
}

// rebuild runs one build and swaps the new manifest and loader in.
func rebuild(ctx context.Context, bundler *compiler.Bundler, fetcher *fetch.DirFetcher, handlers *devserver.Handlers) {
	res, err := bundler.Start(ctx)
	if err != nil {
		logger.Error("rebuild failed", logger.KeyError, err)
		return
	}
	if !res.Success() {
		for id, cerr := range res.ChunkErrors {
			logger.Error("chunk build failed", logger.KeyChunkID, id, logger.KeyError, cerr)
		}
		return
	}

	fetcher.SetManifest(res.Manifest)

	old := handlers.SwapLoader(newDevLoader(fetcher, res.Manifest.Preload))
	if err := old.Close(); err != nil {
		logger.Debug("previous loader close", logger.KeyError, err)
	}
}
