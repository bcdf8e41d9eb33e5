package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lhorie/fusion-cli/internal/bytesize"
	"github.com/lhorie/fusion-cli/internal/cli/output"
	"github.com/lhorie/fusion-cli/internal/logger"
	"github.com/lhorie/fusion-cli/pkg/compiler"
	"github.com/lhorie/fusion-cli/pkg/config"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the project",
	Long: `Run one full build: split the source tree into chunks, write
content-hashed chunk files, and emit the build manifest.

Examples:
  # Build with ./fusion.yaml
  fusion build

  # Build with a custom config file
  fusion build --config configs/fusion.yaml

  # Override settings through the environment
  FUSION_LOGGING_LEVEL=DEBUG fusion build`,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	bundler := newBundler(cfg)
	res, err := bundler.Start(cmd.Context())
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	p := output.DefaultPrinter()
	if !res.Success() {
		for id, cerr := range res.ChunkErrors {
			p.Error(fmt.Sprintf("chunk %s: %v", id, cerr))
		}
		return fmt.Errorf("build finished with %d failed chunk(s)", len(res.ChunkErrors))
	}

	p.Success(fmt.Sprintf("Built %d chunks (%s) in %s",
		res.ChunkCount,
		bytesize.Format(res.TotalBytes),
		res.Duration.Round(time.Millisecond),
	))
	return nil
}

// newBundler creates the compiler configured from cfg.
func newBundler(cfg *config.Config) *compiler.Bundler {
	return compiler.New(compiler.Options{
		SrcDir:     cfg.Build.SrcDir,
		OutDir:     cfg.Build.OutDir,
		Entry:      cfg.Build.Entry,
		Preload:    cfg.Build.Preload,
		HashLength: cfg.Build.HashLength,
	})
}

// initLogger configures the structured logger from the loaded config.
func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}
