package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lhorie/fusion-cli/pkg/config"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove build outputs",
	Long: `Remove the build output directory, including emitted chunks and
the build manifest.`,
	RunE: runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	if err := newBundler(cfg).Clean(cmd.Context()); err != nil {
		return fmt.Errorf("clean failed: %w", err)
	}

	fmt.Printf("Removed %s\n", cfg.Build.OutDir)
	return nil
}
