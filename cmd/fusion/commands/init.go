package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lhorie/fusion-cli/internal/cli/prompt"
	"github.com/lhorie/fusion-cli/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a fusion project configuration",
	Long: `Write a fusion.yaml configuration file with default settings.

By default, the configuration file is created in the current directory.
Use --config to specify a custom path. An existing file is only
overwritten after confirmation (or with --force).

Examples:
  # Initialize in the current directory
  fusion init

  # Initialize with custom path
  fusion init --config configs/fusion.yaml

  # Force overwrite existing config
  fusion init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		ok, err := prompt.ConfirmWithForce(
			fmt.Sprintf("Configuration file %s already exists. Overwrite?", configPath),
			initForce,
		)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				return nil
			}
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Put your sources under %s/\n", cfg.Build.SrcDir)
	fmt.Println("  2. Build with: fusion build")
	fmt.Println("  3. Or start the dev server with: fusion dev")

	return nil
}
