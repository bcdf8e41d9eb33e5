package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lhorie/fusion-cli/internal/bytesize"
	"github.com/lhorie/fusion-cli/internal/cli/output"
	"github.com/lhorie/fusion-cli/pkg/config"
	"github.com/lhorie/fusion-cli/pkg/manifest"
)

var chunksOutput string

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "List the chunks of the last build",
	Long: `Display the chunks recorded in the build manifest of the output
directory.

Examples:
  # List chunks as a table
  fusion chunks

  # Output as JSON
  fusion chunks --output json`,
	RunE: runChunks,
}

func init() {
	chunksCmd.Flags().StringVarP(&chunksOutput, "output", "o", "table", "Output format (table|json)")
}

func runChunks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(chunksOutput)
	if err != nil {
		return err
	}

	m, err := manifest.LoadDir(cfg.Build.OutDir)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(m.Chunks) == 0 {
		return fmt.Errorf("no build found in %s (run 'fusion build' first)", cfg.Build.OutDir)
	}

	p := output.DefaultPrinter()
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), m)
	}

	table := output.NewTableData("ID", "FILE", "SIZE", "REQUIRES", "PRELOAD")
	for _, c := range m.Chunks {
		preload := ""
		if m.IsPreloaded(c.ID) {
			preload = "yes"
		}
		table.AddRow(
			c.ID,
			c.File,
			bytesize.Format(c.Size),
			strings.Join(c.Requires, ", "),
			preload,
		)
	}

	if err := output.PrintTable(cmd.OutOrStdout(), table); err != nil {
		return err
	}

	p.Printf("\nBuild %s: %d chunks, %s total\n",
		m.BuildID,
		len(m.Chunks),
		bytesize.Format(m.TotalSize()),
	)
	return nil
}
