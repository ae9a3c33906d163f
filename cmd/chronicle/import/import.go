// Package importcmder provides the import command for seeding a narrative
// from an existing manuscript file.
package importcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/ingest"
	"github.com/papercomputeco/chronicle/pkg/lifecycle"
	"github.com/papercomputeco/chronicle/pkg/logger"
	"github.com/papercomputeco/chronicle/pkg/start"
)

const importLongDesc string = `Import an existing manuscript into the story.

The file is split into passages, each passage becomes a finalized chunk in
story order, and every chunk is embedded so retrieval sees the imported
history the same way it sees played turns.

Examples:
  chronicle import prologue.txt
  chronicle import --dry-run draft.md
  chronicle import --chunk-chars 1200 backstory.txt`

const importShortDesc string = "Import a manuscript into the story"

func NewImportCmd() *cobra.Command {
	var (
		dryRun     bool
		chunkChars int
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: importShortDesc,
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runImport(configDir, args[0], ingest.Options{
				DryRun:        dryRun,
				MaxChunkChars: chunkChars,
			}, debug)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Split the manuscript without writing anything")
	cmd.Flags().IntVar(&chunkChars, "chunk-chars", ingest.DefaultMaxChunkChars, "Maximum characters per imported chunk")

	return cmd
}

func runImport(configDir, path string, opts ingest.Options, debug bool) error {
	log := logger.NewLogger(debug)
	defer log.Sync()

	manuscript, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manuscript: %w", err)
	}

	lock, err := start.AcquireLock(configDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	system, err := start.Build(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("building system: %w", err)
	}
	defer system.Close()

	importer := ingest.NewImporter(
		system.Store,
		lifecycle.NewManager(system.Store, log),
		system.Spaces,
		opts,
		log,
	)

	var result *ingest.Result
	err = cliui.Step(os.Stdout, "importing manuscript", func() error {
		var err error
		result, err = importer.Run(context.Background(), string(manuscript))
		return err
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s %s\n\n", cliui.SuccessMark, result.Summary())
	return nil
}
