// Package tailcmder provides the tail command for printing the most recent
// passages of the story.
package tailcmder

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/logger"
	"github.com/papercomputeco/chronicle/pkg/start"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

const tailLongDesc string = `Show the most recent passages of the story.

Reads the newest finalized chunks from storage and prints them in reading
order, the same view the engine's warm slice sees.

Examples:
  chronicle tail
  chronicle tail --count 3`

const tailShortDesc string = "Show the most recent passages"

func NewTailCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: tailShortDesc,
		Long:  tailLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runTail(configDir, count, debug)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of passages to show")

	return cmd
}

func runTail(configDir string, count int, debug bool) error {
	log := logger.NewLogger(debug)
	defer log.Sync()

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

	chunks, err := system.Store.TailChunks(context.Background(), count)
	if err != nil && !errors.Is(err, storage.ErrEmptyNarrative) {
		return fmt.Errorf("loading tail: %w", err)
	}

	if len(chunks) == 0 {
		fmt.Printf("  %s The story has not started yet.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	// Newest-first from the store; print in reading order.
	for i := len(chunks) - 1; i >= 0; i-- {
		chunk := chunks[i]
		fmt.Printf("\n  %s %s\n",
			cliui.KeyStyle.Render(chunk.ID.String()),
			cliui.StateStyle.Render(string(chunk.State)),
		)
		prose, err := cliui.RenderProse(chunk.Text)
		if err != nil {
			prose = chunk.Text
		}
		fmt.Println(prose)
	}

	return nil
}
