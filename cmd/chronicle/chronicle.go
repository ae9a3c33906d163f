// Package chroniclecmder
package chroniclecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/chronicle/cmd/chronicle/auth"
	configcmder "github.com/papercomputeco/chronicle/cmd/chronicle/config"
	importcmder "github.com/papercomputeco/chronicle/cmd/chronicle/import"
	initcmder "github.com/papercomputeco/chronicle/cmd/chronicle/init"
	playcmder "github.com/papercomputeco/chronicle/cmd/chronicle/play"
	servecmder "github.com/papercomputeco/chronicle/cmd/chronicle/serve"
	statuscmder "github.com/papercomputeco/chronicle/cmd/chronicle/status"
	tailcmder "github.com/papercomputeco/chronicle/cmd/chronicle/tail"
	versioncmder "github.com/papercomputeco/chronicle/cmd/chronicle/version"
)

const chronicleLongDesc string = `Chronicle is narrative memory for turn-based interactive fiction.

It remembers everything that ever happened in a story and assembles the
relevant slice of that history into each generation call.

Common commands:
  chronicle init       Initialize a local .chronicle/ directory
  chronicle play       Run an interactive story session
  chronicle import     Import an existing manuscript
  chronicle tail       Show the most recent passages
  chronicle serve      Run the inspection API server
  chronicle status     Show the current session state`

const chronicleShortDesc string = "Chronicle - Narrative Memory"

func NewChronicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chronicle",
		Short: chronicleShortDesc,
		Long:  chronicleLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chronicle directory location")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(playcmder.NewPlayCmd())
	cmd.AddCommand(importcmder.NewImportCmd())
	cmd.AddCommand(tailcmder.NewTailCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
