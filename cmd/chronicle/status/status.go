// Package statuscmder provides the status command for displaying the
// current session state of the local .chronicle directory.
package statuscmder

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/dotdir"
	"github.com/papercomputeco/chronicle/pkg/git"
	"github.com/papercomputeco/chronicle/pkg/utils"
)

const statusLongDesc string = `Show the current chronicle session state.

Reads the local .chronicle/ directory (or ~/.chronicle/) to display the
story's position: the newest committed chunk, the in-flight turn if any,
and a draft awaiting review if the last session stopped at the quality
checkpoint.

If no session state exists, the next play session starts a fresh story.

Examples:
  chronicle status`

const statusShortDesc string = "Show current session state"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(configDir)
		},
	}

	return cmd
}

func runStatus(configDir string) error {
	manager := dotdir.NewManager()

	state, err := manager.LoadSessionState(configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	if state == nil {
		fmt.Printf("  %s No session state. Next play will start a fresh story.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("\n  %s\n", cliui.NameStyle.Render(git.RepoName()))
	fmt.Printf("\n  %s  %s\n",
		cliui.KeyStyle.Render("Last chunk: "),
		cliui.ValueStyle.Render(strconv.FormatInt(state.LastChunkID, 10)),
	)

	if state.TurnID != "" {
		fmt.Printf("  %s  %s\n",
			cliui.KeyStyle.Render("Open turn:  "),
			cliui.NameStyle.Render(state.TurnID),
		)
	}

	if state.PendingDraft != "" {
		fmt.Printf("  %s  %s\n",
			cliui.KeyStyle.Render("Pending:    "),
			cliui.PreviewStyle.Render(utils.Truncate(state.PendingDraft, 72)),
		)
	}

	fmt.Println()
	return nil
}
