// Package playcmder provides the interactive story session command.
package playcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/cliui"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/dotdir"
	"github.com/papercomputeco/chronicle/pkg/git"
	"github.com/papercomputeco/chronicle/pkg/logger"
	"github.com/papercomputeco/chronicle/pkg/start"
	"github.com/papercomputeco/chronicle/pkg/turn"
)

const playLongDesc string = `Run an interactive story session.

Each line you type is one turn: chronicle retrieves the relevant history,
assembles the context payload, and generates the next passage. The passage
is shown for review before it becomes part of the story; you can accept it,
regenerate it on the same context, or rewrite your action.

Review keys after each passage:
  a    accept the passage into the story
  r    regenerate on the identical context
  e    rewrite your action and try again
  x    discard the passage and abandon the turn

Examples:
  chronicle play`

const playShortDesc string = "Run an interactive story session"

func NewPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: playShortDesc,
		Long:  playLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runPlay(configDir, debug)
		},
	}

	return cmd
}

func runPlay(configDir string, debug bool) error {
	log := logger.NewLogger(debug)
	defer log.Sync()

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

	session := &playSession{
		system: system,
		dot:    dotdir.NewManager(),
		dotDir: configDir,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		logger: log,
	}
	return session.loop(context.Background())
}

type playSession struct {
	system *start.System
	dot    *dotdir.Manager
	dotDir string
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
}

func (p *playSession) loop(ctx context.Context) error {
	fmt.Fprintf(p.out, "\n  %s\n", cliui.NameStyle.Render(git.RepoName()))
	fmt.Fprintf(p.out, "  %s\n\n", cliui.DimStyle.Render("Type your action. Ctrl-D ends the session."))

	for {
		fmt.Fprint(p.out, "> ")
		line, err := p.in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(p.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := p.playTurn(ctx, input); err != nil {
			fmt.Fprintf(p.out, "  %s %v\n", cliui.FailMark, err)
		}
	}
}

// playTurn drives one turn from input through review to integration.
func (p *playSession) playTurn(ctx context.Context, input string) error {
	var current *turn.Turn
	err := cliui.Step(p.out, "weaving the story", func() error {
		var err error
		current, err = p.system.Engine.StartTurn(ctx, input)
		return err
	})
	if err != nil {
		return err
	}

	for {
		prose, renderErr := cliui.RenderProse(current.Draft.Text)
		if renderErr != nil {
			prose = current.Draft.Text
		}
		fmt.Fprintln(p.out, prose)

		choice, err := p.review()
		if err != nil {
			return err
		}

		switch choice {
		case "a":
			chunk, err := p.system.Engine.Accept(ctx)
			if err != nil {
				return err
			}
			p.saveSession(int64(chunk.ID))
			return nil

		case "r":
			err = cliui.Step(p.out, "regenerating", func() error {
				var err error
				current, err = p.system.Engine.Reject(ctx, turn.RejectRegenerate, "")
				return err
			})
			if err != nil {
				return err
			}

		case "e":
			fmt.Fprint(p.out, "  rewrite your action > ")
			line, err := p.in.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			err = cliui.Step(p.out, "weaving the story", func() error {
				var err error
				current, err = p.system.Engine.Reject(ctx, turn.RejectEditPrevious, strings.TrimSpace(line))
				return err
			})
			if err != nil {
				return err
			}

		case "x":
			return p.system.Engine.Abort(ctx)

		default:
			fmt.Fprintf(p.out, "  %s\n", cliui.DimStyle.Render("a = accept, r = regenerate, e = edit action, x = abandon"))
		}
	}
}

func (p *playSession) review() (string, error) {
	fmt.Fprintf(p.out, "  %s ", cliui.DimStyle.Render("[a]ccept / [r]egenerate / [e]dit / [x] abandon?"))
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

func (p *playSession) saveSession(lastChunkID int64) {
	state := &dotdir.SessionState{LastChunkID: lastChunkID}
	if err := p.dot.SaveSession(state, p.dotDir); err != nil {
		p.logger.Warn("session state not saved", zap.Error(err))
	}
}
