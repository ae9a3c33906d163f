// Package servecmder provides the serve command for running the inspection
// API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/api"
	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/logger"
	"github.com/papercomputeco/chronicle/pkg/start"
)

type ServeCommander struct {
	listen string
	debug  bool
	logger *zap.Logger
}

const serveLongDesc string = `Run the chronicle inspection API server.

Serves a read-only HTTP surface over the narrative: chunks and their
lifecycle state, entities and relationships, turn traces, and hybrid
search. All writes go through play sessions; the server never mutates
the story.

Examples:
  chronicle serve
  chronicle serve --listen :9090`

const serveShortDesc string = "Run the inspection API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for API server to listen on")

	return cmd
}

func (c *ServeCommander) run(configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	listen := c.listen
	if listen == "" {
		listen = cfg.API.Listen
	}

	system, err := start.Build(context.Background(), cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building system: %w", err)
	}
	defer system.Close()

	server := api.NewServer(api.Config{
		ListenAddr: listen,
		Retriever:  system.Retriever,
	}, system.Store, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("api server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}
