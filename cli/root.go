// Package cli implements the prism-todo command line.
package cli

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prism-todo/config"
	"prism-todo/events"
	"prism-todo/storage"
	"prism-todo/store"
)

type app struct {
	configPath string
	debug      bool
	backend    string

	cfg    *config.Config
	logger *log.Logger
}

// NewRootCmd builds the command tree. Each call returns independent state.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "prism-todo",
		Short: "A small personal task list",
		Long: `prism-todo keeps a list of tasks with a title, a priority and a done flag.

The list is stored as a single JSON document in the configured backend
(file, sqlite, redis, azure table or memory) and can be managed from the
command line, a terminal UI or an HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $HOME/.prism-todo/config.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "storage backend: file, sqlite, redis, table or memory")

	root.AddCommand(
		a.addCmd(),
		a.listCmd(),
		a.showCmd(),
		a.editCmd(),
		a.doneCmd(),
		a.rmCmd(),
		a.statsCmd(),
		a.serveCmd(),
		a.tuiCmd(),
		a.initCmd(),
	)
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) setup(cmd *cobra.Command) error {
	load := config.Load
	if cmd.Name() == "init" {
		load = config.LoadOptional
	}
	cfg, err := load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = a.backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if a.debug {
		cfg.Debug = true
	}

	logger := log.New()
	logger.SetOutput(cmd.ErrOrStderr())
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
		log.SetLevel(log.DebugLevel)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStore opens the configured slot and event transports and loads the
// collection. The returned func releases both.
func (a *app) openStore(ctx context.Context) (*store.Store, func(), error) {
	slot, closeSlot, err := storage.Open(ctx, a.cfg.StorageOptions())
	if err != nil {
		return nil, nil, err
	}
	pub, closePub, err := events.Build(a.cfg.EventOptions(), a.logger)
	if err != nil {
		_ = closeSlot()
		return nil, nil, err
	}
	release := func() {
		closePub()
		if err := closeSlot(); err != nil {
			a.logger.WithError(err).Warn("closing storage failed")
		}
	}

	s := store.New(slot,
		store.WithKey(a.cfg.Key),
		store.WithPublisher(pub),
		store.WithLogger(a.logger),
	)
	if _, err := s.Load(ctx); err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}
