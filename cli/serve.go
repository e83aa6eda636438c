package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prism-todo/api"
	"prism-todo/config"
	"prism-todo/storage"
	"prism-todo/tui"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, done, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer done()

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			return api.Serve(ctx, api.New(s, a.logger), addr, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from http.addr)")
	return cmd
}

func (a *app) tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Manage tasks in an interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// log lines would corrupt the alternate screen
			if !a.cfg.Debug {
				a.logger.SetOutput(io.Discard)
			}
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return tui.Run(cmd.Context(), s)
		},
	}
}

func (a *app) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file and provision storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			path := a.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			_, statErr := os.Stat(path)
			switch {
			case statErr == nil && !force:
				fmt.Fprintf(out, "Config %s already exists\n", path)
			case statErr == nil || errors.Is(statErr, os.ErrNotExist):
				if err := a.cfg.Save(path); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", path)
			default:
				return statErr
			}

			if a.cfg.Backend == storage.BackendFile {
				if _, err := storage.NewFileSlot(a.cfg.File.Dir); err != nil {
					return err
				}
			}
			if err := storage.Provision(cmd.Context(), a.cfg.Resources()); err != nil {
				return err
			}
			fmt.Fprintf(out, "Storage ready (%s backend)\n", a.cfg.Backend)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
