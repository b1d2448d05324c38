package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragchat/internal/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr, folder string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat page and JSON API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.ingest(ctx, folder); err != nil {
				return err
			}
			return server.Run(ctx, server.New(a.svc, a.metrics, a.log), cfg.Server.Addr, a.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&folder, "folder", "", "folder to ingest before serving")
	return cmd
}
