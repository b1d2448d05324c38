package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragchat/internal/mcptools"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp [folder]",
		Short: "Serve ingest_folder, ask and clear as MCP tools over stdio",
		Long: `Run ragchat as an MCP (Model Context Protocol) server on stdio so an
LLM agent can ingest folders and ask questions about them.

Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			if len(args) == 1 {
				if _, err := a.ingest(ctx, args[0]); err != nil {
					return err
				}
			}

			s, _ := mcptools.NewServer(a.svc, version, a.log)
			a.log.Info("MCP server starting on stdio")
			return mcptools.Serve(ctx, s, os.Stdin, os.Stdout)
		},
	}
}
