package main

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/tui"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "chat [folder]",
		Short: "Chat with a folder of documents in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			// the terminal belongs to the UI
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				logOut = f
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logOut)
			if err != nil {
				return err
			}
			defer a.Close()

			var summary string
			if len(args) == 1 {
				if summary, err = a.ingest(ctx, args[0]); err != nil {
					return err
				}
			}
			_, err = tea.NewProgram(tui.New(ctx, a.svc, summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file")
	return cmd
}
