package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newAskCmd(flags *globalFlags) *cobra.Command {
	var showSources bool
	cmd := &cobra.Command{
		Use:   "ask <folder> <question>",
		Short: "Ingest a folder and answer one question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.ingest(ctx, args[0]); err != nil {
				return err
			}
			ans, err := a.svc.Ask(ctx, args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Text)
			if showSources {
				for _, r := range ans.Sources {
					fmt.Fprintf(out, "  [%.3f] %s #%d\n", r.Score, r.Chunk.Source, r.Chunk.Index)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "print the chunks the answer was built from")
	return cmd
}
