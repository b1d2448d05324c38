package main

import (
	"github.com/spf13/cobra"

	"ragchat/internal/config"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the ragchat command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "ragchat",
		Short: "Ask questions about a folder of documents",
		Long: `ragchat answers questions about the PDF and text files in a folder.

Documents are split into chunks, embedded and indexed; each question is
answered by a local language model from the most similar chunks.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/ragchat/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(flags),
		newChatCmd(flags),
		newAskCmd(flags),
		newMCPCmd(flags),
	)
	return cmd
}

func (f *globalFlags) load() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if f.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(f.configPath)
	}
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}
