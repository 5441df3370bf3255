package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wispr-bot",
		Short:         "Discord voice transcription bot",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `wispr-bot joins Discord voice channels, records each speaker separately in
fixed-length chunks and posts the transcripts to a text channel. Keywords in
the transcripts can trigger canned or LLM-generated responses.`,
	}
	root.PersistentFlags().StringP("config", "c", "wispr-bot.yaml", "Path to the YAML config file")

	root.AddCommand(newRunCmd(), newCommandsCmd(), newSettingsCmd())
	return root
}

func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return ""
	}
	return path
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
