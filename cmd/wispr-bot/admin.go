package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/sjawhar/wispr-bot/internal/config"
	"github.com/sjawhar/wispr-bot/internal/discord"
	"github.com/sjawhar/wispr-bot/internal/storage"
)

func newCommandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Manage the bot's slash commands",
	}
	cmd.PersistentFlags().String("guild", "", "Guild ID to scope the change to (default: global)")

	cmd.AddCommand(&cobra.Command{
		Use:   "register",
		Short: "Register (overwrite) all slash commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			guild, _ := cmd.Flags().GetString("guild")
			return withDiscord(cmd, func(s *discordgo.Session) error {
				names, err := discord.RegisterCommands(s, guild)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %d commands: %s\n", len(names), strings.Join(names, ", "))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all slash commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			guild, _ := cmd.Flags().GetString("guild")
			return withDiscord(cmd, func(s *discordgo.Session) error {
				if err := discord.ClearCommands(s, guild); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared all commands.")
				return nil
			})
		},
	})
	return cmd
}

// withDiscord opens a short-lived gateway session for administrative calls.
func withDiscord(cmd *cobra.Command, fn func(s *discordgo.Session) error) error {
	cfg, _, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}
	if cfg.DiscordToken == "" {
		return errors.New("discord token is required")
	}

	s, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer func() { _ = s.Close() }()

	return fn(s)
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect persisted bot settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print all guild settings as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStore(cfg.DBPath, cfg.DefaultLanguage)
			if err != nil {
				return fmt.Errorf("storage init failed: %w", err)
			}
			defer func() { _ = store.Close() }()

			data, err := store.ExportYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}
