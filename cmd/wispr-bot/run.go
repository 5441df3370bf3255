package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sjawhar/wispr-bot/internal/config"
	"github.com/sjawhar/wispr-bot/internal/discord"
	"github.com/sjawhar/wispr-bot/internal/gdrive"
	"github.com/sjawhar/wispr-bot/internal/keyword"
	"github.com/sjawhar/wispr-bot/internal/llm"
	"github.com/sjawhar/wispr-bot/internal/metrics"
	"github.com/sjawhar/wispr-bot/internal/server"
	"github.com/sjawhar/wispr-bot/internal/session"
	"github.com/sjawhar/wispr-bot/internal/storage"
	"github.com/sjawhar/wispr-bot/internal/transcribe"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve the status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath(cmd))
		},
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, warnings, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn(w)
	}
	if cfg.DiscordToken == "" {
		return errors.New("discord token is required")
	}

	logger.Info("wispr-bot: starting", "version", version, "engine", cfg.Transcription.Engine, "chunk", cfg.ChunkDuration())

	store, err := storage.NewSQLiteStore(cfg.DBPath, cfg.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	hub := server.NewHub(logger)

	engine, err := transcribe.NewEngine(cfg)
	if err != nil {
		logger.Warn("transcription disabled", "error", err)
		engineErr := err
		engine = transcribe.EngineFunc(func(context.Context, string, string) (string, error) {
			return "", engineErr
		})
	}

	keywords := keyword.Build(cfg.Keywords, llmFactory(cfg), logger)
	keywords.OnFire(m.KeywordFired)
	logger.Info("keyword triggers loaded", "triggers", keywords.Triggers())

	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	registry := session.NewRegistry()
	dispatcher := transcribe.NewDispatcher(ctx, engine, store, registry, discord.NewPoster(dg), transcribe.Options{
		Workers:  cfg.Transcription.Workers,
		Timeout:  cfg.TranscriptionTimeout(),
		TempDir:  cfg.Transcription.TempDir,
		Keywords: keywords,
		Hub:      hub,
		Metrics:  m,
		Logger:   logger,
	})
	manager := session.NewManager(registry, discord.NewConnector(dg, logger), dispatcher, store, session.Options{
		ChunkDuration: cfg.ChunkDuration(),
		GraceInterval: cfg.GraceInterval(),
		Hub:           hub,
		Metrics:       m,
		Logger:        logger,
	})

	bot := discord.New(dg, manager, store, discord.Options{
		ChunkLabel: chunkLabel(cfg.ChunkDuration()),
		Logger:     logger,
	})
	if err := bot.Open(ctx); err != nil {
		return err
	}

	waitBackup := func() {}
	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID, logger)
		if syncErr != nil {
			logger.Warn("gdrive sync disabled", "error", syncErr)
		} else {
			waitBackup = startBackup(ctx, syncer, store, cfg.ParsedBackupInterval())
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, cfg.HTTPAddr, server.Deps{
			Hub:      hub,
			Sessions: manager,
			Settings: store,
			Gatherer: reg,
			Warnings: func() []string { return warnings },
			Logger:   logger,
		})
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	logger.Info("wispr-bot: shutting down")
	manager.Shutdown()
	if closeErr := bot.Close(); closeErr != nil {
		logger.Warn("close discord session", "error", closeErr)
	}
	dispatcher.Wait()
	// the final backup reads the store, which closes on return
	waitBackup()
	return err
}

type backupRunner interface {
	Run(ctx context.Context, exp gdrive.Exporter, interval time.Duration)
}

// startBackup runs the periodic backup in the background. The returned
// function blocks until the runner has finished its final sync.
func startBackup(ctx context.Context, r backupRunner, exp gdrive.Exporter, interval time.Duration) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, exp, interval)
	}()
	return func() { <-done }
}

// llmFactory builds keyword repliers from "provider/model" strings using the
// provider's configured API key.
func llmFactory(cfg config.Config) keyword.ReplierFactory {
	return func(row config.LLMKeyword) (llm.Replier, error) {
		provider, name, err := llm.ParseModel(row.Model)
		if err != nil {
			return nil, err
		}
		key := apiKeyFor(cfg, provider)
		if key == "" {
			return nil, fmt.Errorf("no API key configured for %s", provider)
		}
		return llm.New(provider, key, name, llm.Options{
			MaxTokens: row.MaxTokens,
			Timeout:   row.ReplyTimeout(),
		})
	}
}

func apiKeyFor(cfg config.Config, provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return cfg.OpenAIAPIKey
	case llm.ProviderAnthropic:
		return cfg.AnthropicAPIKey
	case llm.ProviderGemini:
		return cfg.GeminiAPIKey
	default:
		return ""
	}
}
