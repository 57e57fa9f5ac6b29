package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/glintworks/murmur/external/audio"
	configloader "github.com/glintworks/murmur/external/config"
	"github.com/glintworks/murmur/external/discord"
	ingestimpl "github.com/glintworks/murmur/external/ingest"
	llmimpl "github.com/glintworks/murmur/external/llm"
	realtimeimpl "github.com/glintworks/murmur/external/realtime"
	settingsimpl "github.com/glintworks/murmur/external/settings"
	transcriberimpl "github.com/glintworks/murmur/external/transcriber"
	"github.com/glintworks/murmur/internal/config"
	discordpkg "github.com/glintworks/murmur/internal/discord"
	"github.com/glintworks/murmur/internal/session"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	shutdownTimeout       = 10 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "voice_mode", cfg.DefaultVoiceMode)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching voice agent")
	runAgent(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	settingsimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	llmimpl.RegisterDI(injector)
	realtimeimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	ingestimpl.RegisterDI(injector)

	return injector
}

func runAgent(cfg *config.Config, injector do.Injector) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}
	ingestServer, err := do.Invoke[*ingestimpl.Server](injector)
	if err != nil {
		slog.Error("failed to resolve ingest server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(ctx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")

	if err := dc.UpsertGuildSlashCommands(cfg.DiscordGuildID, session.SlashCommandDefinitions()); err != nil {
		slog.Error("failed to upsert slash commands", "error", err, "guild_id", cfg.DiscordGuildID)
		os.Exit(1)
	}

	dc.RegisterVoiceStateUpdateHandler(manager.HandleVoiceState)
	dc.RegisterSlashCommandHandler(manager.HandleSlashCommand)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID)
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()
	go func() {
		if err := ingestServer.Start(); err != nil {
			slog.Error("ingest server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	manager.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := ingestServer.Stop(shutdownCtx); err != nil {
		slog.Error("ingest server shutdown failed", "error", err)
	}
}
