// Package main provides the entry point for the healthiq service.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/sentiq/healthiq/internal/config"
	"github.com/sentiq/healthiq/internal/db"
	"github.com/sentiq/healthiq/internal/graphdb"
	"github.com/sentiq/healthiq/internal/llm"
	"github.com/sentiq/healthiq/internal/server"
)

var Version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Best-effort: a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	zerolog.SetGlobalLevel(logLevel(cfg.LogLevel))

	log.Info().
		Str("version", Version).
		Int("port", cfg.Port).
		Msg("Starting healthiq")

	if err := config.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	store, err := db.NewStore(db.Config{
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: gormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	ctx := context.Background()

	gateway, err := llm.New(ctx, cfg.LLM, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build LLM gateway")
	}

	driver, err := graphdb.New(ctx, cfg.Neo4j, log.Logger)
	if err != nil {
		// The mirror is optional; run degraded rather than refuse to start.
		log.Warn().Err(err).Msg("Graph mirror unavailable, continuing without it")
		driver = graphdb.NoopDriver{}
	}
	mirror := graphdb.NewMirror(driver, log.Logger)

	svc, err := server.NewService(Version, cfg, store, gateway, mirror, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create service")
	}

	// Hot reload swaps analytics thresholds on settings file changes;
	// invalid files are rejected and the last good config stays active.
	watcher, err := config.WatchSettings(config.SettingsPath(), func(updated *config.Config) {
		if err := svc.ApplyConfig(updated); err != nil {
			log.Warn().Err(err).Msg("Reloaded settings rejected, keeping previous thresholds")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable")
	} else {
		defer watcher.Close()
	}

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("healthiq shutdown complete")
}

func logLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func gormLogLevel(level string) logger.LogLevel {
	if strings.EqualFold(level, "debug") {
		return logger.Warn
	}
	return logger.Silent
}
