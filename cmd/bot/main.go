// Command mergerbot starts the image merger Telegram bot.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mkarpov/mergerbot/internal/compositor"
	"github.com/mkarpov/mergerbot/internal/dispatch"
	"github.com/mkarpov/mergerbot/internal/flow"
	"github.com/mkarpov/mergerbot/internal/fonts"
	"github.com/mkarpov/mergerbot/internal/migrate"
	"github.com/mkarpov/mergerbot/internal/repository"
	filerepo "github.com/mkarpov/mergerbot/internal/repository/file"
	"github.com/mkarpov/mergerbot/internal/repository/postgres"
	"github.com/mkarpov/mergerbot/internal/session"
	"github.com/mkarpov/mergerbot/internal/telegram"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, picks a preset backend, and runs the bot until
// an OS signal stops it.
func main() {
	// Flags
	presetsPath := flag.String("presets", "spacing_presets.json", "preset document path")
	fontCache := flag.String("font-cache", "boldonse.ttf", "font cache file path")
	groupChat := flag.String("group", "allimarged", "group chat username for broadcasts")
	workers := flag.Int("workers", 4, "worker pool size")
	jobTimeout := flag.Duration("job-timeout", 2*time.Minute, "per-job timeout")
	dsn := flag.String("dsn", "", "PostgreSQL DSN for presets (file storage if empty)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	// .env is optional; the environment always wins.
	_ = godotenv.Load()
	token := os.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		logger.Fatal("missing TELEGRAM_TOKEN")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Preset repository
	var presets repository.PresetRepository
	if *dsn != "" {
		if err := migrate.Up(ctx, *dsn); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, *dsn)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		defer db.Close()
		presets = postgres.NewPresetRepo(db)
		logger.Info("using postgres preset storage")
	} else {
		presets = filerepo.NewRepo(*presetsPath, logger)
		logger.Info("using file preset storage", zap.String("path", *presetsPath))
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Fatal("telegram auth", zap.Error(err))
	}

	resolver := fonts.NewResolver(*fontCache, logger)
	comp := compositor.New(resolver, logger)
	sessions := session.NewStore()
	dispatcher := dispatch.New(*workers, *jobTimeout, logger)

	bot := telegram.New(api, dispatcher, *groupChat, logger)
	engine := flow.New(sessions, presets, comp, bot, bot, logger)
	bot.SetEngine(engine)

	dispatcher.Start(ctx)
	bot.Run(ctx)

	// Let in-flight jobs drain before exiting.
	dispatcher.Wait()
	logger.Info("shutdown complete")
}
