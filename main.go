package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"gatekeeper/internal/config"
	"gatekeeper/internal/engine"
	"gatekeeper/internal/notifier"
	"gatekeeper/internal/server"
	"gatekeeper/internal/store"
	"gatekeeper/internal/sweeper"
	"gatekeeper/internal/telegram_bot"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err) // Should not happen in development
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Load configuration
	cfgPath := "configs/config.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Restore persisted requests and bans; records past the retention
	// horizon are dropped at load time.
	st, err := store.Open(cfg.Storage.DataFile, cfg.Settings.RetentionDays, logger)
	if err != nil {
		logger.Fatal("Failed to open request store", zap.Error(err))
	}

	// Telegram transport
	client, err := telegram_bot.NewClient(cfg.Bot.Token, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram client", zap.Error(err))
	}

	// Moderator notification fan-out
	dispatcher := notifier.NewDispatcher(client, cfg, logger)

	// Lifecycle engine
	eng := engine.New(st, client, dispatcher, engine.Policies{
		AutoApprove:      cfg.Settings.AutoApprove,
		NotifyModerators: cfg.Settings.NotifyModerators,
		BanOnDecline:     cfg.Settings.BanOnDecline,
	}, logger)

	bot := telegram_bot.NewBot(client, eng, st, cfg, logger)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Scheduled retention sweep
	sw, err := sweeper.New(st, cfg.Settings.SweepSchedule, cfg.Settings.RetentionDays, logger)
	if err != nil {
		logger.Fatal("Failed to create retention sweeper", zap.Error(err))
	}
	sw.Start(ctx)

	// Run the operational HTTP server in a goroutine
	httpLog := logrus.New()
	srv := server.NewServer(st, httpLog)
	go srv.Run(cfg.Server.Port)

	// Run the bot update loop in a goroutine
	go func() {
		if err := bot.Start(ctx); err != nil {
			logger.Error("Telegram bot failed", zap.Error(err))
		}
	}()

	logger.Info("Channel request bot started", zap.String("channel", cfg.Channel.Title))

	<-ctx.Done()
	logger.Info("Application stopped.")
}
