package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/nepbot/internal/bot"
	"github.com/example/nepbot/internal/config"
	"github.com/example/nepbot/internal/database"
	"github.com/example/nepbot/internal/feedback"
	"github.com/example/nepbot/internal/logger"
	"github.com/example/nepbot/internal/scheduler"
	"github.com/example/nepbot/internal/sos"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	for _, w := range cfg.Warnings {
		log.Warn("config", "warning", w)
	}

	if err := database.Connect(cfg.DBType, cfg.DSN()); err != nil {
		log.Fatal("failed to connect to database", "db_type", cfg.DBType, "error", err)
	}
	defer database.Close()

	store := database.NewStore()
	detector := sos.NewDetector(store, database.NewScriptRanker(), sos.Config{
		Keywords:       cfg.SOSKeywords,
		RapidWindow:    cfg.SOSRapidWindow,
		RapidThreshold: cfg.SOSRapidThreshold,
		FailureWindow:  cfg.SOSFailureWindow,
		CheckTimeout:   cfg.SOSCheckTimeout,
		Location:       sos.DefaultLocation,
	}, log)
	aggregator := feedback.NewAggregator(store, log)

	b, err := bot.New(cfg.TelegramToken, detector, aggregator, cfg.AdminUserIDs, log)
	if err != nil {
		log.Fatal("failed to create bot", "error", err)
	}
	if err := b.Connect(); err != nil {
		log.Fatal("failed to connect to telegram", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		schedCfg := scheduler.DefaultConfig()
		schedCfg.StartHour = cfg.NotificationStartHour
		schedCfg.EndHour = cfg.NotificationEndHour
		schedCfg.FollowUpWindow = cfg.FollowUpWindow
		sched = scheduler.New(b, database.NewUsageRepository(), database.NewTrackerRepository(), schedCfg, log)
		if err := sched.Start(ctx); err != nil {
			log.Fatal("failed to start scheduler", "error", err)
		}
		b.SetFollowUpChecker(sched)
	}

	log.Info("bot started, press Ctrl+C to stop", "db_type", cfg.DBType, "scheduler", cfg.SchedulerEnabled)
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bot error", "error", err)
	}

	// Wait for in-flight handlers, at most five seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop()
	}
	if err := b.Stop(shutdownCtx); err != nil {
		log.Warn("error during shutdown", "error", err)
	}
	log.Info("bot stopped")
}
