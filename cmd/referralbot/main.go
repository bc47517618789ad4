package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"referral-gate/internal/bot"
	"referral-gate/internal/config"
	"referral-gate/internal/logging"
	"referral-gate/internal/repository"
	"referral-gate/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(ctx, &cfg, logger); err != nil {
		logger.Fatal("bot stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	channels, err := service.ResolveChannels(cfg.Channels)
	if err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	referralRepo := repository.NewReferralRepository(db)

	api, err := bot.NewAPI(cfg.TelegramToken)
	if err != nil {
		return err
	}

	membershipSvc := service.NewMembershipService(bot.NewChatMemberLookup(api), cfg.LookupTimeout, logger.Named("membership"))
	eligibilitySvc := service.NewEligibilityService(referralRepo, membershipSvc, channels, cfg.ReferralThreshold)
	statsSvc := service.NewStatsService(referralRepo, logger.Named("stats"))

	for _, ch := range channels {
		if !ch.Handle.Verifiable() {
			logger.Warn("channel cannot be verified and is skipped in checks", zap.String("label", ch.Label))
		}
	}

	if cfg.StatsInterval > 0 {
		scheduler := service.NewSchedulerService(time.Local, logger)
		if _, err := scheduler.ScheduleInterval(cfg.StatsInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := statsSvc.LogSnapshot(jobCtx); err != nil {
				logger.Error("stats job", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	telegramBot := bot.New(api, referralRepo, eligibilitySvc, statsSvc, channels, cfg, logger.Named("bot"))

	logger.Info("referral bot started",
		zap.Int("channels", len(channels)),
		zap.Int("threshold", cfg.ReferralThreshold),
	)
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
