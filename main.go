package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"moderation-service/internal/config"
	"moderation-service/internal/content"
	"moderation-service/internal/models"
	"moderation-service/internal/notifier"
	"moderation-service/internal/repository"
	"moderation-service/internal/server"
	"moderation-service/internal/service"
	"moderation-service/internal/sla"
	"moderation-service/internal/sweeper"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err) // Should not happen in development
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	cfgPath := flag.String("config", "configs/config.yml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.MigrateDB(db, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	dispatcher := notifier.NewDispatcher(notifier.DispatcherOptions{
		Workers:     cfg.Notifications.Workers,
		QueueSize:   cfg.Notifications.QueueSize,
		MaxAttempts: cfg.Notifications.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Notifications.RetryDelayMs) * time.Millisecond,
	}, logger, buildSenders(cfg, logger)...)
	dispatcher.Start()
	defer dispatcher.Stop()

	hours := make(map[models.Priority]int, len(cfg.SLA.HoursByPriority))
	for p, h := range cfg.SLA.HoursByPriority {
		hours[models.Priority(p)] = h
	}

	store := service.NewStore(db, logger)
	deps := service.Deps{
		Store:             store,
		Content:           content.NewDefaultRegistry(logger),
		Authorizer:        service.NewTeamAuthorizer(store),
		Notifier:          dispatcher,
		SLA:               sla.NewCalculator(cfg.WarningThreshold(), hours),
		Logger:            logger,
		SkipCooldownPulls: cfg.Assignment.SkipCooldownPulls,
	}
	services := server.Services{
		Queue:      service.NewQueueService(deps),
		Assignment: service.NewAssignmentService(deps, cfg.StatsCacheTTL()),
		Workflow:   service.NewWorkflowService(deps),
		Stats:      service.NewStatsService(deps, cfg.StatsCacheTTL()),
	}

	accessLog := logrus.New()
	accessLog.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Sweeper.Enabled {
		sw := sweeper.NewSweeper(services.Queue, time.Duration(cfg.Sweeper.IntervalSeconds)*time.Second, cfg.Sweeper.BatchSize, logger)
		g.Go(func() error {
			sw.Run(ctx)
			return nil
		})
	}

	srv := server.NewServer(services, []byte(cfg.Auth.JWTSecret), logger, accessLog)
	g.Go(func() error {
		return srv.Run(ctx, cfg.Server.Port, time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application stopped with error", zap.Error(err))
		return
	}
	logger.Info("Application stopped.")
}

func buildSenders(cfg *config.Config, logger *zap.Logger) []notifier.Sender {
	senders := []notifier.Sender{notifier.NewLogSender(logger)}

	if cfg.Notifications.Webhook.Enabled {
		timeout := time.Duration(cfg.Notifications.Webhook.TimeoutSeconds) * time.Second
		senders = append(senders, notifier.NewWebhookSender(cfg.Notifications.Webhook.URL, timeout))
		logger.Info("Webhook notifications enabled", zap.String("url", cfg.Notifications.Webhook.URL))
	}

	if cfg.Notifications.Telegram.Enabled {
		botAPI, err := notifier.NewTelegramBotAPI(cfg.Notifications.Telegram.BotToken, logger)
		if err != nil {
			logger.Warn("Failed to initialize Telegram notifier, continuing without it", zap.Error(err))
		} else {
			senders = append(senders, notifier.NewTelegramSender(botAPI, cfg.Notifications.Telegram.ChatIDs, logger))
		}
	}

	return senders
}
