package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/postline/postline/pkg/config"
	"github.com/postline/postline/pkg/eventbus"
	"github.com/postline/postline/pkg/gateway"
	"github.com/postline/postline/pkg/publisher"
	"github.com/postline/postline/pkg/scheduler"
	"github.com/postline/postline/pkg/store/postgres"
	redisclient "github.com/postline/postline/pkg/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redis, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()

	notifier := eventbus.NewPostNotifier(eventbus.NewBus(redis.Client()), logger)

	gw, err := gateway.NewTelegram(cfg.Telegram, logger)
	if err != nil {
		logger.Fatal("failed to initialize telegram gateway", zap.Error(err))
	}

	pub := publisher.New(db.DB(), gw, cfg.Publish, notifier, logger)
	svc := scheduler.New(db.DB(), pub, cfg.Scheduler, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("scheduler shutting down")
}
