package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venuelive/internal/app/registry"
	"venuelive/internal/app/server"
	"venuelive/internal/app/worker"
	"venuelive/internal/config"
	"venuelive/internal/core/services"
	"venuelive/internal/platform/logger"
	"venuelive/internal/platform/telemetry"
	"venuelive/internal/plugins/postgres"
	redisPlugin "venuelive/internal/plugins/redis"

	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "err", err)
		return
	}
	log.Info("postgres connected")
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL, "err", err)
		return
	}
	log.Info("redis connected")

	// Adapters
	profileRepo := postgres.NewProfileRepo(pdb)
	convRepo := postgres.NewConversationRepo(pdb)
	groupRepo := postgres.NewGroupRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	txManager := postgres.NewTxManager(pdb)
	presenceMirror := redisPlugin.NewRedisPresenceMirror(rdb)
	broadcastQueue := redisPlugin.NewRedisBroadcastQueue(rdb, log)

	// Core services
	hub := registry.NewRegistry(log)
	membership := services.NewMembership(convRepo, groupRepo)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	presenceSvc := services.NewPresenceService(log, profileRepo, hub, presenceMirror, cfg.Gateway.PresenceTTL)
	subSvc := services.NewSubscriptionService(log, hub, membership)
	chatListSvc := services.NewChatListService(log, convRepo, groupRepo, cfg.Gateway.ChatListPageSize)
	chatSvc := services.NewChatService(log, convRepo, groupRepo, profileRepo, txManager)
	messageSvc := services.NewMessageService(log, msgRepo, groupRepo, membership, broadcastQueue, txManager)
	dispatcher := services.NewDispatcher(log, hub)

	wrkr := worker.NewChannelWorker(log, broadcastQueue, dispatcher, cfg.Worker.MessageGroup)
	hub.RunWorker(wrkr.Run)

	srv := server.NewServer(log, *cfg.Service, *cfg.Gateway, tokenSvc, chatSvc, messageSvc, presenceSvc, subSvc, chatListSvc, hub)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "err", err)
	}
}
