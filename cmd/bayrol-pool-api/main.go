package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/alarm"
	"github.com/davifernan/bayrol-pool-api/internal/auth"
	"github.com/davifernan/bayrol-pool-api/internal/cloud"
	"github.com/davifernan/bayrol-pool-api/internal/config"
	"github.com/davifernan/bayrol-pool-api/internal/database"
	"github.com/davifernan/bayrol-pool-api/internal/fanout"
	"github.com/davifernan/bayrol-pool-api/internal/history"
	"github.com/davifernan/bayrol-pool-api/internal/httpapi"
	"github.com/davifernan/bayrol-pool-api/internal/link"
	"github.com/davifernan/bayrol-pool-api/internal/logger"
	"github.com/davifernan/bayrol-pool-api/internal/notify"
	"github.com/davifernan/bayrol-pool-api/internal/redisdb"
	"github.com/davifernan/bayrol-pool-api/internal/registry"
	"github.com/davifernan/bayrol-pool-api/internal/repository"
	"github.com/davifernan/bayrol-pool-api/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration (.env is optional, real env wins)
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logging
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "bayrol-pool-api")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. Connect to PostgreSQL
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 4. Connect to Redis
	redisClient := redisdb.NewClient(&cfg.Redis)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisdb.Ping(pingCtx, redisClient); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// 5. Repositories
	deviceRepo := repository.NewDeviceRepository(db, log)
	alarmRepo := repository.NewAlarmRepository(db, log)
	historyRepo := repository.NewAlarmHistoryRepository(db, log)
	readingRepo := repository.NewReadingRepository(db, log)
	apiKeyRepo := repository.NewAPIKeyRepository(db, log)

	// 6. Core components
	ruleCache := alarm.NewRuleCache(alarmRepo, redisClient, cfg.Alarm.RuleCacheTTL, log)
	engine := alarm.NewEngine(ruleCache, log)
	dispatcher := notify.NewDispatcher(notify.Options{
		GlobalWebhookURL: cfg.Notify.GlobalWebhookURL,
		EmailWebhookURL:  cfg.Notify.EmailWebhookURL,
		Timeout:          cfg.Notify.Timeout,
	}, log)
	fan := fanout.New(log)
	// The history writer persists batches and advances rule last_triggered,
	// which live in two repositories.
	historyStore := struct {
		*repository.AlarmHistoryRepository
		*repository.AlarmRepository
	}{historyRepo, alarmRepo}
	historyWriter := history.NewWriter(redisClient, historyStore, cfg.History.QueueKey, log)

	linkOpts := link.Options{
		Host: cfg.Bayrol.MQTTHost,
		Port: cfg.Bayrol.MQTTPort,
	}
	newLink := func(serial, accessToken string, sensorIDs []string, handler registry.LinkHandler) registry.Link {
		return link.New(serial, accessToken, sensorIDs, handler, linkOpts, log)
	}
	reg := registry.New(engine, dispatcher, fan, historyWriter, readingRepo, redisClient, newLink, log)

	// 7. Services
	cloudClient := cloud.NewClient(cfg.Bayrol.APIURL, cfg.Notify.Timeout, log)
	deviceService := service.NewDeviceService(cloudClient, deviceRepo, reg, log)
	authService := auth.NewService(apiKeyRepo, cfg.Auth.MasterAPIKey, log)

	// 8. Restore sessions for devices linked before the last restart
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := deviceService.RestoreActive(startupCtx); err != nil {
		log.Fatal("Failed to restore device sessions", zap.Error(err))
	}
	cancelStartup()

	// 9. Background history flusher
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := history.NewScheduler(historyWriter, history.SchedulerOptions{
		BatchSize:    cfg.History.BatchSize,
		Interval:     cfg.History.FlushInterval,
		FastInterval: cfg.History.FastInterval,
		HighWater:    cfg.History.HighWater,
	}, log)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	// 10. HTTP server
	router := httpapi.NewRouter(authService, log)
	router.Register(
		httpapi.NewDeviceHandler(deviceService, reg, readingRepo, log),
		httpapi.NewAlarmHandler(alarmRepo, historyRepo, ruleCache, dispatcher, log),
		httpapi.NewAPIKeyHandler(authService, log),
		httpapi.NewWSHandler(reg, fan, log),
	)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// 11. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server error", zap.Error(err))
	}

	// 12. Graceful shutdown: HTTP first, then device sessions, then the
	// history flusher drains the queue.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	reg.StopAll()
	cancel()
	<-schedulerDone

	log.Info("Bayrol pool API stopped")
}
