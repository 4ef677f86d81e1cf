package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/contract-service/internal/config"
	"github.com/Dan9191/contract-service/internal/handler"
	"github.com/Dan9191/contract-service/internal/lock"
	"github.com/Dan9191/contract-service/internal/middleware"
	"github.com/Dan9191/contract-service/internal/outbox"
	"github.com/Dan9191/contract-service/internal/push"
	"github.com/Dan9191/contract-service/internal/repository"
	"github.com/Dan9191/contract-service/internal/scheduler"
	"github.com/Dan9191/contract-service/internal/service"
	"github.com/Dan9191/contract-service/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	repo := repository.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("Failed to ping redis: %v", err)
	}

	// Notification transports
	catalog, err := email.LoadCatalog(cfg.EmailTemplatesFile)
	if err != nil {
		logger.Fatalf("Failed to load email templates: %v", err)
	}
	sender := email.NewSender(cfg, catalog, logger)
	publisher := push.NewPublisher(rdb, cfg.PushChannel, logger)
	hub := push.NewHub(logger)
	go hub.Subscribe(ctx, rdb, cfg.PushChannel)

	dispatcher := outbox.NewDispatcher(repo, sender, publisher, logger, outbox.Options{
		Interval:    cfg.Outbox.Interval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	go dispatcher.Run(ctx)

	// Scheduler
	var locker lock.Locker = lock.Local{}
	if cfg.Scheduler.Lock == config.LockRedis {
		locker = lock.NewRedis(rdb)
	}
	sched := scheduler.New(repo, locker, logger, scheduler.Options{
		ContractCheckSpec:    cfg.Scheduler.ContractCheckSpec,
		PaymentCheckInterval: cfg.Scheduler.PaymentCheckInterval,
		ContractLeadDays:     cfg.Scheduler.ContractLeadDays,
		PaymentReminderLead:  cfg.Scheduler.PaymentReminderLead,
		LockTTL:              cfg.Scheduler.LockTTL,
	})
	stopScheduler, err := sched.Start(ctx)
	if err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer stopScheduler()

	// Setup router
	svc := service.NewService(repo, logger, cfg)
	h := handler.NewHandler(svc, hub, logger)
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recovery(logger), middleware.RequestLogger(logger))
	h.Routes(r, cfg.JWTSecret)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}
