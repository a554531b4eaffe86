package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-telephony/internal/activity"
	"crm-telephony/internal/auth"
	"crm-telephony/internal/calls"
	"crm-telephony/internal/carrier"
	"crm-telephony/internal/config"
	"crm-telephony/internal/control"
	"crm-telephony/internal/httpapi"
	"crm-telephony/internal/reconcile"
	"crm-telephony/internal/telephony"
	"crm-telephony/pkg/logger"
	"crm-telephony/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	transport, err := carrier.NewHTTPTransport(
		cfg.Carrier.BaseURL,
		cfg.Carrier.AccountID,
		cfg.Carrier.AuthToken,
		&http.Client{Timeout: cfg.Carrier.RequestTimeout},
	)
	if err != nil {
		log.Error("carrier init failed", "err", err)
		os.Exit(1)
	}

	store := calls.NewPostgresStore(db)
	activitySvc := activity.NewService(activity.NewPostgresRepo(db))

	coordinator := reconcile.NewCoordinator(store, activitySvc, reconcile.Config{
		PersistAttempts: cfg.Reconcile.PersistAttempts,
		PersistBackoff:  cfg.Reconcile.PersistBackoff,
	})

	callsSvc := calls.NewService(store, transport, activitySvc, cfg.Carrier.RequestTimeout, cfg.Carrier.StatusCallbackURL)
	gateway := control.NewGateway(store, transport, activitySvc, cfg.Carrier.RequestTimeout)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, deps{
		authManager: authManager,
		webhooks: telephony.WebhookHandlers{
			Coordinator: coordinator,
			Redis:       rdb,
			DedupeTTL:   cfg.Reconcile.DedupeTTL,
		},
		api: httpapi.Handlers{
			Auth:    authManager,
			Calls:   callsSvc,
			Control: gateway,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
