package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/internal/app"
	"github.com/nexuscrm/tablestore/internal/config"
	"github.com/nexuscrm/tablestore/internal/interfaces/middleware"
	"github.com/nexuscrm/tablestore/internal/interfaces/rest"
	"github.com/nexuscrm/tablestore/pkg/auth"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.Init(cfg.LogLevel, cfg.Environment)
	defer func() { _ = log.Sync() }()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("❌ Failed to start", zap.Error(err))
	}
	defer application.Close()
	log.Info("🔧 Service manager initialized",
		zap.String("storage", cfg.StorageDriver),
		zap.String("cache", cfg.CacheDriver))

	if err := application.Services.Maintenance.Start(); err != nil {
		log.Fatal("❌ Failed to start maintenance jobs", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(log), middleware.Metrics())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tokens := auth.NewTokenService(cfg.JWTSecret, 0)
	api := router.Group("/api")
	api.Use(middleware.RequireAuth(tokens), middleware.RateLimit(application.Limiter, cfg.RateLimitPerMinute, nil))
	rest.NewHandler(rest.FromManager(application.Services)).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := application.Services.Maintenance.Stop(shutdownCtx); err != nil {
		log.Error("Maintenance shutdown failed", zap.Error(err))
	}
}
