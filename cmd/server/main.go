package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/adapters/primary/http/handlers"
	"churn-model-service/internal/adapters/primary/http/middleware"
	"churn-model-service/internal/auth"
	"churn-model-service/internal/bootstrap"
	"churn-model-service/internal/config"
	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/services"
	"churn-model-service/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	closer := logger.Init(cfg.Logger)
	defer closer.Close()

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	// Secondary Adapters
	registry, err := bootstrap.Registry(cfg)
	if err != nil {
		log.Fatalf("open registry: %v", err)
	}
	signer, err := bootstrap.AdminSigner(cfg)
	if err != nil {
		log.Fatalf("admin signer: %v", err)
	}
	if signer == nil {
		log.Warn("ADMIN_JWT_SECRET is empty; /admin/reload will refuse every request")
	}

	// Core Services
	inferenceSvc, err := services.NewInferenceService(registry, services.InferenceConfig{
		Threshold: cfg.Inference.Threshold,
		CacheSize: cfg.Inference.CacheSize,
	}, bootstrap.Examples(cfg))
	if err != nil {
		log.Fatalf("create inference service: %v", err)
	}

	metrics := middleware.NewMetrics()
	if err := inferenceSvc.Load(context.Background()); err != nil && !errors.Is(err, domain.ErrCurrentNotFound) {
		log.Errorf("initial model load failed (serving without a model): %v", err)
		metrics.ObserveReload("", "", err)
	} else if cur := inferenceSvc.Current(); cur != nil {
		metrics.ObserveReload(cur.Manifest.Entry, string(cur.Manifest.Kind), nil)
	}

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(inferenceSvc, metrics)

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), metrics.Middleware(), gin.Recovery())

	h.RegisterRoutes(&router.RouterGroup, middleware.AdminAuth(signer, auth.SubjectReload))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Start server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced shutdown: %v", err)
	}

	log.Info("server stopped")
}
