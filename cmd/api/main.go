// Package main はAPIサーバーとジョブワーカーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/auth"
	"github.com/yourusername/text-forge/internal/config"
	"github.com/yourusername/text-forge/internal/logging"
	"github.com/yourusername/text-forge/internal/storage"
	"github.com/yourusername/text-forge/internal/transform"
)

const (
	serviceName    = "textforge-api"
	serviceVersion = "0.1.0"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logging.InitLog(zap.NewAtomicLevelAt(zap.ErrorLevel)).Fatal("failed to load config", zap.Error(err))
	}

	logger := logging.InitLog(logging.ParseLevel(cfg.LogLevel))
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.GinMode)

	sources, err := storage.NewLocal(cfg.SourcesDir, cfg.MaxSourceBytes)
	if err != nil {
		logger.Fatal("failed to prepare source storage", zap.Error(err))
	}

	engine := transform.NewService(transform.NewOllamaClient(cfg.OllamaHost), cfg.OllamaModel, logger)
	manager, err := setupJobs(cfg, engine, sources, logger)
	if err != nil {
		logger.Fatal("failed to set up job queue", zap.Error(err))
	}
	manager.StartWorkers()

	authManager := auth.NewManager(cfg.APIKeyHash, nil, logger)
	if !authManager.Enabled() {
		logger.Warn("API_KEY_HASH is not set, API key authentication is disabled")
	}

	router := newRouter(routerDeps{
		cfg:     cfg,
		auth:    authManager,
		jobs:    manager,
		sources: sources,
		logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("job manager shutdown failed", zap.Error(err))
	}
}

type routerDeps struct {
	cfg     *config.Config
	auth    *auth.Manager
	jobs    jobService
	sources storage.Storage
	logger  *zap.Logger
}

func newRouter(deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(deps.logger, "http"))

	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(deps.cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, deps)
	return router
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

func setupRoutes(router *gin.Engine, deps routerDeps) {
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	api.GET("/health", handleHealth)

	protected := api.Group("")
	protected.Use(deps.auth.RequireAPIKey())
	{
		protected.POST("/sources", createSourceHandler(deps.sources))
		protected.POST("/jobs", createJobHandler(deps.jobs, deps.sources))
		protected.GET("/jobs", listJobsHandler(deps.jobs))
		protected.GET("/jobs/:id", jobStatusHandler(deps.jobs))
		protected.GET("/jobs/:id/results", jobResultsHandler(deps.jobs))
	}
}
