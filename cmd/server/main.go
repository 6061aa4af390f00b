// Package main runs the webhook ingress and operator API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/app"
	"github.com/aura-webinar/meeting-pipeline/internal/auth"
	"github.com/aura-webinar/meeting-pipeline/internal/events"
	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/middleware"
	"github.com/aura-webinar/meeting-pipeline/internal/notes"
	"github.com/aura-webinar/meeting-pipeline/internal/recordings"
	"github.com/aura-webinar/meeting-pipeline/pkg/database"
	"github.com/aura-webinar/meeting-pipeline/pkg/queue"
	"github.com/aura-webinar/meeting-pipeline/pkg/redis"
	"github.com/aura-webinar/meeting-pipeline/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := metrics.Register(); err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	a := app.New(ctx, cfg, pool, rdb.Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	hub := events.NewHub(a.Events, logger)

	var defaultTenant uuid.UUID
	if cfg.Defaults.TenantID != "" {
		defaultTenant, err = uuid.Parse(cfg.Defaults.TenantID)
		if err != nil {
			logger.Fatal("DEFAULT_TENANT_ID", zap.Error(err))
		}
	}

	zoomWebhook := recordings.NewWebhookHandler(a.Tenants, a.Recordings, jobQueue, a.Credentials, recordings.WebhookConfig{
		DefaultTenantID: defaultTenant,
		ReplayWindow:    cfg.Zoom.ReplayWindow,
		PreferredType:   cfg.Zoom.PreferredType,
	}, logger)
	matcher := notes.NewMatcher(a.Recordings, a.Pipeline, cfg.Pipeline.NotesTolerance, logger)
	notesWebhook := recordings.NewNotesWebhookHandler(a.Tenants, a.Credentials, matcher, logger)

	var presigner recordings.Presigner
	if a.Archive != nil {
		presigner = a.Archive
	}
	recordingHandler := recordings.NewHandler(a.Recordings, jobQueue, presigner, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhooks authenticate by signature, not JWT.
	router.POST("/webhook/zoom", zoomWebhook.Zoom)
	router.POST("/webhook/zoom/:tenantId", zoomWebhook.Zoom)
	router.POST("/webhook/notes/:tenantId", notesWebhook.Notes)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/api/recordings/events", events.ServeWs(hub, jwtService.TenantOf, logger))

	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/queue/status", recordingHandler.QueueStatus)
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/:id", recordingHandler.Get)
		api.GET("/recordings/:id/transcript", recordingHandler.Transcript)
		api.GET("/recordings/:id/archive", recordingHandler.Archive)
		api.POST("/recordings/:id/reprocess", middleware.RequireRole(auth.RoleAdmin), recordingHandler.Reprocess)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
