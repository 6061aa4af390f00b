// Package main runs the background recording worker and the temp directory sweeper.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/app"
	"github.com/aura-webinar/meeting-pipeline/internal/cleanup"
	"github.com/aura-webinar/meeting-pipeline/internal/metrics"
	"github.com/aura-webinar/meeting-pipeline/internal/worker"
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
	if err := a.FFmpeg.ValidateBinaries(); err != nil {
		// Recordings still upload; transcription fails per job until ffmpeg is installed.
		logger.Warn("ffmpeg unavailable", zap.Error(err))
	}

	workDir := cfg.Pipeline.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	processor := worker.NewProcessor(queue.NewQueue(rdb.Client, logger), a.Pipeline, cfg.Pipeline.DequeueWait, logger)
	sweeper := cleanup.NewSweeper(workDir, cfg.Pipeline.Retention, cfg.Pipeline.SweepInterval, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: router}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(workerCtx)
	g.Go(func() error {
		processor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener", zap.Error(err))
		}
	}()
	logger.Info("worker started", zap.String("work_dir", workDir), zap.String("metrics_port", cfg.Server.MetricsPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// The in-flight job sees the cancelled context; its stage fails and the queue retries it.
	cancel()
	_ = g.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
