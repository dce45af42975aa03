// Package main runs the background job worker (session summaries to Postgres and S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/interview-coach/realtime/config"
	"github.com/interview-coach/realtime/internal/summaries"
	"github.com/interview-coach/realtime/internal/worker"
	"github.com/interview-coach/realtime/pkg/database"
	"github.com/interview-coach/realtime/pkg/logging"
	"github.com/interview-coach/realtime/pkg/queue"
	"github.com/interview-coach/realtime/pkg/redis"
	"github.com/interview-coach/realtime/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{}).Fatal("load config", zap.Error(err))
	}
	logger := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}).With(zap.String("component", "worker"))
	defer logger.Sync()

	dsn := cfg.Database.DSN()
	if dsn == "" || cfg.Redis.Addr == "" {
		logger.Fatal("worker requires DATABASE_URL and REDIS_ADDR")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, 0, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var archive worker.Archiver
	if cfg.AWS.SummariesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.SummariesBucket,
			Endpoint:        cfg.AWS.Endpoint,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		archive = s3Client
	} else {
		logger.Warn("AWS_S3_SUMMARIES_BUCKET not set: summaries are not archived")
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewSummaryProcessor(summaries.NewRepository(pool), archive, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}
