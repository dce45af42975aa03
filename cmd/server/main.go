// Package main runs the real-time interview feedback server with WebSocket and graceful shutdown.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/interview-coach/realtime/config"
	"github.com/interview-coach/realtime/internal/augment"
	"github.com/interview-coach/realtime/internal/auth"
	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/middleware"
	"github.com/interview-coach/realtime/internal/models"
	"github.com/interview-coach/realtime/internal/realtime"
	"github.com/interview-coach/realtime/internal/sessionlog"
	"github.com/interview-coach/realtime/internal/summaries"
	"github.com/interview-coach/realtime/pkg/database"
	"github.com/interview-coach/realtime/pkg/logging"
	"github.com/interview-coach/realtime/pkg/queue"
	"github.com/interview-coach/realtime/pkg/redis"
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
	})
	defer logger.Sync()

	ctx := context.Background()

	// Feedback engine
	var opts []feedback.Option
	if cfg.Augment.Enabled {
		aug := augment.New(augment.Config{
			BaseURL:   cfg.Augment.BaseURL,
			APIKey:    cfg.Augment.APIKey,
			Model:     cfg.Augment.Model,
			MaxTokens: cfg.Augment.MaxTokens,
		}, logger)
		opts = append(opts, feedback.WithAugmenter(aug, cfg.Augment.Timeout))
		logger.Info("ai augmentation enabled", zap.String("model", cfg.Augment.Model), zap.Duration("timeout", cfg.Augment.Timeout))
	}
	service := feedback.NewService(cfg.Analysis, logger, opts...)
	dispatcher := feedback.NewDispatcher(service, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	registry := realtime.NewRegistry(logger)
	wsServer := realtime.NewServer(registry, dispatcher, auth.NewJWTAuthenticator(jwtService), logger, realtime.Options{
		SendBuffer:      cfg.Feedback.SendBuffer,
		PingInterval:    cfg.Feedback.PingInterval,
		PongWait:        cfg.Feedback.PongWait,
		WriteWait:       cfg.Feedback.WriteWait,
		MaxMessageBytes: cfg.Feedback.MaxMessageBytes,
		MaxConnections:  cfg.Feedback.MaxConnections,
	})

	// Persistence (optional): connection audit log and stored summaries
	var (
		recorder       sessionlog.Recorder
		sessionLogRepo *sessionlog.Repository
		summaryRepo    *summaries.Repository
	)
	if dsn := cfg.Database.DSN(); dsn != "" {
		pool, err := database.NewPostgresPool(ctx, dsn, 0, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		sessionLogRepo = sessionlog.NewRepository(pool)
		summaryRepo = summaries.NewRepository(pool)
		recorder = sessionLogRepo
	} else {
		logger.Warn("DATABASE_URL not set: connection logs and summaries disabled")
	}

	// Redis (optional): cross-instance fan-out and summary jobs
	var jobs sessionlog.SummaryEnqueuer
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		wsServer.SetPublisher(realtime.NewRedisPubSub(rdb.Client, logger))
		jobs = queue.NewQueue(rdb.Client, logger)
	} else {
		logger.Warn("REDIS_ADDR not set: feedback fan-out and summary jobs disabled")
	}
	sessionlog.NewHooks(recorder, jobs, logger).Attach(registry)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger, "/health", "/metrics", "/ws/health"))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket (token in query or subprotocol; no Authorization header required)
	router.GET("/ws/health", wsServer.Health)
	router.GET("/ws/feedback/:session_id", wsServer.ServeWs)

	admin := router.Group("", middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin))
	admin.GET("/ws/connections", wsServer.Connections)
	if sessionLogRepo != nil {
		admin.GET("/api/v1/sessions/:session_id/connections", sessionlog.NewHandler(sessionLogRepo).GetConnections)
		admin.GET("/api/v1/sessions/:session_id/summaries", summaries.NewHandler(summaryRepo).List)
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// hijacked WebSocket connections manage their own deadlines
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	// hijacked feedback connections are not covered by srv.Shutdown
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("feedback connections shutdown", zap.Error(err))
	}
	logger.Info("server stopped", zap.Int("open_connections", registry.Count()))
}
