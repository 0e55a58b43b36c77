package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpesasend/config"
	"mpesasend/internal/cache"
	"mpesasend/internal/database"
	"mpesasend/internal/router"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(env string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zapcore.InfoLevel
	if env != "production" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		level,
	)
	return zap.New(core).Sugar()
}

func main() {
	// optional in production where env comes from the orchestrator
	_ = godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg.Server.Env)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatalw("invalid configuration", "error", err)
	}

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logger.Fatalw("database connect failed", "error", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatalw("database migrate failed", "error", err)
	}

	statuses := cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := statuses.Ping(pingCtx); err != nil {
		logger.Warnw("redis unreachable, status caching degraded", "error", err)
	}
	cancelPing()

	engine := router.Setup(cfg, db, statuses, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infow("server listening", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalw("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
