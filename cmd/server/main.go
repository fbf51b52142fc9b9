package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/insight"
	"nexile-backend/internal/logger"
	"nexile-backend/internal/sales"
	"nexile-backend/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger could not be created: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	for _, w := range cfg.Warnings() {
		zl.Warn(w)
	}
	if err := cfg.Validate(); err != nil {
		zl.Fatal("invalid configuration", zap.Error(err))
	}

	if err := database.Init(cfg); err != nil {
		zl.Fatal("database init failed", zap.Error(err))
	}

	// Redis opsiyonel: yoksa insight cache kapalı
	var cache insight.Cache
	rdb, err := database.NewRedis(cfg)
	if err != nil {
		zl.Warn("redis unavailable, insight cache disabled", zap.Error(err))
	} else if rdb != nil {
		defer rdb.Close()
		cache = insight.NewRedisCache(rdb)
	}

	var gen insight.Generator
	if cfg.GeminiAPIKey != "" {
		gen = insight.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	} else {
		zl.Warn("GEMINI_API_KEY is not set, dashboard insight returns the fallback text")
	}

	app, err := server.NewApp(server.Deps{
		Config:   cfg,
		Log:      zl,
		Recorder: sales.NewRecorder(database.DB, cfg.SalesAtomic, zl),
		Insight:  insight.NewService(gen, cache, cfg.InsightTTL, zl),
	})
	if err != nil {
		zl.Fatal("app could not be built", zap.Error(err))
	}

	go func() {
		addr := ":" + cfg.HTTPPort
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.AppEnv))
		if err := app.Listen(addr); err != nil {
			zl.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Error("shutdown failed", zap.Error(err))
	}
}
