package main

import (
	"log"
	"time"

	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/logger"
	"nexile-backend/internal/seed"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger could not be created: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := database.Init(cfg); err != nil {
		zl.Fatal("database init failed", zap.Error(err))
	}

	fixture, err := seed.Default()
	if err != nil {
		zl.Fatal("fixture could not be loaded", zap.Error(err))
	}

	res, err := seed.Apply(database.DB, fixture, time.Now())
	if err != nil {
		zl.Fatal("seed failed", zap.Error(err))
	}
	if res.Skipped {
		zl.Info("database already has users, nothing seeded")
		return
	}
	zl.Info("demo data ready; log in as owner@nexile.com / password")
}
