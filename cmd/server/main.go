package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"poultrypro/backend/internal/api"
	"poultrypro/backend/internal/config"
	"poultrypro/backend/internal/database"
	"poultrypro/backend/internal/scheduler"
	"poultrypro/backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.Must(logger.New())
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect database failed", zap.Error(err))
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer migrateCancel()
	if err := database.EnsureSchema(migrateCtx, pool, cfg.SchemaPath); err != nil {
		log.Fatal("apply schema failed", zap.Error(err))
	}

	location, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		log.Warn("load timezone failed, using UTC", zap.String("timezone", cfg.AppTimezone), zap.Error(err))
		location = time.UTC
	}

	jobs := scheduler.New(pool, log, location)
	if err := jobs.Start(cfg.VaccineStatusCron); err != nil {
		log.Fatal("start scheduler failed", zap.Error(err))
	}
	defer jobs.Stop()

	srv := api.NewServer(pool, cfg, log)
	log.Info("poultrypro backend running", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, srv.Mux()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
