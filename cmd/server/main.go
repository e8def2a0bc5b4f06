package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/pixelmint/pixelmint/internal/config"
	"github.com/pixelmint/pixelmint/internal/generation"
	"github.com/pixelmint/pixelmint/internal/httpapi"
	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/service"
	"github.com/pixelmint/pixelmint/internal/storage"
	"github.com/pixelmint/pixelmint/internal/store"
	"github.com/pixelmint/pixelmint/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	switch cfg.StoreBackend {
	case "redis":
		redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis store: %v", err)
		}
		st = redisStore
	case "mysql":
		mysqlStore, err := store.NewMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("mysql store: %v", err)
		}
		st = mysqlStore
	}
	defer func() {
		if closer, ok := st.(io.Closer); ok {
			closer.Close()
		}
	}()

	var payloads storage.PayloadStore
	switch cfg.PayloadBackend {
	case "s3":
		payloads, err = storage.NewS3(storage.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("s3 payload store: %v", err)
		}
	default:
		payloads = storage.NewKV(st)
	}

	book := ledger.New(st, payloads, logr, ledger.Config{
		AdminEmail:      cfg.AdminEmail,
		AdminPassword:   cfg.AdminPassword,
		StartingCredits: cfg.StartingCredits,
		SeedPlans:       ledger.DefaultSeedPlans(),
	})
	defer book.Close()

	if err := book.Load(ctx); err != nil {
		log.Fatalf("ledger load: %v", err)
	}
	if err := book.Bootstrap(ctx); err != nil {
		log.Fatalf("ledger bootstrap: %v", err)
	}

	genClient := generation.NewClient(cfg, logr)
	genService := service.NewGenerationService(cfg, logr, book, genClient)

	apiServer := httpapi.NewServer(cfg, logr, book, genService)
	if err := apiServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
