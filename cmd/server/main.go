package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/true85/radio/internal/checkpoint"
	"github.com/true85/radio/internal/platform/config"
	"github.com/true85/radio/internal/platform/logger"
	"github.com/true85/radio/internal/platform/metrics"
	"github.com/true85/radio/internal/storage"
	"github.com/true85/radio/internal/timeshift"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	segments, err := storage.NewS3SegmentStore(ctx, storage.Config{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Bucket:          cfg.SegmentBucket,
	}, log)
	if err != nil {
		log.Error("segment store init failed", "error", err)
		os.Exit(1)
	}

	ckpt, err := checkpoint.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Error("checkpoint store init failed", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	manager := timeshift.NewManager(ctx, segments, ckpt, &http.Client{Timeout: 30 * time.Second}, log, met)
	h := timeshift.NewHandler(manager, segments, cfg.PublicBaseURL, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveStations(manager.ActiveCount()) }).ServeHTTP(w, req)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"bucket", cfg.SegmentBucket,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	manager.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
