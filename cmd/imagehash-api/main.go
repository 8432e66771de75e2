package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/busquepet/imagehash/internal/cache"
	"github.com/busquepet/imagehash/internal/preprocess"
	"github.com/busquepet/imagehash/internal/queue"
	"github.com/busquepet/imagehash/internal/ws"
	"github.com/busquepet/imagehash/pkg/config"
	"github.com/busquepet/imagehash/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync() //nolint:errcheck

	engines, err := cfg.Engines(log)
	if err != nil {
		log.Fatal("init hash engines", zap.Error(err))
	}

	preproc, err := preprocess.NewService(log, cfg.StorageDir, cfg.MaxImageMB, cfg.AutoOrient)
	if err != nil {
		log.Fatal("init preprocess service", zap.Error(err))
	}

	redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer redisCache.Close()

	natsQueue, err := queue.NewNATSQueue(cfg.NATSURL, log)
	if err != nil {
		log.Fatal("connect nats", zap.Error(err))
	}
	defer natsQueue.Close()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	worker := NewIngestWorker(engines, natsQueue, redisCache, hub, log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", zap.Error(err))
			stop()
		}
	}()

	server := NewServer(cfg, log, preproc, engines, redisCache, natsQueue, hub)
	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server exited with error", zap.Error(err))
	}
}
