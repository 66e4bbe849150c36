package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/partner_events/pkg/cache"
	"github.com/alim08/partner_events/pkg/config"
	"github.com/alim08/partner_events/pkg/feed"
	"github.com/alim08/partner_events/pkg/ingest"
	"github.com/alim08/partner_events/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()
	log := logger.Log

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	log.Info("configuration loaded",
		zap.String("feed_url", cfg.FeedURL),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Int("port", cfg.HTTPPort))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	eventCache, closeCache, err := cache.NewFromConfig(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("failed to initialize cache", zap.Error(err))
	}
	defer closeCache()

	orchestrator := ingest.New(
		feed.NewFetcher(cfg.FeedURL, cfg.FeedTimeout),
		eventCache,
		ingest.WithRunTimeout(cfg.RunTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      newRouter(NewServer(eventCache, orchestrator.Trigger)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// in-flight runs are bounded by the run timeout
	orchestrator.Close()

	log.Info("server exited")
}
