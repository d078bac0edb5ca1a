package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/ttsgateway/internal/api"
	"github.com/nikhilbhutani/ttsgateway/internal/cache"
	"github.com/nikhilbhutani/ttsgateway/internal/config"
	"github.com/nikhilbhutani/ttsgateway/internal/queue"
	"github.com/nikhilbhutani/ttsgateway/internal/tts"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		// Requests to those providers answer MissingCredentials.
		slog.Warn("provider credentials incomplete", "error", err)
	}

	ctx := context.Background()

	// Redis connection (optional)
	rdb := cache.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	store := cache.NewCache(rdb)
	redisUp := true
	if err := store.Ping(ctx); err != nil {
		slog.Warn("redis unavailable, running without cache and jobs", "error", err)
		redisUp = false
	}

	router := tts.NewRouterFromConfig(cfg.TTS, upstreamClient())
	deps := api.Deps{TTS: router, Redis: store}
	if redisUp {
		if cfg.Cache.Enabled {
			router.WithCache(cache.NewAudioCache(store, cfg.Cache.TTL))
		}
		queueClient := queue.NewClient(cfg.Redis)
		defer queueClient.Close()
		deps.Jobs = cache.NewJobStore(store, cfg.Queue.JobTTL)
		deps.Queue = queueClient
	}

	apiRouter := api.NewRouter(cfg, deps)
	defer apiRouter.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiRouter.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // covers a full proxy ladder plus fallback
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "providers", cfg.TTS.EnabledProviders)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// upstreamClient is shared by every provider call. Timeouts are per attempt,
// set through contexts, so the client itself has none.
func upstreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
