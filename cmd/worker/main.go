package main

import (
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/ttsgateway/internal/cache"
	"github.com/nikhilbhutani/ttsgateway/internal/config"
	"github.com/nikhilbhutani/ttsgateway/internal/queue"
	"github.com/nikhilbhutani/ttsgateway/internal/queue/workers"
	"github.com/nikhilbhutani/ttsgateway/internal/tts"
	"github.com/nikhilbhutani/ttsgateway/internal/webhook"
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
		slog.Warn("provider credentials incomplete", "error", err)
	}

	rdb := cache.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	store := cache.NewCache(rdb)

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	router := tts.NewRouterFromConfig(cfg.TTS, client)
	if cfg.Cache.Enabled {
		router.WithCache(cache.NewAudioCache(store, cfg.Cache.TTL))
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	// Register workers
	synthWorker := workers.NewSynthesizeWorker(router, cache.NewJobStore(store, cfg.Queue.JobTTL), func(provider string) tts.ProviderConfig {
		return tts.ConfigFor(cfg.TTS, provider)
	})
	synthWorker.WithNotifier(webhook.NewDispatcher(cfg.Webhook.Secret, cfg.Webhook.Timeout, client))
	registry.Register(queue.TypeSynthesize, asynq.HandlerFunc(synthWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency, "providers", cfg.TTS.EnabledProviders)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
