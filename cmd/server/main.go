package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/runah1996/api.runah.pt/internal/api"
	"github.com/runah1996/api.runah.pt/internal/cache"
	"github.com/runah1996/api.runah.pt/internal/config"
	"github.com/runah1996/api.runah.pt/internal/giveaway"
	"github.com/runah1996/api.runah.pt/internal/hub"
	"github.com/runah1996/api.runah.pt/internal/metrics"
	"github.com/runah1996/api.runah.pt/internal/notify"
	"github.com/runah1996/api.runah.pt/internal/persist"
	"github.com/runah1996/api.runah.pt/internal/source"
	"github.com/runah1996/api.runah.pt/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Local overrides for secrets (update API key, webhook URLs).
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log)

	log.Info().
		Str("config", *configPath).
		Int("http_port", cfg.Server.HTTPPort).
		Str("cache_key", cfg.Cache.Key).
		Dur("cache_duration", cfg.Cache.Duration).
		Str("overflow_policy", cfg.Stream.OverflowPolicy).
		Msg("giveaway service starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	meter := metrics.New(reg)

	key := cache.Key(cfg.Cache.Key)

	// Snapshot store, optionally backed by sqlite for restart survivability.
	var storeOpts []cache.StoreOption
	if cfg.Cache.PersistPath != "" {
		backend, err := persist.Open(cfg.Cache.PersistPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Cache.PersistPath).Msg("failed to open snapshot persistence")
		}
		defer backend.Close()
		storeOpts = append(storeOpts, cache.WithPersistence(backend))
	}
	store := cache.NewStore(storeOpts...)
	if err := store.Restore(ctx, key); err != nil {
		log.Warn().Err(err).Msg("failed to restore persisted snapshot, starting cold")
	}

	// Fan-out hub for WebSocket subscribers and webhook delivery.
	h := hub.New(cfg.Stream.QueueCapacity, hub.Policy(cfg.Stream.OverflowPolicy), meter)
	defer h.Close()

	fetcher := source.NewFileFetcher(cfg.Source.ConfigPath, cfg.Source.BaseURL)
	refresher := cache.NewRefresher(store, fetcher, cfg.Cache.Duration, cfg.Cache.FetchTimeout,
		cache.WithPublisher(h),
		cache.WithMetrics(meter),
	)
	svc := giveaway.NewService(key, refresher, cfg.Cache.Duration,
		giveaway.WithUpdateRate(cfg.Updates.RatePerMinute),
	)

	// Warm the cache once at startup; a cold upstream is not fatal.
	if err := svc.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("startup warm-up failed, first request will retry")
	}

	// Background warm-keeper: refills the cache soon after expiry even with
	// no traffic, broadcasting only when the payload changed.
	if cfg.Cache.RefreshSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Cache.RefreshSchedule, func() {
			if err := svc.Warm(context.Background()); err != nil {
				log.Warn().Err(err).Msg("scheduled refresh failed")
			}
		}); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Cache.RefreshSchedule).Msg("invalid refresh schedule")
		}
		c.Start()
		defer c.Stop()
		log.Info().Str("schedule", cfg.Cache.RefreshSchedule).Msg("background refresh scheduled")
	}

	// File watch: an edit to the giveaway config forces a refresh+broadcast.
	if cfg.Source.Watch {
		go func() {
			if err := source.Watch(ctx, cfg.Source.ConfigPath, func() {
				if _, err := svc.NotifyChange(context.Background()); err != nil {
					log.Warn().Err(err).Msg("watch-triggered refresh failed")
				}
			}); err != nil {
				log.Error().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	// Outbound webhooks ride the same hub as WebSocket clients.
	targets := webhookTargets(cfg)
	if len(targets) > 0 {
		notifier := notify.New(targets)
		go notifier.Run(ctx, h)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(svc, h, api.AuthConfig{
		Mode:   cfg.Updates.AuthMode,
		Header: cfg.Updates.EffectiveHeader(),
		Key:    cfg.Updates.Key(),
	}))
	mux.Handle("/ws/giveaway", ws.New(h, svc))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: mux,
	}
	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("giveaway service shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
}

// setupLogging applies the configured level and output format to the global
// zerolog logger.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// webhookTargets resolves configured webhook URLs from the environment,
// skipping any target whose variable is unset.
func webhookTargets(cfg *config.Config) []notify.Target {
	var targets []notify.Target
	for _, wh := range cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			log.Warn().Str("type", wh.Type).Str("url_env", wh.URLEnv).Msg("webhook URL not set, skipping target")
			continue
		}
		targets = append(targets, notify.Target{Type: wh.Type, URL: url})
	}
	return targets
}
