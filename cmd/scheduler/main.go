// Command scheduler runs the LookOut monitoring engine: the Registry,
// Health Monitor, Prober, Worker Pool, Scheduling Loop, and Notification
// Coordinator, behind a small HTTP status surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lookout/monitor/internal/cache"
	"github.com/lookout/monitor/internal/config"
	"github.com/lookout/monitor/internal/email"
	"github.com/lookout/monitor/internal/logging"
	"github.com/lookout/monitor/internal/manager"
	"github.com/lookout/monitor/internal/persistence"
	"github.com/lookout/monitor/internal/persistence/postgres"

	"github.com/lookout/monitor/internal/api"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	log := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	var persist persistence.Persistence = store
	cachingStore, err := cache.New(ctx, cfg.RedisURL, time.Duration(cfg.CacheTTL)*time.Second, store)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without read-through cache")
	} else {
		persist = cachingStore
		defer cachingStore.Close()
	}

	emailProvider := email.New(email.Config{
		APIURL:      cfg.EmailAPIURL,
		APIKey:      cfg.EmailAPIKey,
		SenderEmail: cfg.EmailSender,
		SenderName:  cfg.EmailFromName,
		TestMode:    cfg.EmailTestMode,
	})

	mgr := manager.New(cfg, persist, emailProvider)

	if cfg.SchedulerEnabled {
		if err := mgr.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start scheduler manager")
		}
	} else {
		log.Warn().Msg("scheduler disabled via config, status API only")
	}

	statusServer := api.NewServer(mgr)
	httpServer := &http.Server{
		Addr:    cfg.StatusAddr,
		Handler: statusServer.Handler(),
	}

	go func() {
		log.Info().Str("addr", cfg.StatusAddr).Msg("status server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status server shutdown error")
	}

	mgr.Stop()
	log.Info().Msg("scheduler exited cleanly")
}
