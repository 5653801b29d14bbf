// cmd/coordinator runs the gateway node: the HTTP surface that accepts
// proxied calls, the response poll loop, the registry loops, and the
// orphan-response sweeper.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ikeepcalm/catwalk-sub000/internal/db"
	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
	"github.com/ikeepcalm/catwalk-sub000/internal/gateway"
	"github.com/ikeepcalm/catwalk-sub000/internal/migrate"
	"github.com/ikeepcalm/catwalk-sub000/internal/registry"
	"github.com/ikeepcalm/catwalk-sub000/internal/relay"
	"github.com/ikeepcalm/catwalk-sub000/internal/store"
	"github.com/ikeepcalm/catwalk-sub000/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger.Info("connecting to database", "url", cfg.DatabaseURL)
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, logger); err != nil {
		logger.Error("run migrations failed", "err", err)
		os.Exit(1)
	}

	var rl *relay.Relay
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("parse redis URL failed", "err", err)
			os.Exit(1)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", "err", err)
			os.Exit(1)
		}
		rl = relay.New(rc, logger)
		logger.Info("relay transport enabled", "url", cfg.RedisURL)
	}

	st := store.NewPostgres(pool)

	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = "coordinator"
	}
	self := &domain.Worker{
		ID:          nodeID,
		DisplayName: cfg.Node.DisplayName,
		Kind:        domain.KindCoordinator,
		Host:        cfg.Node.Host,
		Port:        cfg.Node.Port,
	}

	reg := registry.New(st, self, logger, registry.Options{
		HeartbeatInterval: cfg.Registry.HeartbeatInterval,
		RefreshInterval:   cfg.Registry.RefreshInterval,
		LivenessWindow:    cfg.Registry.LivenessWindow,
	})

	gw := gateway.New(st, reg, logger, gateway.Options{
		PollInterval:    cfg.Gateway.PollInterval,
		SweepInterval:   cfg.Gateway.SweepInterval,
		SweepMaxAge:     cfg.Gateway.SweepMaxAge,
		TimeoutSeconds:  cfg.Gateway.TimeoutSeconds,
		DefaultPriority: cfg.Gateway.DefaultPriority,
		Relay:           rl,
	})

	if err := reg.RegisterSelf(ctx); err != nil {
		logger.Error("register coordinator failed", "err", err)
		os.Exit(1)
	}

	go reg.RunHeartbeat(ctx)
	go reg.RunRefresh(ctx)
	go gw.RunResponsePoll(ctx)
	go gw.RunSweep(ctx)
	go gw.RunRelay(ctx)

	srv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      gw.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("coordinator listening", "addr", cfg.HTTP.ListenAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown timeout", "err", err)
	}
	reg.Shutdown(shutdownCtx)
	logger.Info("coordinator stopped")
}
