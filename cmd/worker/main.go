// cmd/worker runs a processing node: registers itself and its addons,
// heartbeats, and polls the request mailbox for work addressed to it.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ikeepcalm/catwalk-sub000/internal/db"
	"github.com/ikeepcalm/catwalk-sub000/internal/domain"
	"github.com/ikeepcalm/catwalk-sub000/internal/migrate"
	"github.com/ikeepcalm/catwalk-sub000/internal/registry"
	"github.com/ikeepcalm/catwalk-sub000/internal/relay"
	"github.com/ikeepcalm/catwalk-sub000/internal/store"
	"github.com/ikeepcalm/catwalk-sub000/internal/worker"
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

	nodeID := cfg.Node.ID
	if nodeID == "" {
		hostname, _ := os.Hostname()
		nodeID = hostname
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

	self := &domain.Worker{
		ID:          nodeID,
		DisplayName: cfg.Node.DisplayName,
		Kind:        domain.KindWorker,
		Host:        cfg.Node.Host,
		Port:        cfg.Node.Port,
	}

	reg := registry.New(st, self, logger, registry.Options{
		HeartbeatInterval: cfg.Registry.HeartbeatInterval,
		RefreshInterval:   cfg.Registry.RefreshInterval,
		LivenessWindow:    cfg.Registry.LivenessWindow,
	})

	if err := reg.RegisterSelf(ctx); err != nil {
		logger.Error("register worker failed", "err", err)
		os.Exit(1)
	}

	// Announce the addons this node serves so the coordinator can build
	// routes for them.
	for _, ac := range cfg.Worker.Addons {
		addon := &domain.Addon{
			WorkerID: nodeID,
			Name:     ac.Name,
			Version:  ac.Version,
			Enabled:  ac.Enabled,
		}
		for _, ep := range ac.Endpoints {
			addon.Endpoints = append(addon.Endpoints, domain.EndpointDef{
				Path:    ep.Path,
				Methods: ep.Methods,
				Summary: ep.Summary,
			})
		}
		if err := reg.RegisterAddon(ctx, addon); err != nil {
			logger.Error("register addon failed", "addon", ac.Name, "err", err)
			os.Exit(1)
		}
	}

	proc := worker.New(st, nodeID, cfg.Worker.LocalURL, logger, worker.Options{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		Relay:        rl,
	})

	go reg.RunHeartbeat(ctx)
	go reg.RunRefresh(ctx)
	go proc.RunRelay(ctx)
	go proc.Start(ctx)

	logger.Info("worker ready", "worker_id", nodeID, "local_url", cfg.Worker.LocalURL)

	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := proc.DrainAndWait(drainCtx); err != nil {
		logger.Warn("shutdown drain timeout", "err", err)
	}
	reg.Shutdown(drainCtx)
	logger.Info("shutdown complete")
}
