package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptopulse/config"
	"cryptopulse/internal/cache"
	"cryptopulse/internal/engine"
	"cryptopulse/internal/retention"
	"cryptopulse/internal/server"
	"cryptopulse/logger"
	"cryptopulse/pkg/marketdata"
	"cryptopulse/pkg/storage/postgres"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search next to the executable)")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("alert engine failed", zap.Error(err))
	}
	log.Info("alert engine stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	env := cfg.Log.Environment

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	client := marketdata.NewClient(marketdata.Options{
		BaseURL:           cfg.Upstream.BaseURL,
		PricePath:         cfg.Upstream.PricePath,
		SocialPath:        cfg.Upstream.SocialPath,
		APIKey:            cfg.Upstream.APIKey(env),
		Timeout:           cfg.Upstream.Timeout,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
	})

	tiered := cache.NewTiered(store, client, cache.Options{
		Version:   cfg.Cache.Version,
		PriceTTL:  cfg.Cache.PriceTTL,
		SocialTTL: cfg.Cache.SocialTTL,
		Retention: cfg.Cache.Retention,
		Social:    cfg.Cache.SocialEnabled,
		Logger:    log.Named("cache"),
	})

	opts := []engine.Option{engine.WithLogger(log.Named("engine"))}

	var db *postgres.PostgresClient
	if cfg.Postgres.Enabled {
		db, err = postgres.InitializeAndMigrate(cfg.Postgres, env, env != "prod")
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, engine.WithTriggerSink(db))

		retention.NewMidnightPruner(db.DeleteTriggersBefore, cfg.Postgres.HistoryRetention, log.Named("retention")).Start(ctx)
		log.Info("trigger history enabled", zap.Duration("retention", cfg.Postgres.HistoryRetention))
	}

	eng, err := engine.New(engine.Config{
		Symbols:         cfg.Engine.Symbols,
		TickInterval:    cfg.Engine.TickInterval,
		FetchTimeout:    cfg.Engine.FetchTimeout,
		HistoryCapacity: cfg.Engine.HistoryCapacity,
		DefaultAlerts:   cfg.Engine.DefaultAlerts,
	}, tiered, opts...)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, eng, log.Named("http"))
	if db != nil {
		srv.AddHealthCheck("postgres", db.IsHealthy)
		srv.SetTriggerHistory(db)
	}
	if rs, ok := store.(*cache.RedisStore); ok {
		srv.AddHealthCheck("redis", rs.IsHealthy)
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	log.Info("alert engine started",
		zap.Strings("symbols", cfg.Engine.Symbols),
		zap.Duration("tick", cfg.Engine.TickInterval),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("env", env))

	srvErr := srv.Run(ctx)

	select {
	case err := <-engineDone:
		if srvErr == nil {
			srvErr = err
		}
	case <-time.After(cfg.Server.ShutdownGrace):
		log.Warn("engine did not stop in time")
	}
	return srvErr
}

// openStore picks the cache backend. A redis that cannot be reached falls back to memory.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Store, func(), error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryStore(), func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rs, err := cache.DialRedis(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn("redis unavailable, using in-memory cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return cache.NewMemoryStore(), func() {}, nil
	}
	log.Info("redis cache connected", zap.String("addr", cfg.Redis.Addr))
	return rs, func() { _ = rs.Close() }, nil
}
