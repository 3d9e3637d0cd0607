package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medlink/doctor-referrals/internal/api"
	"github.com/medlink/doctor-referrals/internal/config"
	"github.com/medlink/doctor-referrals/internal/db"
	"github.com/medlink/doctor-referrals/internal/referral"
	redisclient "github.com/medlink/doctor-referrals/internal/redis"
)

const version = "0.3.0"

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	log.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store_driver", cfg.StoreDriver).
		Msg("configured")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routerCfg := api.RouterConfig{
		JWTSecret: []byte(cfg.JWTSecret),
		Env:       cfg.Env,
		Version:   version,
		Logger:    log,
	}

	var repo referral.Repository

	switch cfg.StoreDriver {
	case config.StoreMemory:
		// Single-process dev mode: no Postgres, no Redis coordination.
		repo = referral.NewMemoryRepository()
		routerCfg.Service = referral.NewService(repo, redisclient.NopLocker(), redisclient.NopBadgeCache(), log)
		log.Warn().Msg("running on in-memory store, data will not survive restarts")

	default:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		log.Info().Msg("connected to Postgres")

		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")

		repo = referral.NewPgRepository(pgPool)
		locker := redisclient.NewRedisReferralLocker(rdb, cfg.LockTTL)
		badges := redisclient.NewRedisBadgeCache(rdb, cfg.BadgeTTL)
		routerCfg.Service = referral.NewService(repo, locker, badges, log)
		routerCfg.PgPool = pgPool
		routerCfg.Redis = rdb
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("api-server stopped")
}
