package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medlink/doctor-referrals/internal/config"
	"github.com/medlink/doctor-referrals/internal/db"
	"github.com/medlink/doctor-referrals/internal/referral"
	redisclient "github.com/medlink/doctor-referrals/internal/redis"
)

// notify-worker periodically sweeps for referrals that have sat in PENDING
// without the referred-to doctor looking at them and records reminder
// events, so badge counts and downstream notifications stay warm.
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notify-worker").Logger()
	log.Info().Msg("notify-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("reminder_age", cfg.ReminderAge).
		Msg("configured")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	repo := referral.NewPgRepository(pgPool)
	locker := redisclient.NewRedisReferralLocker(rdb, cfg.LockTTL)
	badges := redisclient.NewRedisBadgeCache(rdb, cfg.BadgeTTL)
	svc := referral.NewService(repo, locker, badges, log)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.ReminderAge, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping notify worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReminderAge, log)
		}
	}
}

func runOnce(ctx context.Context, svc *referral.Service, reminderAge time.Duration, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.RemindStalePending(runCtx, reminderAge)
	if err != nil {
		log.Error().Err(err).Msg("reminder run error")
		return
	}
	log.Info().
		Int("reminders", n).
		Dur("took", time.Since(start)).
		Msg("reminder run complete")
}
