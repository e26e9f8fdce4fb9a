package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/careloop/scheduling/internal/config"
	"github.com/careloop/scheduling/internal/db"
	"github.com/careloop/scheduling/internal/logging"
	redisclient "github.com/careloop/scheduling/internal/redis"
	"github.com/careloop/scheduling/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("reminder-worker", "dev", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New("reminder-worker", cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Msg("reminder-worker starting up")

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
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	ledger := reminder.NewPgStore(pgPool)
	notifier := reminder.NewRedisNotifier(rdb)
	sched := reminder.NewScheduler(ledger, notifier, log, reminder.SchedulerOptions{
		Keep:    cfg.ReminderKeep,
		Timeout: cfg.ScanTimeout,
	})

	// Run once at startup, then every minute on the cron tick.
	scanCtx, cancelScan := context.WithTimeout(rootCtx, cfg.ScanTimeout)
	if err := sched.Scan(scanCtx); err != nil {
		log.Error().Err(err).Msg("startup scan error")
	}
	cancelScan()

	sched.Start(rootCtx)

	<-rootCtx.Done()
	log.Info().Msg("reminder-worker stopped")
}
