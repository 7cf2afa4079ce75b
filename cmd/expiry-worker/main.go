package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/careportal/booking-core/internal/booking"
	"github.com/careportal/booking-core/internal/config"
	"github.com/careportal/booking-core/internal/db"
	"github.com/careportal/booking-core/internal/payment"
	"github.com/careportal/booking-core/internal/redisclient"
)

const sweepLockName = "transaction-sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("transaction_ttl", cfg.TransactionTTL).
		Msg("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	bookingRepo := booking.NewPgRepository(pgPool)
	sweeper := payment.NewSweeper(payment.NewPgRepository(pgPool), bookingRepo, cfg.TransactionTTL, logger)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	// Run once at startup
	runOnce(rootCtx, sweeper, locker, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, sweeper, locker, logger)
		}
	}
}

func runOnce(ctx context.Context, sweeper *payment.Sweeper, locker redisclient.Locker, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	err := locker.WithLock(runCtx, sweepLockName, func(lockCtx context.Context) error {
		_, err := sweeper.Sweep(lockCtx)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			logger.Debug().Msg("another worker holds the sweep lock, skipping run")
			return
		}
		logger.Error().Err(err).Msg("sweep run error")
		return
	}
	logger.Info().Dur("took", time.Since(start)).Msg("sweep run complete")
}

func newLogger(env string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}
