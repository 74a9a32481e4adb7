package main

import (
	"context"
	"fmt"
	"time"

	"go_subdns/internal/cache"
	"go_subdns/internal/config"
	"go_subdns/internal/db"
	"go_subdns/internal/dns"
	"go_subdns/internal/dns/providers/cloudflare"
	"go_subdns/internal/lock"
	"go_subdns/internal/logging"
	"go_subdns/internal/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// app holds the process-wide resources shared by serve and worker
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	db       *gorm.DB
	rdb      *redis.Client
	records  *dns.RecordStore
	queue    *dns.Queue
	provider *cloudflare.Provider
	shutdown metrics.ShutdownFunc
}

func newApp(ctx context.Context, cfg *config.Config, lg *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: lg}

	shutdown, err := metrics.Setup(ctx, metrics.Config{
		OTLPEndpoint: cfg.Metrics.OTLPEndpoint,
		ServiceName:  cfg.Metrics.ServiceName,
		Environment:  cfg.Metrics.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	a.shutdown = shutdown

	a.db, err = db.Open(cfg.DB.Driver, cfg.DB.DSN, db.Options{})
	if err != nil {
		a.close()
		return nil, err
	}
	lg.WithField("driver", cfg.DB.Driver).Info("Database connected")

	if cfg.Migrate {
		if err := db.Migrate(a.db, logging.Component(lg, "migrate")); err != nil {
			a.close()
			return nil, err
		}
	}

	if cfg.RateLimit.Enabled || (cfg.DNSSync.Enabled && cfg.DNSSync.LockEnabled) {
		a.rdb, err = cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.close()
			return nil, err
		}
		lg.WithField("addr", cfg.Redis.Addr).Info("Redis connected")
	}

	a.provider, err = cloudflare.NewProvider(cloudflare.Config{
		APIToken:     cfg.Cloudflare.APIToken,
		BaseURL:      cfg.Cloudflare.BaseURL,
		RateLimitRPS: cfg.Cloudflare.RateLimitRPS,
	}, logging.Component(lg, "cloudflare"))
	if err != nil {
		a.close()
		return nil, err
	}

	a.records = dns.NewRecordStore(a.db)
	a.queue = dns.NewQueue(a.db, a.records, dns.RetryPolicy{
		MaxAttempts: cfg.DNSSync.MaxAttempts,
		BaseDelay:   time.Duration(cfg.DNSSync.BaseDelaySec) * time.Second,
	})
	return a, nil
}

func (a *app) newDispatcher() (*dns.Dispatcher, error) {
	sc := a.cfg.DNSSync

	var locker lock.Lock
	if sc.LockEnabled && a.rdb != nil {
		locker = lock.NewRedisLock(a.rdb)
	}

	return dns.NewDispatcher(&dns.DispatcherConfig{
		Queue:      a.queue,
		Records:    a.records,
		Provider:   a.provider,
		Lock:       locker,
		Logger:     logrus.NewEntry(a.log),
		Interval:   sc.Interval(),
		JobTimeout: time.Duration(sc.JobTimeoutSec) * time.Second,
		StaleAfter: time.Duration(sc.StaleAfterSec) * time.Second,
		LockExpiry: time.Duration(sc.LockExpirySec) * time.Second,
	})
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if err := db.Close(a.db); err != nil {
			a.log.WithError(err).Warn("Failed to close database")
		}
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("Failed to flush metrics")
		}
	}
}
