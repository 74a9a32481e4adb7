package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	v1 "go_subdns/api/v1"
	"go_subdns/internal/auth"
	"go_subdns/internal/dns"
	"go_subdns/internal/domain"
	"go_subdns/internal/logging"
	"go_subdns/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newCmdServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the DNS sync dispatcher",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, lg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer a.close()

	verifier, err := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return err
	}

	var limiter dns.RateLimiter = ratelimit.Noop{}
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(a.rdb, cfg.RateLimit.Limit, time.Duration(cfg.RateLimit.WindowSec)*time.Second)
	}

	dnsService := dns.NewService(&dns.ServiceConfig{
		DB:      a.db,
		Records: a.records,
		Queue:   a.queue,
		Limiter: limiter,
		Logger:  logging.Component(lg, "dns"),
	})
	domainService := domain.NewService(&domain.ServiceConfig{
		DB:       a.db,
		Zones:    cfg.Cloudflare.Zones,
		Resolver: a.provider,
		Logger:   logging.Component(lg, "domain"),
	})

	if cfg.DNSSync.Enabled {
		dispatcher, err := a.newDispatcher()
		if err != nil {
			return err
		}
		dnsService.SetWaker(dispatcher)
		dispatcher.Start()
		defer dispatcher.Stop()
	} else {
		lg.Warn("DNS sync dispatcher disabled; records stay pending until a worker runs")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	v1.SetupRouter(r, v1.Deps{
		JWT:     verifier,
		Domains: domainService,
		DNS:     dnsService,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.WithField("addr", cfg.HTTPAddr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
