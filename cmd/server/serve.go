package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"certregistry/internal/platform/authority"
	"certregistry/internal/platform/config"
	"certregistry/internal/platform/httpserver"
	platformmetrics "certregistry/internal/platform/metrics"
	"certregistry/internal/registry/handler"
	registrymetrics "certregistry/internal/registry/metrics"
	"certregistry/internal/registry/service"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/audit/publishers/compliance"
	"certregistry/pkg/platform/audit/publishers/ops"
	"certregistry/pkg/platform/audit/publishers/security"
	"certregistry/pkg/platform/httputil"
	authmw "certregistry/pkg/platform/middleware/auth"
	"certregistry/pkg/platform/middleware/metadata"
	"certregistry/pkg/platform/middleware/request"
	"certregistry/pkg/platform/middleware/requesttime"
)

func serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.ValidateAuthority(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			log, err := commonRun(cfg)
			if err != nil {
				return err
			}
			return serveRun(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func serveRun(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b, err := openBackend(ctx, cfg, log, reg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Store.Backend, err)
	}
	defer b.Close()

	if b.migrator != nil {
		if err := b.migrator.Migrate(ctx); err != nil {
			return err
		}
	}

	compliancePublisher := compliance.New(b.compliance,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)
	tracker := ops.NewTracker(b.events,
		ops.WithSampler(ops.NewSampler(cfg.Audit.VerificationSampleRate)),
		ops.WithMetrics(ops.NewMetrics(reg)),
		ops.WithLogger(log),
		ops.WithBufferSize(cfg.Audit.VerificationBufferSize),
	)
	defer func() {
		if err := tracker.Close(); err != nil {
			log.Warn("failed to drain verification tracker", "error", err)
		}
	}()
	securityPublisher := security.New(b.events, cfg.Audit.SecurityBufferSize, log)

	svc, err := service.New(b.store,
		service.WithLogger(log),
		service.WithAuditPublisher(compliancePublisher),
		service.WithVerificationTracker(tracker),
		service.WithMetrics(registrymetrics.New(reg)),
		service.WithTx(b.tx),
	)
	if err != nil {
		return err
	}

	tokens := authority.NewTokenService(cfg.Authority.SigningKey, cfg.Authority.Issuer, cfg.Authority.Audience)
	requireWriter := authmw.RequireAuthority(authority.NewValidator(tokens), securityPublisher, log)
	httpMetrics := platformmetrics.New(reg)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(httpMetrics.Middleware)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/healthz", healthHandler(b.health))
	r.Handle("/metrics", platformmetrics.Handler(reg))
	handler.New(svc, log, requireWriter).Register(r)

	srv := httpserver.New(cfg.Server.Addr, r, cfg.Server.ReadHeaderTimeout)

	if b.relay != nil {
		if err := b.relay.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return securityPublisher.Run(gctx, cfg.Audit.SecurityFlushInterval)
	})
	if b.relay != nil {
		g.Go(func() error {
			<-gctx.Done()
			return b.relay.Stop()
		})
	}
	g.Go(func() error {
		log.Info("starting certregistry",
			"addr", cfg.Server.Addr,
			"backend", cfg.Store.Backend,
			"kafka", cfg.Kafka.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down certregistry")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
