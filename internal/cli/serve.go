package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/optimode/mxprobe"
	"github.com/optimode/mxprobe/internal/api"
	"github.com/optimode/mxprobe/internal/ratelimit"
	"github.com/optimode/mxprobe/metrics"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP verification service",
		Long: `Serves GET /v1/verify?address=<address>, GET /healthz and GET /metrics.
Requests beyond api.rate_limit per second (or api.domain_rate_limit per
domain) are answered with 429.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.API.Addr()
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides api.host and api.port")
	return cmd
}

// serve runs the HTTP service on ln until ctx is done.
func serve(ctx context.Context, a *app, ln net.Listener) error {
	log := a.log
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	v := mxprobe.New(a.verifierOptions()).WithLogger(log).WithMetrics(metrics.New(reg))

	var limiter *ratelimit.Limiter
	if c := a.cfg.API; c.RateLimit > 0 || c.DomainRateLimit > 0 {
		limiter = ratelimit.New(c.RateLimit, c.DomainRateLimit, c.Burst)
	}

	srv := &http.Server{
		Handler:      api.NewRouter(v, log, limiter, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadTimeout:  a.cfg.API.ReadTimeout,
		WriteTimeout: a.cfg.API.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
