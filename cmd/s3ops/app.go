package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/s3ops/internal/config"
	"github.com/openmined/s3ops/internal/engine"
	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/journal"
	"github.com/openmined/s3ops/internal/metrics"
)

// newGateway is replaced in tests to share one seeded memory gateway across commands.
var newGateway = gateway.New

// app wires the gateway, engine, journal and metrics endpoint of one invocation.
type app struct {
	cfg     *config.Config
	gw      gateway.Gateway
	engine  *engine.Engine
	journal *journal.Journal
	metrics *metrics.Prometheus
	server  *http.Server
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	gw, err := newGateway(cfg.Gateway())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, gw: gw, metrics: metrics.New()}
	opts := append(cfg.EngineOptions(), engine.WithMetrics(a.metrics))

	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath)
		switch {
		case errors.Is(err, journal.ErrJournalLocked):
			// another s3ops is running; carry on without history
			slog.Warn("journal disabled", "path", cfg.JournalPath, "error", err)
		case err != nil:
			return nil, err
		default:
			a.journal = j
			opts = append(opts, engine.WithTerminalHook(j.Hook()))
		}
	}

	a.engine = engine.New(gw, opts...)

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics", "addr", addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "error", err)
		}
	}()
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	errs = append(errs, a.engine.Close(ctx))
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
