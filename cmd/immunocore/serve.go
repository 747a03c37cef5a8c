package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"immunocore/internal/adapters/report"
	"immunocore/internal/blob"
	"immunocore/internal/core"
	"immunocore/internal/entitymodel"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr      string
	metrics   string
	traceFile string
}

func (a *app) serveCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the report API, exports and /metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.addr == "" {
				opts.addr = a.cfg.HTTP.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv, err := a.newServer(ctx, opts)
			if err != nil {
				return err
			}
			defer srv.close()
			return srv.run(ctx, opts.addr)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.metrics, "metrics", "prometheus", "operation metrics: prometheus|expvar")
	cmd.Flags().StringVar(&opts.traceFile, "trace-file", "", "append operation spans as JSON lines to this file instead of OpenTelemetry")
	return cmd
}

// server bundles the HTTP handler with the resources it owns.
type server struct {
	handler http.Handler
	worker  *report.Worker
	closers []func()
	logger  logrus.FieldLogger
}

func (a *app) newServer(ctx context.Context, opts serveOptions) (*server, error) {
	srv := &server{logger: a.logger}
	mux := http.NewServeMux()

	var metrics core.MetricsRecorder
	switch opts.metrics {
	case "expvar":
		metrics = core.NewExpvarMetricsRecorder("")
		mux.Handle("/debug/vars", expvar.Handler())
	case "prometheus", "":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, err
		}
		metrics = rec
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	default:
		return nil, errors.New("unknown metrics backend " + opts.metrics)
	}

	var tracer core.Tracer = core.NewOTelTracer(nil)
	if opts.traceFile != "" {
		f, err := os.OpenFile(opts.traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, func() { _ = f.Close() })
		tracer = core.NewJSONTracer(f)
	}

	svc, closeStore, err := a.openService(ctx, core.WithMetricsRecorder(metrics), core.WithTracer(tracer))
	if err != nil {
		srv.close()
		return nil, err
	}
	srv.closers = append(srv.closers, closeStore)

	artifacts, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		srv.close()
		return nil, err
	}
	srv.worker = report.NewWorker(svc, artifacts,
		report.WithQueueSize(a.cfg.HTTP.ExportQueue),
		report.WithAuditLogger(report.LogrusAuditLogger{Log: a.logger.WithField("component", "export")}),
	)
	srv.worker.Start()

	handler := report.NewHandler(svc)
	handler.Exports = srv.worker
	mux.Handle("/api/v1/", handler)
	mux.Handle("/api/v1/openapi.yaml", entitymodel.NewOpenAPIHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Schema-Version", entitymodel.Version())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	srv.handler = mux
	return srv, nil
}

func (s *server) run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr, Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	s.logger.WithField("addr", addr).Info("listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) close() {
	if s.worker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = s.worker.Stop(ctx)
		cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
