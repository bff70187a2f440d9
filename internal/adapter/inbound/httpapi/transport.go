package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Intent-Gate/Intentgate/internal/telemetry"
)

// Transport is the inbound HTTP server hosting the JSON API, health
// and metrics endpoints.
type Transport struct {
	api      *APIHandler
	server   *http.Server
	addr     string
	certFile string
	keyFile  string
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	health   *HealthChecker
	logger   *slog.Logger
}

// TransportOption configures the Transport.
type TransportOption func(*Transport)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) TransportOption {
	return func(t *Transport) { t.addr = addr }
}

// WithTLS enables TLS with the given certificate and key files.
func WithTLS(certFile, keyFile string) TransportOption {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithRegistry sets a pre-built metrics registry and metric set, so
// service metrics and HTTP metrics share one /metrics endpoint.
func WithRegistry(reg *prometheus.Registry, metrics *telemetry.Metrics) TransportOption {
	return func(t *Transport) {
		t.registry = reg
		t.metrics = metrics
	}
}

// WithHealthChecker sets the /health handler.
func WithHealthChecker(hc *HealthChecker) TransportOption {
	return func(t *Transport) { t.health = hc }
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) { t.logger = l }
}

// NewTransport creates the server around an APIHandler.
func NewTransport(api *APIHandler, opts ...TransportOption) *Transport {
	t := &Transport{
		api:    api,
		addr:   "127.0.0.1:8080",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins serving and blocks until the context is cancelled or
// the server fails.
func (t *Transport) Start(ctx context.Context) error {
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		t.metrics = telemetry.NewMetrics(t.registry)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", t.api.Routes())
	if t.health != nil {
		mux.Handle("/health", t.health.Handler())
	} else {
		mux.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry}))

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: MetricsMiddleware(t.metrics)(mux),
	}
	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS API server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP API server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down API server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("API server shutdown complete")
	return nil
}
