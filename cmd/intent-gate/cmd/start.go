package cmd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Intent-Gate/Intentgate/internal/adapter/dataplane"
	"github.com/Intent-Gate/Intentgate/internal/adapter/inbound/httpapi"
	celmod "github.com/Intent-Gate/Intentgate/internal/adapter/outbound/cel"
	"github.com/Intent-Gate/Intentgate/internal/adapter/outbound/memory"
	"github.com/Intent-Gate/Intentgate/internal/adapter/outbound/sqlite"
	"github.com/Intent-Gate/Intentgate/internal/config"
	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/session"
	"github.com/Intent-Gate/Intentgate/internal/encoder"
	"github.com/Intent-Gate/Intentgate/internal/service"
	"github.com/Intent-Gate/Intentgate/internal/telemetry"
	"github.com/Intent-Gate/Intentgate/internal/vocab"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the Intent Gate policy enforcement gateway.

The gateway hosts the management-plane JSON API (boundary CRUD, intent
enforcement, session telemetry, agent registry) and optionally the
gRPC data plane for low-latency enforcement.

Examples:
  # Start with config file settings
  intent-gate start

  # Start authless for local development
  intent-gate start --dev

  # Start with a specific config file
  intent-gate --config /path/to/intent-gate.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, no auth)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so the --dev flag can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C
	// does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("intent-gate stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode enabled, API authentication is OFF")
	}

	// Vocabulary is loaded first; a broken vocabulary fails the boot.
	reg, err := loadVocabulary(cfg)
	if err != nil {
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}
	logger.Info("vocabulary loaded", "version", reg.Version())

	emb, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	enc := encoder.New(reg, emb, cfg.Encoder.CacheSize)

	boundaryStore, sessionStore, closeStores, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(promReg)

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, "intent-gate", Version, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("trace exporter shutdown failed", "error", err)
			}
		}()
	}

	modifier, err := celmod.NewModifier()
	if err != nil {
		return fmt.Errorf("failed to build modification evaluator: %w", err)
	}

	sessions := service.NewSessionService(sessionStore, logger, metrics)
	sessions.StartSweeper(ctx)
	defer sessions.Stop()

	var mirror service.DataPlane
	if cfg.DataPlane.Target != "" {
		tlsCfg, err := mirrorTLSConfig(cfg.DataPlane.TargetCAFile)
		if err != nil {
			return err
		}
		client, err := dataplane.NewClient(dataplane.ClientConfig{
			Target:    cfg.DataPlane.Target,
			APIKey:    cfg.DataPlane.APIKey,
			TLSConfig: tlsCfg,
		})
		if err != nil {
			return fmt.Errorf("failed to dial data plane %s: %w", cfg.DataPlane.Target, err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close data-plane connection", "error", err)
			}
		}()
		mirror = client
	}

	boundaries := service.NewBoundaryService(boundaryStore, enc, modifier, mirror, logger, metrics)
	enforcement := service.NewEnforcementService(boundaries, enc, sessions, modifier,
		logger, metrics, boundary.ApplicabilityOptions{})
	agents := service.NewAgentRegistry()

	ring, err := buildKeyring(ctx, cfg)
	if err != nil {
		return err
	}

	api := httpapi.NewAPIHandler(
		httpapi.WithEnforcement(enforcement),
		httpapi.WithBoundaries(boundaries),
		httpapi.WithSessions(sessions),
		httpapi.WithAgents(agents),
		httpapi.WithKeyring(ring),
		httpapi.WithLogger(logger),
	)
	health := httpapi.NewHealthChecker(sessions, agents, Version)

	transportOpts := []httpapi.TransportOption{
		httpapi.WithAddr(cfg.Server.HTTPAddr),
		httpapi.WithRegistry(promReg, metrics),
		httpapi.WithHealthChecker(health),
		httpapi.WithTransportLogger(logger),
	}
	if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
		transportOpts = append(transportOpts, httpapi.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}
	transport := httpapi.NewTransport(api, transportOpts...)

	if cfg.DataPlane.Enabled {
		dp := dataplane.NewServer(enforcement, boundaryStore, logger, dataplane.ServerConfig{
			APIKey: cfg.DataPlane.APIKey,
		})
		lis, err := net.Listen("tcp", cfg.DataPlane.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on data-plane address %s: %w", cfg.DataPlane.GRPCAddr, err)
		}
		go func() {
			logger.Info("starting gRPC data plane", "addr", cfg.DataPlane.GRPCAddr)
			if err := dp.Serve(lis); err != nil {
				logger.Error("data plane stopped", "error", err)
			}
		}()
		defer dp.GracefulStop()
	}

	// Push the active set to the remote data plane so it never serves
	// from an empty mirror after a restart.
	boundaries.Resync(ctx, cfg.DefaultTenant)

	logger.Info("intent-gate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"data_plane", cfg.DataPlane.Enabled,
		"storage", cfg.Storage.Backend,
		"embedder", cfg.Encoder.Embedder,
		"default_tenant", cfg.DefaultTenant,
	)

	return transport.Start(ctx)
}

func loadVocabulary(cfg *config.Config) (*vocab.Registry, error) {
	if cfg.Vocabulary.Path != "" {
		return vocab.LoadFile(cfg.Vocabulary.Path)
	}
	return vocab.Load()
}

func buildEmbedder(cfg *config.Config) (encoder.Embedder, error) {
	switch cfg.Encoder.Embedder {
	case "http":
		timeout, err := time.ParseDuration(cfg.Encoder.Timeout)
		if err != nil {
			timeout = 10 * time.Second
		}
		return encoder.NewHTTPEmbedder(cfg.Encoder.Endpoint, cfg.Encoder.Model,
			cfg.Encoder.APIKey, timeout), nil
	default:
		return encoder.HashEmbedder{}, nil
	}
}

// buildStores returns the boundary and session stores plus a close
// func releasing the backing database, if any.
func buildStores(cfg *config.Config, logger *slog.Logger) (boundary.Store, session.Store, func(), error) {
	if cfg.Storage.Backend == "sqlite" {
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		}
		return sqlite.NewBoundaryStore(db), sqlite.NewSessionStore(db), closeDB, nil
	}
	return memory.NewBoundaryStore(), memory.NewSessionStore(), func() {}, nil
}

// mirrorTLSConfig builds the TLS config for the remote data plane from
// a CA bundle path. Empty path means plaintext dial.
func mirrorTLSConfig(caFile string) (*tls.Config, error) {
	if caFile == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read data-plane CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// buildKeyring seeds the in-memory key store from config. In dev mode
// with no keys it returns nil, which disables authentication.
func buildKeyring(ctx context.Context, cfg *config.Config) (*auth.Keyring, error) {
	if len(cfg.Auth.APIKeys) == 0 {
		return nil, nil
	}
	store := memory.NewAuthStore()
	now := time.Now().UTC()
	for i, k := range cfg.Auth.APIKeys {
		key := &auth.APIKey{
			ID:        uuid.NewString(),
			TenantID:  k.TenantID,
			Name:      k.Name,
			Hash:      k.Hash,
			Role:      auth.Role(k.Role),
			CreatedAt: now,
		}
		if err := store.Add(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to seed api key %d (%s): %w", i, k.Name, err)
		}
	}
	return auth.NewKeyring(store), nil
}

// parseLogLevel converts a string log level to slog.Level. Returns
// slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
