// Package config provides configuration types for Intent Gate.
//
// Configuration is file-based (intent-gate.yaml) with environment
// variable overrides under the INTENT_GATE_ prefix. The gateway runs
// with an empty config: in-memory stores, the embedded vocabulary and
// the deterministic hash embedder.
package config

import "github.com/spf13/viper"

// Config is the top-level configuration for the gateway.
type Config struct {
	// Server configures the management-plane HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// DataPlane configures the optional gRPC data-plane listener.
	DataPlane DataPlaneConfig `yaml:"data_plane" mapstructure:"data_plane"`

	// Storage selects where boundaries, anchors and sessions persist.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Encoder configures the embedding backend and cache.
	Encoder EncoderConfig `yaml:"encoder" mapstructure:"encoder"`

	// Vocabulary optionally points at a vocabulary file. Empty uses
	// the embedded default.
	Vocabulary VocabularyConfig `yaml:"vocabulary" mapstructure:"vocabulary"`

	// Auth configures file-based API keys. Empty in dev mode means
	// no authentication.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Tracing toggles the stdout trace exporter.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DefaultTenant is the tenant whose boundaries are resynced to
	// the data plane at startup.
	DefaultTenant string `yaml:"default_tenant" mapstructure:"default_tenant"`

	// DevMode enables development features: debug logging and
	// authless API access.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to
	// "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: "debug", "info", "warn"
	// or "error". Defaults to "info". DevMode overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file" validate:"omitempty,required_with=TLSKeyFile"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file" validate:"omitempty,required_with=TLSCertFile"`
}

// DataPlaneConfig configures the gRPC data-plane listener.
type DataPlaneConfig struct {
	// Enabled starts the gRPC server. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// GRPCAddr is the listen address. Defaults to "127.0.0.1:9443".
	GRPCAddr string `yaml:"grpc_addr" mapstructure:"grpc_addr" validate:"omitempty,hostname_port"`

	// APIKey, when set, is required as a bearer credential on every
	// RPC.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Target is a remote data plane to mirror boundaries to, as a
	// gRPC target string (e.g. "dns:///gate-dp:9443"). Installs and
	// removals are pushed there, and the active set is resynced at
	// startup.
	Target string `yaml:"target" mapstructure:"target"`

	// TargetCAFile, when set, dials Target with TLS using this CA
	// bundle; the API key then refuses to flow over plaintext.
	TargetCAFile string `yaml:"target_ca_file" mapstructure:"target_ca_file"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite". Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// Path is the sqlite database file. Required when backend is
	// "sqlite".
	Path string `yaml:"path" mapstructure:"path"`
}

// EncoderConfig configures slot embedding.
type EncoderConfig struct {
	// Embedder is "hash" (deterministic, offline) or "http" (remote
	// embedding service). Defaults to "hash".
	Embedder string `yaml:"embedder" mapstructure:"embedder" validate:"omitempty,oneof=hash http"`

	// Endpoint is the embedding service base URL. Required when
	// embedder is "http".
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`

	// Model is the embedding model name sent to the service.
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey authenticates against the embedding service.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Timeout is the per-request embedding timeout (e.g. "10s").
	Timeout string `yaml:"timeout" mapstructure:"timeout"`

	// CacheSize is the embedding cache capacity in entries.
	// Defaults to 4096.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// VocabularyConfig points at the canonical vocabulary.
type VocabularyConfig struct {
	// Path is a vocabulary YAML file. Empty uses the embedded
	// default. The gateway fails fast on a broken vocabulary.
	Path string `yaml:"path" mapstructure:"path"`
}

// AuthConfig configures file-based API keys.
type AuthConfig struct {
	// APIKeys defines the keys accepted by the management plane.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines one API key by its argon2id hash.
// Generate with: intent-gate hash-key
type APIKeyConfig struct {
	// Name is a human-readable label for the key.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Role is "admin", "agent" or "read-only".
	Role string `yaml:"role" mapstructure:"role" validate:"required,oneof=admin agent read-only"`

	// Hash is the argon2id PHC hash of the raw key.
	Hash string `yaml:"hash" mapstructure:"hash" validate:"required,startswith=$argon2id$"`

	// TenantID scopes the key. Defaults to the default tenant.
	TenantID string `yaml:"tenant_id" mapstructure:"tenant_id"`
}

// TracingConfig toggles tracing.
type TracingConfig struct {
	// Enabled turns the stdout trace exporter on. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only by default. Network access needs an
	// explicit http_addr like ":8080".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.DataPlane.GRPCAddr == "" {
		c.DataPlane.GRPCAddr = "127.0.0.1:9443"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}

	if c.Encoder.Embedder == "" {
		c.Encoder.Embedder = "hash"
	}
	if c.Encoder.Timeout == "" {
		c.Encoder.Timeout = "10s"
	}
	if c.Encoder.CacheSize == 0 {
		c.Encoder.CacheSize = 4096
	}

	if c.DefaultTenant == "" {
		c.DefaultTenant = "default"
	}

	// viper.IsSet distinguishes "not set" from "explicitly false".
	if !viper.IsSet("tracing.enabled") {
		c.Tracing.Enabled = false
	}

	for i := range c.Auth.APIKeys {
		if c.Auth.APIKeys[i].TenantID == "" {
			c.Auth.APIKeys[i].TenantID = c.DefaultTenant
		}
	}
}
