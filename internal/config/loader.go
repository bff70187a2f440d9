// Package config provides configuration loading for Intent Gate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and
// environment variables. If configFile is empty, it searches for
// intent-gate.yaml/.yml in standard locations. The search requires an
// explicit YAML extension so the binary itself is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found. Set name/type without search paths
		// so ReadInConfig returns ConfigFileNotFoundError, which
		// callers handle gracefully.
		viper.SetConfigName("intent-gate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: INTENT_GATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("INTENT_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for intent-gate.yaml or
// .yml. Returns the first match, or empty string if none found.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".intent-gate"),
		"/etc/intent-gate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "intent-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: INTENT_GATE_STORAGE_BACKEND overrides
// storage.backend.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tls_cert_file")
	_ = viper.BindEnv("server.tls_key_file")

	_ = viper.BindEnv("data_plane.enabled")
	_ = viper.BindEnv("data_plane.grpc_addr")
	_ = viper.BindEnv("data_plane.api_key")
	_ = viper.BindEnv("data_plane.target")
	_ = viper.BindEnv("data_plane.target_ca_file")

	_ = viper.BindEnv("storage.backend")
	_ = viper.BindEnv("storage.path")

	_ = viper.BindEnv("encoder.embedder")
	_ = viper.BindEnv("encoder.endpoint")
	_ = viper.BindEnv("encoder.model")
	_ = viper.BindEnv("encoder.api_key")
	_ = viper.BindEnv("encoder.timeout")
	_ = viper.BindEnv("encoder.cache_size")

	_ = viper.BindEnv("vocabulary.path")
	_ = viper.BindEnv("tracing.enabled")
	_ = viper.BindEnv("default_tenant")
	_ = viper.BindEnv("dev_mode")

	// auth.api_keys is an array; use the config file for keys.
}

// LoadConfig reads the configuration file, applies environment
// overrides and defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults but
// does NOT validate. Use this when CLI flags may override DevMode
// before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or empty string in env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
