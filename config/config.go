// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package config loads the relay server and client configuration: a YAML
// file with environment-variable substitution and override, the same
// layered loader the teacher uses for its own deployment config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for cmd/relay-server and
// cmd/e2ee-client.
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Relay       *RelayConfig   `yaml:"relay" json:"relay"`
	Crypto      *CryptoConfig  `yaml:"crypto" json:"crypto"`
	Storage     *StorageConfig `yaml:"storage" json:"storage"`
	Logging     *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig `yaml:"metrics" json:"metrics"`
}

// RelayConfig holds the relay's listen address, bearer-token verification
// settings, and per-caller rate limits (§4.8, §6).
type RelayConfig struct {
	ListenAddr       string        `yaml:"listen_addr" json:"listen_addr"`
	JWTIssuer        string        `yaml:"jwt_issuer" json:"jwt_issuer"`
	JWTAudience      string        `yaml:"jwt_audience" json:"jwt_audience"`
	JWKSURL          string        `yaml:"jwks_url" json:"jwks_url"`
	JWKSCacheTTL     time.Duration `yaml:"jwks_cache_ttl" json:"jwks_cache_ttl"`
	KEPRateLimit     int           `yaml:"kep_rate_limit" json:"kep_rate_limit"`
	DataRateLimit    int           `yaml:"data_rate_limit" json:"data_rate_limit"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
}

// CryptoConfig exposes §4.1/§4.5's fixed constants as tunable knobs.
type CryptoConfig struct {
	FreshnessWindowMs int64 `yaml:"freshness_window_ms" json:"freshness_window_ms"`
	ClockSkewMs       int64 `yaml:"clock_skew_ms" json:"clock_skew_ms"`
	MaxFileSizeBytes  int64 `yaml:"max_file_size_bytes" json:"max_file_size_bytes"`
	PBKDF2Iterations  int   `yaml:"pbkdf2_iterations" json:"pbkdf2_iterations"`
	MaxNonceSetSize   int   `yaml:"max_nonce_set_size" json:"max_nonce_set_size"`
}

// StorageConfig selects and configures the MessageMeta/Session
// persistence backend (§4.8, grounded on pkg/storage/postgres).
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "memory" or "postgres"
	DSN    string `yaml:"dsn" json:"dsn"`
}

// LoggingConfig mirrors the teacher's logging config shape.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig toggles the Prometheus endpoint (§6).
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LoadFromFile loads configuration from a YAML (or JSON) file and applies
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg back out, YAML unless path ends in .json.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// setDefaults fills in the values every deployment needs unless overridden.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Relay == nil {
		cfg.Relay = &RelayConfig{}
	}
	if cfg.Relay.ListenAddr == "" {
		cfg.Relay.ListenAddr = ":8443"
	}
	if cfg.Relay.JWKSCacheTTL == 0 {
		cfg.Relay.JWKSCacheTTL = 10 * time.Minute
	}
	if cfg.Relay.KEPRateLimit == 0 {
		cfg.Relay.KEPRateLimit = 10 // §4.8: 10 per 5 minutes per caller
	}
	if cfg.Relay.DataRateLimit == 0 {
		cfg.Relay.DataRateLimit = 60 // §4.8: 60 per minute per transport
	}
	if cfg.Relay.HandshakeTimeout == 0 {
		cfg.Relay.HandshakeTimeout = 30 * time.Second
	}

	if cfg.Crypto == nil {
		cfg.Crypto = &CryptoConfig{}
	}
	if cfg.Crypto.FreshnessWindowMs == 0 {
		cfg.Crypto.FreshnessWindowMs = 120_000
	}
	if cfg.Crypto.ClockSkewMs == 0 {
		cfg.Crypto.ClockSkewMs = 60_000
	}
	if cfg.Crypto.MaxFileSizeBytes == 0 {
		cfg.Crypto.MaxFileSizeBytes = 100 * 1024 * 1024
	}
	if cfg.Crypto.PBKDF2Iterations == 0 {
		cfg.Crypto.PBKDF2Iterations = 100_000
	}
	if cfg.Crypto.MaxNonceSetSize == 0 {
		cfg.Crypto.MaxNonceSetSize = 1024
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}
