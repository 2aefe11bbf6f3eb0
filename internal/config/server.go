// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Server tuning environment keys. These deliberately stay outside the
// YAML schema; they tune the HTTP listener itself, not capture
// behaviour.
const (
	EnvServerReadTimeout     = "REFCAP_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "REFCAP_SERVER_WRITE_TIMEOUT"
	EnvServerIdleTimeout     = "REFCAP_SERVER_IDLE_TIMEOUT"
	EnvServerMaxHeaderBytes  = "REFCAP_SERVER_MAX_HEADER_BYTES"
	EnvServerShutdownTimeout = "REFCAP_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":8484")
	ListenAddr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes bounds request header parsing
	MaxHeaderBytes int

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration
}

const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultMaxHeaderBytes  = 1 << 20 // 1 MB
	defaultShutdownTimeout = 15 * time.Second
)

// ParseServerConfig resolves the HTTP listener configuration with
// precedence ENV > resolved config > built-in defaults. The listen
// address itself comes from cfg (api.listen), which already went
// through the same precedence chain in the Loader.
func ParseServerConfig(cfg Config) ServerConfig {
	maxHeaderBytes := ParseInt(EnvServerMaxHeaderBytes, defaultMaxHeaderBytes)
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = defaultMaxHeaderBytes
	}

	shutdownTimeout := ParseDuration(EnvServerShutdownTimeout, defaultShutdownTimeout)
	if shutdownTimeout < 3*time.Second {
		shutdownTimeout = 3 * time.Second
	}

	return ServerConfig{
		ListenAddr:      cfg.API.Listen,
		ReadTimeout:     ParseDuration(EnvServerReadTimeout, defaultReadTimeout),
		WriteTimeout:    ParseDuration(EnvServerWriteTimeout, defaultWriteTimeout),
		IdleTimeout:     ParseDuration(EnvServerIdleTimeout, defaultIdleTimeout),
		MaxHeaderBytes:  maxHeaderBytes,
		ShutdownTimeout: shutdownTimeout,
	}
}
