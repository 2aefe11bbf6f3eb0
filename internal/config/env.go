// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/refcap/internal/log"
)

// envLookup reads one environment variable. A variable that is set but
// empty counts as unset, so `export REFCAP_FOO=` cannot blank a default.
func envLookup(logger zerolog.Logger, key string) (string, bool) {
	raw, set := os.LookupEnv(key)
	if !set {
		return "", false
	}
	if raw == "" {
		logger.Debug().
			Str("key", key).
			Str("source", "default").
			Msg("environment variable set but empty, using default")
		return "", false
	}
	return raw, true
}

// envParse resolves key through parse, falling back to def when the
// variable is unset, empty or unparseable. Every resolution is logged
// with its source so an operator can reconstruct the effective config.
func envParse[T any](key string, def T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")

	raw, ok := envLookup(logger, key)
	if !ok {
		logger.Debug().
			Str("key", key).
			Str("default", fmt.Sprint(def)).
			Str("source", "default").
			Msg("using default value")
		return def
	}

	v, err := parse(raw)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Str("default", fmt.Sprint(def)).
			Msg("unparseable environment variable, using default")
		return def
	}

	logger.Debug().
		Str("key", key).
		Str("value", raw).
		Str("source", "environment").
		Msg("using environment variable")
	return v
}

// sensitiveKey reports whether a variable's value must stay out of logs.
func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}

// ParseString reads a string from the environment or returns the default.
// Values of token-like keys are never written to the log.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")

	raw, ok := envLookup(logger, key)
	if !ok {
		logger.Debug().
			Str("key", key).
			Str("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}

	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitiveKey(key) {
		ev.Bool("sensitive", true)
	} else {
		ev.Str("value", raw)
	}
	ev.Msg("using environment variable")
	return raw
}

// ParseInt reads an integer from the environment or returns the default.
func ParseInt(key string, defaultValue int) int {
	return envParse(key, defaultValue, strconv.Atoi)
}

// ParseFloat reads a float64 from the environment or returns the default.
func ParseFloat(key string, defaultValue float64) float64 {
	return envParse(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseDuration reads a Go duration ("250ms", "5s") from the environment
// or returns the default.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return envParse(key, defaultValue, time.ParseDuration)
}

// ParseBool reads a boolean from the environment or returns the default.
// Accepted forms: "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return envParse(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	})
}
