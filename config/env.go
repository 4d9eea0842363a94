// File: config/env.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Environment overlay for configuration.

package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays KCTX_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("KCTX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("KCTX_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("KCTX_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("KCTX_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("KCTX_MITIGATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mitigation.Window = d
		}
	}
}
