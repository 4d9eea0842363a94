// Package config loads the kctx engine configuration. It exposes a
// Default() baseline, a YAML loader and a KCTX_* environment overlay.
//
// Example:
//
//	cfg, err := config.Load("/etc/kctx.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
