// File: config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel kinds a port may use between its producer and its worker.
const (
	ChannelsEvent   = "event"
	ChannelsEventFD = "eventfd"
	ChannelsNone    = "none"
)

// Config is the top-level configuration.
type Config struct {
	Log        Log        `yaml:"log"`
	Metrics    Metrics    `yaml:"metrics"`
	Mitigation Mitigation `yaml:"mitigation"`
	Ports      []Port     `yaml:"ports"`
}

// Log selects logrus level and formatter.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics controls the HTTP endpoint serving /metrics and /debug/state.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Mitigation holds the hot-reloadable timer settings.
type Mitigation struct {
	Window time.Duration `yaml:"window"`
}

// Port describes one loopback port and its worker context.
type Port struct {
	Name         string `yaml:"name"`
	Peer         string `yaml:"peer"`
	Category     int64  `yaml:"category"`
	UseTask      bool   `yaml:"use_task"`
	Affinity     int    `yaml:"affinity"`
	AttachCaller bool   `yaml:"attach_caller"`
	Channels     string `yaml:"channels"`
	Rate         int    `yaml:"rate"`
	QueueLen     int    `yaml:"queue_len"`
}

// Default returns built-in defaults: one self-looped port driven by a
// dedicated task over in-process events.
func Default() Config {
	return Config{
		Log:        Log{Level: "info", Format: "text"},
		Metrics:    Metrics{Enabled: true, Listen: ":9100"},
		Mitigation: Mitigation{Window: 10 * time.Microsecond},
		Ports:      []Port{DefaultPort("p0")},
	}
}

// DefaultPort returns the defaults for a port named name.
func DefaultPort(name string) Port {
	return Port{
		Name:     name,
		UseTask:  true,
		Affinity: -1,
		Channels: ChannelsEvent,
		Rate:     1000,
		QueueLen: 1024,
	}
}

// Load reads a YAML file over Default(). An empty path returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML over Default(). Ports listed in the document replace
// the default port; omitted port fields take DefaultPort values.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	// second pass: decode each port over its defaults
	var raw struct {
		Ports []yaml.Node `yaml:"ports"`
	}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if raw.Ports == nil {
		cfg.Ports = Default().Ports
		return cfg, nil
	}
	cfg.Ports = make([]Port, 0, len(raw.Ports))
	for i := range raw.Ports {
		p := DefaultPort(fmt.Sprintf("p%d", i))
		if err := raw.Ports[i].Decode(&p); err != nil {
			return Config{}, fmt.Errorf("config: port %d: %w", i, err)
		}
		cfg.Ports = append(cfg.Ports, p)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Mitigation.Window <= 0 {
		errs = append(errs, fmt.Errorf("mitigation.window must be positive, got %s", c.Mitigation.Window))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	if len(c.Ports) == 0 {
		errs = append(errs, errors.New("at least one port is required"))
	}
	names := make(map[string]bool, len(c.Ports))
	for i, p := range c.Ports {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("ports[%d]: name is required", i))
			continue
		}
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("ports[%d]: duplicate name %q", i, p.Name))
		}
		names[p.Name] = true
	}
	for i, p := range c.Ports {
		if p.Peer != "" && !names[p.Peer] {
			errs = append(errs, fmt.Errorf("ports[%d]: unknown peer %q", i, p.Peer))
		}
		switch p.Channels {
		case ChannelsEvent, ChannelsEventFD, ChannelsNone:
		default:
			errs = append(errs, fmt.Errorf("ports[%d]: unknown channels %q", i, p.Channels))
		}
		if p.Affinity < -1 {
			errs = append(errs, fmt.Errorf("ports[%d]: affinity must be -1 or a cpu id", i))
		}
		if p.Rate < 0 {
			errs = append(errs, fmt.Errorf("ports[%d]: rate must not be negative", i))
		}
		if p.QueueLen <= 0 {
			errs = append(errs, fmt.Errorf("ports[%d]: queue_len must be positive", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// PortByName returns the named port.
func (c *Config) PortByName(name string) (Port, bool) {
	for _, p := range c.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}
