// File: internal/cli/cli.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Command line interface:
//
//	kctx run   [-c config.yaml] [--duration 30s]   start ports, serve /metrics and /debug/state
//	kctx check [-c config.yaml]                    validate a configuration
//	kctx version
//
// run reloads the mitigation window on SIGHUP and stops on SIGINT/SIGTERM.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/hioload-kctx/config"
	"github.com/momentics/hioload-kctx/control"
	"github.com/momentics/hioload-kctx/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "0.1.0"

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "kctx",
		Short:         "kctx: worker and interrupt mitigation engine for virtual ports",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults when empty)")

	root.AddCommand(buildRunCommand(&configFile))
	root.AddCommand(buildCheckCommand(&configFile))
	root.AddCommand(buildVersionCommand())
	return root
}

func buildRunCommand(configFile *string) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the configured ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEngine(cmd.Context(), cmd.ErrOrStderr(), *configFile, duration)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until signalled)")
	return cmd
}

func buildCheckCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the port layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mitigation window: %s\n", cfg.Mitigation.Window)
			for _, p := range cfg.Ports {
				peer := p.Peer
				if peer == "" {
					peer = p.Name
				}
				fmt.Fprintf(out, "port %s -> %s: task=%t channels=%s affinity=%d rate=%d\n",
					p.Name, peer, p.UseTask, p.Channels, p.Affinity, p.Rate)
			}
			return nil
		},
	}
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kctx %s\n", Version)
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	config.FromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runEngine(ctx context.Context, logOut io.Writer, path string, duration time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := control.NewMetrics(reg)
	if err != nil {
		return err
	}
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	store := control.NewConfigStore()

	rt, err := NewRuntime(cfg, log, metrics, probes, store)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = newHTTPServer(cfg.Metrics.Listen, newRouter(reg, probes, rt, log))
		go func() {
			log.WithField("addr", cfg.Metrics.Listen).Info("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	var deadline <-chan time.Time
	if duration > 0 {
		t := time.NewTimer(duration)
		defer t.Stop()
		deadline = t.C
	}

	var runErr error
loop:
	for {
		select {
		case s := <-sig:
			if s == syscall.SIGHUP {
				if next, err := loadConfig(path); err != nil {
					log.WithError(err).Warn("reload rejected")
				} else if err := rt.Reload(next); err != nil {
					log.WithError(err).Warn("reload rejected")
				}
				continue
			}
			log.WithField("signal", s.String()).Info("shutting down")
			break loop
		case err := <-errCh:
			runErr = fmt.Errorf("http server: %w", err)
			break loop
		case <-deadline:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil && runErr == nil {
			runErr = fmt.Errorf("shutdown: %w", err)
		}
	}
	log.WithField("frames", rt.Frames()).Info("stopped")
	return runErr
}
