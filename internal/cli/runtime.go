// File: internal/cli/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-kctx/config"
	"github.com/momentics/hioload-kctx/control"
	"github.com/momentics/hioload-kctx/execctx"
	"github.com/momentics/hioload-kctx/port"
	"github.com/sirupsen/logrus"
)

// Runtime owns the ports built from a configuration and their traffic
// generators.
type Runtime struct {
	log     logrus.FieldLogger
	store   *control.ConfigStore
	probes  *control.DebugProbes
	owner   *execctx.Owner
	ports   []*port.Port
	byName  map[string]*port.Port
	rates   map[string]int
	frames  atomic.Uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRuntime builds and wires the configured ports. Nothing is started.
func NewRuntime(cfg config.Config, log logrus.FieldLogger, m *control.Metrics, probes *control.DebugProbes, store *control.ConfigStore) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store.SetConfig(map[string]any{control.KeyMitigationWindow: cfg.Mitigation.Window})

	rt := &Runtime{
		log:    log,
		store:  store,
		probes: probes,
		owner:  execctx.NewOwner("kctx"),
		byName: make(map[string]*port.Port, len(cfg.Ports)),
		rates:  make(map[string]int, len(cfg.Ports)),
	}
	window := store.Duration(control.KeyMitigationWindow, cfg.Mitigation.Window)
	for i, pc := range cfg.Ports {
		ch, err := port.ParseChannels(pc.Channels)
		if err != nil {
			rt.Close()
			return nil, err
		}
		pcfg := port.Config{
			Name:     pc.Name,
			Ring:     i,
			Category: pc.Category,
			UseTask:  pc.UseTask,
			Channels: ch,
			QueueLen: pc.QueueLen,
			Window:   window,
			Handler:  rt.onFrame,
			Logger:   log,
			Metrics:  m,
		}
		if pc.Affinity >= 0 {
			pcfg.CPU, pcfg.Pin = pc.Affinity, true
		}
		if pc.AttachCaller {
			pcfg.Caller = rt.owner
		}
		p, err := port.New(pcfg)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("port %s: %w", pc.Name, err)
		}
		rt.ports = append(rt.ports, p)
		rt.byName[pc.Name] = p
		rt.rates[pc.Name] = pc.Rate
		probes.RegisterProbe("port."+pc.Name, func() any { return p.Stats() })
	}
	for _, pc := range cfg.Ports {
		if pc.Peer == "" {
			continue
		}
		if err := port.Connect(rt.byName[pc.Name], rt.byName[pc.Peer]); err != nil {
			rt.Close()
			return nil, err
		}
	}
	probes.RegisterProbe("runtime.frames", func() any { return rt.frames.Load() })
	store.OnReload(rt.applyReload)
	return rt, nil
}

func (rt *Runtime) onFrame(string, []byte) {
	rt.frames.Add(1)
}

// Frames returns the number of frames handed to receivers.
func (rt *Runtime) Frames() uint64 {
	return rt.frames.Load()
}

// Port returns the named port.
func (rt *Runtime) Port(name string) (*port.Port, bool) {
	p, ok := rt.byName[name]
	return p, ok
}

// Ports returns the ports in configuration order.
func (rt *Runtime) Ports() []*port.Port {
	return rt.ports
}

// Start brings every port up and launches the generators. A failure takes
// already started ports down again.
func (rt *Runtime) Start(ctx context.Context) error {
	for i, p := range rt.ports {
		if err := p.Up(); err != nil {
			for _, q := range rt.ports[:i] {
				q.Down()
			}
			return err
		}
	}
	ctx, rt.cancel = context.WithCancel(ctx)
	for _, p := range rt.ports {
		rate := rt.rates[p.Name()]
		if rate <= 0 {
			continue
		}
		rt.wg.Add(1)
		go func(p *port.Port) {
			defer rt.wg.Done()
			if err := p.Generate(ctx, rate); err != nil {
				rt.log.WithError(err).WithField("port", p.Name()).Warn("generator stopped")
			}
		}(p)
	}
	rt.started = true
	rt.log.WithField("ports", len(rt.ports)).Info("runtime started")
	return nil
}

// Reload applies the hot-reloadable part of cfg.
func (rt *Runtime) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.store.SetConfig(map[string]any{control.KeyMitigationWindow: cfg.Mitigation.Window})
	return nil
}

func (rt *Runtime) applyReload(changed map[string]any) {
	d, ok := changed[control.KeyMitigationWindow].(time.Duration)
	if !ok {
		return
	}
	for _, p := range rt.ports {
		p.SetWindow(d)
	}
	rt.log.WithField("window", d).Info("mitigation window reloaded")
}

// Close stops the generators and releases every port. Idempotent.
func (rt *Runtime) Close() {
	if rt.cancel != nil {
		rt.cancel()
		rt.wg.Wait()
		rt.cancel = nil
	}
	for _, p := range rt.ports {
		p.Close()
		rt.probes.UnregisterProbe("port." + p.Name())
	}
	rt.owner.Close()
	if rt.started {
		rt.started = false
		rt.log.Info("runtime stopped")
	}
}
