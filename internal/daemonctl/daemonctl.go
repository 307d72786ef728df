// Package daemonctl drives a topology's run loop: config load, metrics
// server, signal handling, and graceful/forced/reload shutdown — ported
// from the daemon lifecycle manager's signal loop.
package daemonctl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/log"
	"firestige.xyz/otus/internal/metrics"
	"firestige.xyz/otus/internal/topology"
)

// forceShutdownDeadline is the (near-zero, but non-zero so the timer still
// fires rather than being skipped) deadline used when SIGQUIT requests an
// immediate forced stop instead of a graceful one.
const forceShutdownDeadline = time.Millisecond

// Daemon owns a running topology's full process lifecycle: load, start,
// signal handling, reload, stop.
type Daemon struct {
	configPath string

	cfg           *config.Config
	topo          *topology.Topology
	metricsServer *metrics.Server

	sigChan chan os.Signal
}

// New loads configuration and builds (but does not start) a Daemon.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("daemonctl: load config: %w", err)
	}

	d := &Daemon{configPath: configPath, cfg: cfg}
	if err := d.build(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build(cfg *config.Config) error {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("daemonctl: init logging: %w", err)
	}

	deadline, err := time.ParseDuration(cfg.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("daemonctl: parse shutdown_timeout %q: %w", cfg.ShutdownTimeout, err)
	}

	topo, err := topology.Build(cfg.Topology, topology.BuildOptions{
		DataDir:          cfg.DataDir,
		ShutdownDeadline: deadline,
	})
	if err != nil {
		return fmt.Errorf("daemonctl: build topology: %w", err)
	}

	d.topo = topo
	d.cfg = cfg
	return nil
}

// Run starts the topology and blocks handling signals until shutdown
// completes. Shutdown can be triggered by:
//  1. SIGTERM/SIGINT — graceful shutdown within the configured deadline
//  2. SIGHUP — reload configuration, rebuild the topology, swap it in
//  3. SIGQUIT — force immediate shutdown, bypassing the deadline
//  4. ctx cancellation from the caller
func (d *Daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.cfg.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(d.cfg.Metrics.Listen, d.cfg.Metrics.Path)
		if err := d.metricsServer.Start(runCtx); err != nil {
			return fmt.Errorf("daemonctl: start metrics server: %w", err)
		}
	}

	if err := d.topo.Start(runCtx); err != nil {
		return fmt.Errorf("daemonctl: start topology: %w", err)
	}

	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGQUIT)
	defer signal.Stop(d.sigChan)

	slog.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				return d.stop(false)

			case syscall.SIGQUIT:
				slog.Info("received force shutdown signal")
				return d.stop(true)

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.reload(runCtx); err != nil {
					slog.Error("reload failed, continuing with prior topology", "error", err)
				} else {
					slog.Info("topology reloaded successfully")
				}
			}

		case <-runCtx.Done():
			slog.Info("context cancelled", "error", runCtx.Err())
			return d.stop(false)
		}
	}
}

// stop tears down the running topology and metrics server. force swaps the
// graceful deadline captured at build time for forceShutdownDeadline,
// matching SIGQUIT's "stop now" semantics instead of waiting out the
// configured grace period.
func (d *Daemon) stop(force bool) error {
	slog.Info("stopping topology", "force", force)

	var err error
	if force {
		err = d.topo.StopForce(forceShutdownDeadline)
	} else {
		err = d.topo.Stop()
	}
	if err != nil {
		slog.Error("error stopping topology", "error", err)
	}

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	slog.Info("daemon stopped")
	return nil
}

// reload loads a fresh configuration, builds a new topology alongside the
// running one, stops the old topology once the new one is accepting input,
// and swaps it in. The old metrics server is left running across a reload
// since its address rarely changes; restart the process to change it.
func (d *Daemon) reload(ctx context.Context) error {
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("daemonctl: load config: %w", err)
	}

	deadline, err := time.ParseDuration(newCfg.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("daemonctl: parse shutdown_timeout %q: %w", newCfg.ShutdownTimeout, err)
	}

	newTopo, err := topology.Build(newCfg.Topology, topology.BuildOptions{
		DataDir:          newCfg.DataDir,
		ShutdownDeadline: deadline,
	})
	if err != nil {
		return fmt.Errorf("daemonctl: build reloaded topology: %w", err)
	}

	if err := newTopo.Start(ctx); err != nil {
		return fmt.Errorf("daemonctl: start reloaded topology: %w", err)
	}

	oldTopo := d.topo
	d.topo = newTopo
	d.cfg = newCfg

	if err := oldTopo.Stop(); err != nil {
		slog.Warn("error draining previous topology after reload", "error", err)
	}

	if err := log.Init(newCfg.Log); err != nil {
		slog.Warn("failed to reinitialize logging after reload", "error", err)
	}

	return nil
}
