// Package main provides an audio spectrum monitor that captures system
// playback via loopback and serves band spectra over WebSocket.
//
// Usage:
//
//	spectrum [-config path/to/config.json]
//
// If -config is not specified, the monitor looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oszuidwest/zwfm-spectrum/device"
	"github.com/oszuidwest/zwfm-spectrum/internal/config"
	"github.com/oszuidwest/zwfm-spectrum/internal/eventlog"
	"github.com/oszuidwest/zwfm-spectrum/monitor"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	listDevices := flag.Bool("list-devices", false, "List render endpoints and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *listDevices {
		if err := printDevices(); err != nil {
			slog.Error("failed to list devices", "error", err)
			os.Exit(1)
		}
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snapshot := cfg.Snapshot()

	var events *eventlog.Logger
	if snapshot.EventPath != "" {
		var err error
		events, err = eventlog.NewLogger(snapshot.EventPath)
		if err != nil {
			slog.Error("failed to open event log", "error", err, "path", snapshot.EventPath)
			os.Exit(1)
		}
	}

	mon := monitor.New()
	bindAndAutostart(mon, snapshot)

	srv := NewServer(cfg, mon, events)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := mon.Stop(); err != nil {
		slog.Error("error stopping capture", "error", err)
	}

	if events != nil {
		if err := events.Close(); err != nil {
			slog.Error("error closing event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

// bindAndAutostart binds the configured endpoint (or the system default)
// and starts capture when autostart is enabled. Failures are logged, not
// fatal: the monitor stays reachable over the API for rebinding.
func bindAndAutostart(mon *monitor.Monitor, snapshot config.Snapshot) {
	id := snapshot.Device
	if id == "" {
		def, err := device.Default()
		if err != nil {
			slog.Warn("device enumeration failed at startup", "error", err)
			return
		}
		if def == nil {
			slog.Warn("no default render endpoint available")
			return
		}
		id = def.ID
	}

	if err := mon.SetDevice(id); err != nil {
		slog.Warn("failed to bind configured device", "id", id, "error", err)
		return
	}

	if snapshot.Autostart {
		if err := mon.Start(snapshot.ChunkSize); err != nil {
			slog.Warn("autostart failed", "error", err)
		}
	}
}

// printDevices writes the available render endpoints to stdout.
func printDevices() error {
	endpoints, err := device.List()
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		fmt.Println("no render endpoints found")
		return nil
	}
	for _, ep := range endpoints {
		marker := " "
		if ep.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %-40s %d Hz  %s\n", marker, ep.Name, ep.SampleRate, ep.ID)
	}
	return nil
}
