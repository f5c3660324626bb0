package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/oszuidwest/zwfm-spectrum/device"
	"github.com/oszuidwest/zwfm-spectrum/internal/config"
	"github.com/oszuidwest/zwfm-spectrum/internal/eventlog"
	"github.com/oszuidwest/zwfm-spectrum/internal/server"
	"github.com/oszuidwest/zwfm-spectrum/monitor"
)

// Server is an HTTP server that exposes the spectrum monitor over
// WebSocket and a small REST API.
type Server struct {
	config   *config.Config
	monitor  *monitor.Monitor
	commands *server.CommandHandler
	events   *eventlog.Logger
	version  *VersionChecker
}

// NewServer returns a new Server configured with the provided config and monitor.
func NewServer(cfg *config.Config, mon *monitor.Monitor, events *eventlog.Logger) *Server {
	return &Server{
		config:   cfg,
		monitor:  mon,
		commands: server.NewCommandHandler(cfg, mon, events),
		events:   events,
		version:  NewVersionChecker(),
	}
}

// wsSpectrum is one spectrum frame pushed to WebSocket clients.
type wsSpectrum struct {
	Type  string    `json:"type"`
	Bands []float64 `json:"bands"`
}

// wsStatus is the periodic status message pushed to WebSocket clients.
type wsStatus struct {
	Type       string            `json:"type"`
	State      string            `json:"state"`
	Device     *device.Endpoint  `json:"device,omitempty"`
	Devices    []device.Endpoint `json:"devices"`
	SampleRate uint32            `json:"sample_rate,omitempty"`
	Overruns   uint64            `json:"overruns"`
	Spectrum   wsSpectrumConfig  `json:"spectrum"`
	Platform   string            `json:"platform"`
	Version    VersionInfo       `json:"version"`
}

// wsSpectrumConfig mirrors the active analysis parameters.
type wsSpectrumConfig struct {
	Bands     int     `json:"bands"`
	ChunkSize int     `json:"chunk_size"`
	Dancy     float64 `json:"dancy"`
	FrameRate int     `json:"frame_rate"`
}

// handleWebSocket handles bidirectional WebSocket communication for
// real-time spectrum and status updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes spectrum frames at the configured frame rate
// and status updates every few seconds.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	frameRate := s.config.Snapshot().FrameRate
	spectrumTicker := time.NewTicker(frameInterval(frameRate))
	statusTicker := time.NewTicker(3000 * time.Millisecond)
	defer spectrumTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			// A command may have changed the frame rate.
			if fr := s.config.Snapshot().FrameRate; fr != frameRate {
				frameRate = fr
				spectrumTicker.Reset(frameInterval(frameRate))
			}
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-spectrumTicker.C:
			frame, ok := s.spectrumFrame()
			if !ok {
				continue
			}
			if !trySend(wsSpectrum{Type: "spectrum", Bands: frame}) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// frameInterval converts a frames-per-second rate to a ticker interval.
func frameInterval(frameRate int) time.Duration {
	if frameRate <= 0 {
		frameRate = config.DefaultFrameRate
	}
	return time.Second / time.Duration(frameRate)
}

// spectrumFrame fetches one frame with the configured analysis parameters.
// It reports false when there is nothing to push.
func (s *Server) spectrumFrame() ([]float64, bool) {
	cfg := s.config.Snapshot()
	frame, err := s.monitor.GetSpectrumWith(monitor.Options{
		Bands:     cfg.Bands,
		Dancy:     cfg.Dancy,
		ChunkSize: cfg.ChunkSize,
	})
	if err != nil {
		if errors.Is(err, monitor.ErrDeviceLost) {
			slog.Warn("capture device lost", "device", s.monitor.Endpoint().Name)
			s.logDeviceLost()
		} else if !errors.Is(err, monitor.ErrNotCapturing) {
			slog.Error("spectrum frame failed", "error", err)
		}
		return nil, false
	}
	return frame, true
}

// logDeviceLost records a device loss event if event logging is enabled.
func (s *Server) logDeviceLost() {
	if s.events == nil {
		return
	}
	ep := s.monitor.Endpoint()
	err := s.events.LogCapture(eventlog.DeviceLost, &eventlog.CaptureDetails{
		DeviceID:   ep.ID,
		DeviceName: ep.Name,
	})
	if err != nil {
		slog.Error("failed to write device lost event", "error", err)
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() wsStatus {
	cfg := s.config.Snapshot()

	endpoints, err := device.List()
	if err != nil {
		slog.Error("device enumeration failed", "error", err)
		endpoints = nil
	}

	status := wsStatus{
		Type:       "status",
		State:      s.monitor.State().String(),
		Devices:    endpoints,
		SampleRate: s.monitor.SampleRate(),
		Overruns:   s.monitor.Overruns(),
		Spectrum: wsSpectrumConfig{
			Bands:     cfg.Bands,
			ChunkSize: cfg.ChunkSize,
			Dancy:     cfg.Dancy,
			FrameRate: cfg.FrameRate,
		},
		Platform: runtime.GOOS,
		Version:  s.version.Info(),
	}
	if s.monitor.State() != monitor.StateUnbound {
		ep := s.monitor.Endpoint()
		status.Device = &ep
	}
	return status
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/devices", s.handleAPIDevices)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/spectrum", s.handleAPISpectrum)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().Port)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
