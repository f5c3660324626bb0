package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-spectrum/device"
	"github.com/oszuidwest/zwfm-spectrum/monitor"
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleAPIDevices handles GET /api/devices: the available render endpoints.
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	endpoints, err := device.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var defaultID string
	for i := range endpoints {
		if endpoints[i].IsDefault {
			defaultID = endpoints[i].ID
			break
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": endpoints,
		"default": defaultID,
	})
}

// handleAPIStatus handles GET /api/status: monitor state and parameters.
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPISpectrum handles GET /api/spectrum?bands=N: one spectrum frame
// on demand, outside the WebSocket push channel.
func (s *Server) handleAPISpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	bands := 0
	if raw := r.URL.Query().Get("bands"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "bands must be an integer")
			return
		}
		bands = n
	}

	frame, err := s.monitor.GetSpectrum(bands)
	if err != nil {
		switch {
		case errors.Is(err, monitor.ErrNotCapturing):
			s.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, monitor.ErrDeviceLost):
			s.logDeviceLost()
			s.writeError(w, http.StatusGone, err.Error())
		case errors.Is(err, monitor.ErrInvalidParameter):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, wsSpectrum{Type: "spectrum", Bands: frame})
}
