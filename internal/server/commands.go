package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-spectrum/device"
	"github.com/oszuidwest/zwfm-spectrum/internal/config"
	"github.com/oszuidwest/zwfm-spectrum/internal/eventlog"
	"github.com/oszuidwest/zwfm-spectrum/monitor"
)

// validate is the shared validator instance for request validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Controller is the monitor surface the command handler drives.
// *monitor.Monitor implements it.
type Controller interface {
	State() monitor.State
	Endpoint() device.Endpoint
	Overruns() uint64
	SampleRate() uint32
	SetDevice(id string) error
	Start(chunkSize int) error
	Stop() error
}

// CommandHandler processes WebSocket commands against the monitor and the
// persisted configuration.
type CommandHandler struct {
	cfg    *config.Config
	mon    Controller
	events *eventlog.Logger // nil when event logging is disabled
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, mon Controller, events *eventlog.Logger) *CommandHandler {
	return &CommandHandler{cfg: cfg, mon: mon, events: events}
}

// captureDetails snapshots the live session for event logging. It must be
// called while the session is still open: once the session is stopped the
// monitor reports zero for sample rate and overruns.
func (h *CommandHandler) captureDetails(chunkSize int) *eventlog.CaptureDetails {
	ep := h.mon.Endpoint()
	return &eventlog.CaptureDetails{
		DeviceID:   ep.ID,
		DeviceName: ep.Name,
		SampleRate: h.mon.SampleRate(),
		ChunkSize:  chunkSize,
		Overruns:   h.mon.Overruns(),
	}
}

// logCapture records a capture lifecycle event if event logging is enabled.
func (h *CommandHandler) logCapture(eventType eventlog.EventType, details *eventlog.CaptureDetails) {
	if h.events == nil {
		return
	}
	if err := h.events.LogCapture(eventType, details); err != nil {
		slog.Error("failed to write capture event", "error", err)
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "monitor/start").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	switch cmd.Type {
	case "monitor/bind":
		h.handleBind(cmd, send)
	case "monitor/start":
		h.handleStart(cmd, send)
	case "monitor/stop":
		h.handleStop(cmd, send)
	case "spectrum/configure":
		h.handleConfigure(cmd, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		return
	}

	triggerStatusUpdate()
}

// handleBind binds a render endpoint and persists the choice.
func (h *CommandHandler) handleBind(cmd WSCommand, send chan<- any) {
	var req BindRequest
	if !decodeAndValidate(cmd, send, &req) {
		return
	}
	if err := h.mon.SetDevice(req.ID); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	if err := h.cfg.SetDevice(req.ID); err != nil {
		slog.Error("failed to persist device selection", "error", err)
	}
	SendSuccess(send, cmd.Type, nil)
}

// handleStart opens the capture session.
func (h *CommandHandler) handleStart(cmd WSCommand, send chan<- any) {
	var req StartRequest
	if !decodeAndValidate(cmd, send, &req) {
		return
	}
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = h.cfg.Snapshot().ChunkSize
	}
	if err := h.mon.Start(chunkSize); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	// Keep the persisted chunk size in step with the running session so the
	// push loop analyses with the same window.
	if err := h.cfg.SetSpectrum(0, chunkSize, 0, 0); err != nil {
		slog.Error("failed to persist chunk size", "error", err)
	}
	h.logCapture(eventlog.CaptureStarted, h.captureDetails(chunkSize))
	SendSuccess(send, cmd.Type, nil)
}

// handleStop tears the capture session down. Session details are snapshotted
// before Stop: afterwards the overrun total and sample rate are gone.
func (h *CommandHandler) handleStop(cmd WSCommand, send chan<- any) {
	var details *eventlog.CaptureDetails
	if h.mon.State() == monitor.StateCapturing {
		details = h.captureDetails(h.cfg.Snapshot().ChunkSize)
	}
	if err := h.mon.Stop(); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	if details != nil {
		if details.Overruns > 0 {
			h.logCapture(eventlog.CaptureOverrun, details)
		}
		h.logCapture(eventlog.CaptureStopped, details)
	}
	SendSuccess(send, cmd.Type, nil)
}

// handleConfigure updates the shared spectrum parameters.
func (h *CommandHandler) handleConfigure(cmd WSCommand, send chan<- any) {
	var req ConfigureRequest
	if !decodeAndValidate(cmd, send, &req) {
		return
	}
	var bands, chunkSize, frameRate int
	var dancy float64
	if req.Bands != nil {
		bands = *req.Bands
	}
	if req.ChunkSize != nil {
		chunkSize = *req.ChunkSize
	}
	if req.FrameRate != nil {
		frameRate = *req.FrameRate
	}
	if req.Dancy != nil {
		dancy = *req.Dancy
	}
	if err := h.cfg.SetSpectrum(bands, chunkSize, frameRate, dancy); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// decodeAndValidate decodes JSON and validates the struct. It reports
// whether the command may proceed; on failure an error response has
// already been sent.
func decodeAndValidate[T any](cmd WSCommand, send chan<- any, data *T) bool {
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, data); err != nil {
			SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
			return false
		}
	}
	if err := validate.Struct(data); err != nil {
		sendValidationErrors(send, cmd.Type, err)
		return false
	}
	return true
}

// --- Response helpers ---

// SendSuccess sends a success response for a command.
func SendSuccess(send chan<- any, cmdType string, data any) {
	result := map[string]any{
		"type":    cmdType + "_result",
		"success": true,
	}
	if data != nil {
		result["data"] = data
	}
	trySend(send, cmdType, result)
}

// SendError sends an error response for a command.
func SendError(send chan<- any, cmdType string, err error) {
	trySend(send, cmdType, map[string]any{
		"type":    cmdType + "_result",
		"success": false,
		"error":   err.Error(),
	})
}

// sendValidationErrors converts validator errors into field/message pairs.
func sendValidationErrors(send chan<- any, cmdType string, err error) {
	fields := make([]map[string]any, 0, 1)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			fields = append(fields, map[string]any{
				"field":   e.Field(),
				"message": formatValidationMessage(e),
				"value":   e.Value(),
			})
		}
	} else {
		fields = append(fields, map[string]any{"message": err.Error()})
	}

	trySend(send, cmdType, map[string]any{
		"type":    cmdType + "_result",
		"success": false,
		"error":   map[string]any{"errors": fields},
	})
}

// trySend attempts to send a message, logging a warning if the channel is full.
func trySend(send chan<- any, cmdType string, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full or closed", "type", cmdType)
	}
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
