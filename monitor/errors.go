package monitor

import (
	"errors"

	"github.com/oszuidwest/zwfm-spectrum/internal/capture"
)

// Error taxonomy for monitor operations. All errors are comparable with
// [errors.Is]; failures carrying detail wrap these sentinels.
var (
	// ErrDeviceNotFound is returned by SetDevice when the id does not
	// match a currently enumerable render endpoint.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrStreamInit is returned by Start when the loopback stream cannot
	// be opened (device busy, denied or disconnected at open time).
	ErrStreamInit = capture.ErrStreamInit

	// ErrNotBound is returned by Start when no endpoint has been set.
	ErrNotBound = errors.New("no device bound")

	// ErrNotCapturing is returned by GetSpectrum outside of capture.
	ErrNotCapturing = errors.New("monitor is not capturing")

	// ErrInvalidParameter is returned for out-of-range chunk sizes, band
	// counts or dancy values.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrDeviceLost is returned when the endpoint disappeared mid-capture.
	// The session is torn down; bind and start again to resume.
	ErrDeviceLost = errors.New("capture device lost")
)
