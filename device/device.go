// Package device enumerates the audio render endpoints of the system
// audio subsystem via miniaudio. Endpoints are immutable snapshots taken
// at enumeration time; identity is the opaque ID string.
package device

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/gen2brain/malgo"
)

// ErrEnumeration is returned when the audio subsystem cannot be queried,
// for example because the audio service is unavailable.
var ErrEnumeration = errors.New("audio endpoint enumeration failed")

// Endpoint describes one render endpoint at enumeration time.
type Endpoint struct {
	// ID is the opaque endpoint identifier.
	ID string `json:"id"`
	// Name is the endpoint display name.
	Name string `json:"name"`
	// IsDefault reports whether this was the default render endpoint.
	IsDefault bool `json:"is_default"`
	// SampleRate is the endpoint's native sample rate in Hz, 0 if unknown.
	SampleRate uint32 `json:"sample_rate"`
	// PreferredBufferSize is the suggested delivery block size in frames,
	// 0 if unknown.
	PreferredBufferSize uint32 `json:"preferred_buffer_size,omitzero"`
}

// Backends returns the miniaudio backend preference for the current OS.
// Loopback capture requires WASAPI; on other systems the native backend is
// used for enumeration.
func Backends() []malgo.Backend {
	switch runtime.GOOS {
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	}
	return nil
}

// withContext runs fn with a short-lived miniaudio context.
func withContext(fn func(ctx *malgo.AllocatedContext) error) error {
	ctx, err := malgo.InitContext(Backends(), malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnumeration, err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()
	return fn(ctx)
}

// List returns all currently enabled render endpoints. Order is
// backend-defined and not guaranteed stable across calls.
func List() ([]Endpoint, error) {
	var endpoints []Endpoint
	err := withContext(func(ctx *malgo.AllocatedContext) error {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEnumeration, err)
		}
		endpoints = make([]Endpoint, 0, len(infos))
		for i := range infos {
			endpoints = append(endpoints, newEndpoint(&infos[i]))
		}
		return nil
	})
	return endpoints, err
}

// Default returns the current default render endpoint, or nil when none is
// configured (headless systems). Absence is a normal value, not an error.
func Default() (*Endpoint, error) {
	endpoints, err := List()
	if err != nil {
		return nil, err
	}
	for i := range endpoints {
		if endpoints[i].IsDefault {
			return &endpoints[i], nil
		}
	}
	return nil, nil
}

// newEndpoint builds an Endpoint snapshot from device info. The preferred
// buffer size is derived from the first native data format as one 10 ms
// period; miniaudio does not expose the device period at enumeration time.
func newEndpoint(info *malgo.DeviceInfo) Endpoint {
	ep := Endpoint{
		ID:        info.ID.String(),
		Name:      info.Name(),
		IsDefault: info.IsDefault != 0,
	}
	if info.FormatCount > 0 {
		ep.SampleRate = info.Formats[0].SampleRate
		ep.PreferredBufferSize = ep.SampleRate / 100
	}
	return ep
}
