// Package capture bridges the OS's event-driven loopback audio delivery to
// the ring buffer. The delivery callback runs on a real-time miniaudio
// thread: it downmixes, converts and writes without locking or allocating.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/oszuidwest/zwfm-spectrum/device"
	"github.com/oszuidwest/zwfm-spectrum/internal/ringbuf"
)

// ErrStreamInit is returned when the loopback stream cannot be opened
// against the endpoint (in exclusive use, disconnected, access denied).
var ErrStreamInit = errors.New("failed to open loopback stream")

// scratchFrames bounds the delivery block size the engine converts per
// callback. Larger blocks indicate the backend coalesced missed periods;
// the engine keeps the newest tail and counts an overrun.
const scratchFrames = 8192

// Engine owns one loopback stream and its dedicated delivery context.
// All its exported methods are safe for concurrent use.
type Engine struct {
	ctx  *malgo.AllocatedContext
	dev  *malgo.Device
	ring *ringbuf.Ring

	channels int
	rate     uint32
	mono     []float32 // preallocated downmix scratch, callback-only

	overruns atomic.Uint64
	lost     atomic.Bool
	closing  atomic.Bool

	closeOnce sync.Once
}

// Open negotiates a loopback stream against the render endpoint with the
// given id. Sample rate and channel count follow the endpoint's native mix
// format; delivery is requested as float32. The delivery callbacks start
// before Open returns.
func Open(endpointID string, ring *ringbuf.Ring) (*Engine, error) {
	ctx, err := malgo.InitContext(device.Backends(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		freeContext(ctx)
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}
	idx := -1
	for i := range infos {
		if infos[i].ID.String() == endpointID {
			idx = i
			break
		}
	}
	if idx < 0 {
		freeContext(ctx)
		return nil, fmt.Errorf("%w: endpoint %s is no longer enumerable", ErrStreamInit, endpointID)
	}

	// Loopback devices are selected through the playback endpoint's ID on
	// the capture side of the config. Rate and channels stay zero so the
	// backend dictates the native mix format.
	cfg := malgo.DefaultDeviceConfig(malgo.Loopback)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.DeviceID = infos[idx].ID.Pointer()
	cfg.Alsa.NoMMap = 1

	e := &Engine{
		ctx:  ctx,
		ring: ring,
		mono: make([]float32, scratchFrames),
	}
	callbacks := malgo.DeviceCallbacks{
		Data: e.onFrames,
		Stop: e.onStop,
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		freeContext(ctx)
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}
	e.dev = dev
	e.channels = int(dev.CaptureChannels())
	if e.channels < 1 {
		e.channels = 1
	}
	e.rate = dev.SampleRate()

	if err := dev.Start(); err != nil {
		dev.Uninit()
		freeContext(ctx)
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}
	return e, nil
}

// onFrames is the real-time delivery callback.
func (e *Engine) onFrames(_, input []byte, frameCount uint32) {
	if !e.closing.Load() {
		e.consume(input, frameCount)
	}
}

// consume downmixes one float32 delivery block to mono by averaging the
// channels and writes it into the ring. No allocation, no locking.
func (e *Engine) consume(input []byte, frameCount uint32) {
	frames := int(frameCount)
	if frames == 0 {
		return
	}
	ch := e.channels
	if frames > len(e.mono) {
		// Capture fell behind and the backend delivered the backlog as
		// one oversized block. Keep the newest scratch-sized tail; the
		// discarded samples are old history the ring would have dropped
		// anyway.
		e.overruns.Add(1)
		input = input[(frames-len(e.mono))*ch*4:]
		frames = len(e.mono)
	}
	for f := range frames {
		sum := float32(0)
		base := f * ch * 4
		for c := range ch {
			sum += le32ToFloat(input[base+c*4:])
		}
		e.mono[f] = sum / float32(ch)
	}
	e.ring.Write(e.mono[:frames])
}

// onStop fires when the device stops. A stop the engine did not initiate
// means the endpoint was removed or disabled mid-capture.
func (e *Engine) onStop() {
	if !e.closing.Load() {
		e.lost.Store(true)
	}
}

// Close stops the delivery subscription and releases the stream. It blocks
// until the delivery callback can no longer run, so after Close returns no
// further ring writes occur. Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		e.dev.Uninit()
		freeContext(e.ctx)
	})
}

// Lost reports whether the endpoint disappeared mid-capture. The engine
// does not reconnect; the session must be torn down and reopened.
func (e *Engine) Lost() bool { return e.lost.Load() }

// Overruns returns how many oversized delivery blocks were truncated.
func (e *Engine) Overruns() uint64 { return e.overruns.Load() }

// SampleRate returns the negotiated stream sample rate in Hz.
func (e *Engine) SampleRate() uint32 { return e.rate }

// Channels returns the negotiated stream channel count.
func (e *Engine) Channels() int { return e.channels }

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// le32ToFloat decodes one little-endian float32 sample.
func le32ToFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
