// Package monitor exposes the audio spectrum monitor: render endpoint
// binding, loopback capture control and on-demand spectrum retrieval.
//
// A Monitor is a small state machine. It starts Unbound; SetDevice moves
// it to Bound, Start/Play to Capturing, Stop/Pause back to Bound. Exactly
// one capture session is active at a time: rebinding or restarting first
// tears the previous session down completely.
package monitor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/oszuidwest/zwfm-spectrum/device"
	"github.com/oszuidwest/zwfm-spectrum/dsp"
	"github.com/oszuidwest/zwfm-spectrum/internal/capture"
	"github.com/oszuidwest/zwfm-spectrum/internal/ringbuf"
)

// State identifies the monitor lifecycle state.
type State int

// Monitor states.
const (
	StateUnbound State = iota
	StateBound
	StateCapturing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateCapturing:
		return "capturing"
	}
	return "unknown"
}

// ringCapacity holds several of the largest supported analysis windows so
// a snapshot never chases the writer across the whole buffer.
const ringCapacity = 4 * dsp.MaxChunkSize

// session is the live capture binding owned by the monitor.
type session interface {
	Close()
	Lost() bool
	Overruns() uint64
	SampleRate() uint32
}

// openFunc opens a capture session; listFunc enumerates endpoints. Both
// are swappable for tests.
type (
	openFunc func(endpointID string, ring *ringbuf.Ring) (session, error)
	listFunc func() ([]device.Endpoint, error)
)

// Options carries per-call spectrum parameters. Zero values keep the
// current session settings.
type Options struct {
	// Bands is the number of output bands, in [dsp.MinBands, dsp.MaxBands].
	Bands int
	// Dancy is the decay-rate parameter, in (0, dsp.MaxDancy].
	Dancy float64
	// ChunkSize switches the analysis window length; switching resets the
	// smoothing state.
	ChunkSize int
}

// Monitor is the public controller. All methods are safe for concurrent
// use; concurrent GetSpectrum calls serialize on the smoothing state, not
// on the sample buffer.
type Monitor struct {
	mu       sync.Mutex
	state    State
	endpoint device.Endpoint

	ring     *ringbuf.Ring
	analyzer *dsp.Analyzer
	sess     session

	dancy float64

	open openFunc
	list listFunc
}

// New returns an unbound monitor.
func New() *Monitor {
	return newMonitor(
		func(endpointID string, ring *ringbuf.Ring) (session, error) {
			return capture.Open(endpointID, ring)
		},
		device.List,
	)
}

func newMonitor(open openFunc, list listFunc) *Monitor {
	return &Monitor{
		ring:  ringbuf.New(ringCapacity),
		dancy: dsp.DefaultDancy,
		open:  open,
		list:  list,
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Endpoint returns the bound endpoint snapshot; meaningful once bound.
func (m *Monitor) Endpoint() device.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// Overruns returns the overrun count of the active session, 0 otherwise.
func (m *Monitor) Overruns() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return 0
	}
	return m.sess.Overruns()
}

// SampleRate returns the sample rate of the active session, 0 otherwise.
func (m *Monitor) SampleRate() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return 0
	}
	return m.sess.SampleRate()
}

// SetDevice binds the render endpoint with the given id. A running capture
// session is fully stopped first, so no two streams are ever open at once.
func (m *Monitor) SetDevice(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	endpoints, err := m.list()
	if err != nil {
		return err
	}
	for i := range endpoints {
		if endpoints[i].ID == id {
			m.stopLocked()
			m.endpoint = endpoints[i]
			m.state = StateBound
			slog.Info("device bound", "device", m.endpoint.Name, "id", m.endpoint.ID)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Start opens a capture session against the bound endpoint with the given
// analysis window length and resets the smoothing state. If a session is
// already running it is stopped first.
func (m *Monitor) Start(chunkSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUnbound {
		return ErrNotBound
	}
	if !dsp.ValidChunkSize(chunkSize) {
		return fmt.Errorf("%w: chunk size %d must be a power of two in [%d, %d]",
			ErrInvalidParameter, chunkSize, dsp.MinChunkSize, dsp.MaxChunkSize)
	}
	m.stopLocked()

	if m.analyzer == nil {
		a, err := dsp.NewAnalyzer(chunkSize)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		m.analyzer = a
	} else if err := m.analyzer.SetChunkSize(chunkSize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	sess, err := m.open(m.endpoint.ID, m.ring)
	if err != nil {
		return err
	}
	m.sess = sess
	m.state = StateCapturing
	slog.Info("capture started",
		"device", m.endpoint.Name,
		"chunk_size", chunkSize,
		"sample_rate", sess.SampleRate())
	return nil
}

// Play starts capture with the default analysis window length.
func (m *Monitor) Play() error {
	return m.Start(dsp.DefaultChunkSize)
}

// Stop tears the capture session down and returns to Bound. It returns
// synchronously only after the capture context is halted: once Stop
// returns, no further buffer writes occur. Calling Stop when not capturing
// is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	return nil
}

// Pause is an alias for Stop.
func (m *Monitor) Pause() error {
	return m.Stop()
}

// stopLocked closes the active session, if any. Caller holds m.mu.
func (m *Monitor) stopLocked() {
	if m.sess == nil {
		if m.state == StateCapturing {
			m.state = StateBound
		}
		return
	}
	overruns := m.sess.Overruns()
	m.sess.Close()
	m.sess = nil
	m.state = StateBound
	if overruns > 0 {
		slog.Warn("capture session had overruns", "device", m.endpoint.Name, "count", overruns)
	}
	slog.Info("capture stopped", "device", m.endpoint.Name)
}

// GetSpectrum returns one spectrum frame with the given band count using
// the session's current dancy and chunk size. Each value is in [0, 1].
func (m *Monitor) GetSpectrum(bands int) ([]float64, error) {
	return m.GetSpectrumWith(Options{Bands: bands})
}

// GetSpectrumWith returns one spectrum frame with explicit parameters.
// Valid only while capturing. An underrun right after Start yields the
// last emitted frame (all zeros before the first), never an error.
func (m *Monitor) GetSpectrumWith(opts Options) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateCapturing {
		return nil, ErrNotCapturing
	}
	if m.sess.Lost() {
		m.stopLocked()
		return nil, ErrDeviceLost
	}

	bands := opts.Bands
	if bands == 0 {
		bands = dsp.DefaultBands
	}
	if !dsp.ValidBands(bands) {
		return nil, fmt.Errorf("%w: bands %d must be in [%d, %d]",
			ErrInvalidParameter, bands, dsp.MinBands, dsp.MaxBands)
	}
	if opts.Dancy != 0 {
		if !dsp.ValidDancy(opts.Dancy) {
			return nil, fmt.Errorf("%w: dancy %g must be in (0, %g]",
				ErrInvalidParameter, opts.Dancy, dsp.MaxDancy)
		}
		m.dancy = opts.Dancy
	}
	if opts.ChunkSize != 0 && opts.ChunkSize != m.analyzer.ChunkSize() {
		if err := m.analyzer.SetChunkSize(opts.ChunkSize); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
	}

	return m.analyzer.Frame(m.ring, bands, m.dancy), nil
}
