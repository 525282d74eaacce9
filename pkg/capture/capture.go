// Package capture acquires raw frames from an unreliable camera.
//
// A Camera wraps an Opener (the device driver) and adds the acquisition
// policy: probing several device indices with retries, reading with a
// deadline, and a release that never fails. Backends live in subpackages
// (see capture/opencv); Mock is provided for tests and CI without hardware.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Default acquisition parameters.
const (
	DefaultMaxIndex     = 5
	DefaultRetries      = 5
	DefaultRetryDelay   = 500 * time.Millisecond
	DefaultPollInterval = 50 * time.Millisecond

	// MinReadTimeout is the floor applied to every read deadline.
	MinReadTimeout = 100 * time.Millisecond
)

// Frame is one raw image: interleaved 8-bit samples in B, G, R order, row-major.
type Frame struct {
	Width  int
	Height int
	Pix    []byte

	// Timestamp is the instant the frame was accepted by ReadFrame.
	Timestamp time.Time

	// Real is true when the frame came from physical hardware.
	Real bool
}

// Empty reports whether the frame carries no usable pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*3
}

// Clone returns a copy of f that shares no pixel memory with it.
func (f Frame) Clone() Frame {
	f.Pix = bytes.Clone(f.Pix)
	return f
}

// BGR returns the sample at column x, row y.
func (f Frame) BGR(x, y int) (b, g, r uint8) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Device is an opened capture device.
type Device interface {
	// Read grabs the next frame. ok is false when the device had nothing to give.
	Read() (frame Frame, ok bool)

	// Close releases the device.
	Close() error
}

// Opener opens a device by index.
type Opener interface {
	Open(index int) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(index int) (Device, error)

// Open calls f(index).
func (f OpenerFunc) Open(index int) (Device, error) {
	return f(index)
}

// OpenOptions controls which indices are probed and how hard.
type OpenOptions struct {
	// PreferredIndex is always tried first.
	PreferredIndex int `json:"preferred_index"`

	// ProbeOthers appends every other index in [0, MaxIndex] in ascending order.
	ProbeOthers bool `json:"probe_others"`
	MaxIndex    int  `json:"max_index"`

	// Retries is the number of attempts per index (at least 1).
	Retries int `json:"retries"`

	// RetryDelay is slept after every failed attempt. Zero disables it.
	RetryDelay time.Duration `json:"retry_delay"`
}

// DefaultOpenOptions returns the command-line defaults.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		PreferredIndex: 0,
		ProbeOthers:    true,
		MaxIndex:       DefaultMaxIndex,
		Retries:        DefaultRetries,
		RetryDelay:     DefaultRetryDelay,
	}
}

// Candidates returns the ordered list of indices Open will try.
func (o OpenOptions) Candidates() []int {
	indices := []int{o.PreferredIndex}
	if !o.ProbeOthers {
		return indices
	}
	for i := 0; i <= o.MaxIndex; i++ {
		if i != o.PreferredIndex {
			indices = append(indices, i)
		}
	}
	return indices
}

// Camera applies the open/read/release policy on top of an Opener.
type Camera struct {
	opener Opener
	logger *slog.Logger

	// PollInterval is the pause between unsuccessful reads.
	PollInterval time.Duration

	// Diag, when set, receives one line per failed open attempt.
	Diag io.Writer

	now   func() time.Time
	sleep func(time.Duration)
}

// NewCamera creates a Camera over the given opener.
func NewCamera(opener Opener, logger *slog.Logger) *Camera {
	if logger == nil {
		logger = slog.Default()
	}
	return &Camera{
		opener:       opener,
		logger:       logger.With("component", "capture"),
		PollInterval: DefaultPollInterval,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// Handle is an exclusively owned, opened device.
type Handle struct {
	Index   int
	Attempt int

	device Device
	logger *slog.Logger
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

// Open tries each candidate index up to opts.Retries times and returns the
// first device that opens. No further indices are probed after a success.
func (c *Camera) Open(opts OpenOptions) (*Handle, error) {
	retries := max(1, opts.Retries)
	var last *OpenError

	for _, index := range opts.Candidates() {
		for attempt := 1; attempt <= retries; attempt++ {
			dev, err := c.opener.Open(index)
			if err == nil && dev != nil {
				c.logger.Info("camera.opened", "index", index, "attempt", attempt)
				return &Handle{Index: index, Attempt: attempt, device: dev, logger: c.logger}, nil
			}
			if err == nil {
				err = fmt.Errorf("device %d returned no handle", index)
			}

			last = &OpenError{Index: index, Attempt: attempt, Err: err}
			c.logger.Warn("camera.open_failed", "index", index, "attempt", attempt, "error", err)
			if c.Diag != nil {
				fmt.Fprintf(c.Diag, "[diag] camera open failed index=%d attempt=%d: %v\n", index, attempt, err)
			}

			if opts.RetryDelay > 0 {
				c.sleep(opts.RetryDelay)
			}
		}
	}

	if last == nil {
		return nil, ErrDeviceOpen
	}
	return nil, last
}

// ReadFrame polls the device until a valid frame arrives or timeout elapses.
// A frame is valid when the read succeeds and carries pixels. Reads are not
// interruptible; callers needing cancellation must abandon the whole session.
func (c *Camera) ReadFrame(h *Handle, timeout time.Duration) (Frame, error) {
	if h == nil || h.isClosed() {
		return Frame{}, ErrReleased
	}

	poll := c.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	deadline := c.now().Add(max(MinReadTimeout, timeout))
	for {
		frame, ok := h.device.Read()
		if ok && !frame.Empty() {
			frame.Timestamp = c.now()
			return frame, nil
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return Frame{}, ErrReadTimeout
		}
		c.sleep(min(poll, remaining))
	}
}

// Release closes the device. It is idempotent and never fails; close errors
// and panics from the driver are logged and dropped.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				h.logger.Warn("camera.release_panic", "index", h.Index, "panic", r)
			}
		}()
		if err := h.device.Close(); err != nil {
			h.logger.Debug("camera.release_failed", "index", h.Index, "error", err)
		}
	})
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
