package capture

import (
	"errors"
	"fmt"
	"sync"
)

// Mock implements Opener for testing.
// OpenFunc decides per index whether the open succeeds.
type Mock struct {
	// OpenFunc is called for every open attempt.
	// If nil, every index opens a MockDevice filled with a mid-grey frame.
	OpenFunc func(index int, attempt int) (Device, error)

	mu       sync.Mutex
	attempts []int
	perIndex map[int]int
}

// NewMock creates a mock opener that always succeeds.
func NewMock() *Mock {
	return &Mock{}
}

// FailingIndices returns a mock that refuses the given indices and opens
// dev for any other one.
func FailingIndices(dev Device, failing ...int) *Mock {
	bad := make(map[int]bool, len(failing))
	for _, i := range failing {
		bad[i] = true
	}
	return &Mock{
		OpenFunc: func(index, _ int) (Device, error) {
			if bad[index] {
				return nil, fmt.Errorf("mock: device %d unavailable", index)
			}
			return dev, nil
		},
	}
}

// Open records the attempt and calls OpenFunc.
func (m *Mock) Open(index int) (Device, error) {
	m.mu.Lock()
	if m.perIndex == nil {
		m.perIndex = make(map[int]int)
	}
	m.attempts = append(m.attempts, index)
	m.perIndex[index]++
	attempt := m.perIndex[index]
	fn := m.OpenFunc
	m.mu.Unlock()

	if fn == nil {
		return NewMockDevice(SolidFrame(64, 48, 128, 128, 128)), nil
	}
	return fn(index, attempt)
}

// Attempts returns the indices opened so far, in call order.
func (m *Mock) Attempts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.attempts))
	copy(out, m.attempts)
	return out
}

// MockDevice replays a fixed list of frames.
type MockDevice struct {
	// ReadFunc overrides the replay behaviour when set.
	ReadFunc func(call int) (Frame, bool)

	// CloseErr is returned by every Close call.
	CloseErr error

	mu     sync.Mutex
	frames []Frame
	reads  int
	closes int
}

// NewMockDevice creates a device that yields frames in order and then
// repeats the last one.
func NewMockDevice(frames ...Frame) *MockDevice {
	return &MockDevice{frames: frames}
}

// Read returns the next scripted frame.
func (d *MockDevice) Read() (Frame, bool) {
	d.mu.Lock()
	call := d.reads
	d.reads++
	fn := d.ReadFunc
	d.mu.Unlock()

	if fn != nil {
		return fn(call)
	}
	if len(d.frames) == 0 {
		return Frame{}, false
	}
	return d.frames[min(call, len(d.frames)-1)], true
}

// Close counts the call and returns CloseErr.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return d.CloseErr
}

// Reads returns how many times Read was called.
func (d *MockDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Closes returns how many times Close was called.
func (d *MockDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// ErrMockDevice is a generic failure for scripted devices.
var ErrMockDevice = errors.New("mock: device failure")

// SolidFrame builds a width×height frame of a single colour, given as R, G, B.
func SolidFrame(width, height int, r, g, b uint8) Frame {
	pix := make([]byte, width*height*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = b, g, r
	}
	return Frame{Width: width, Height: height, Pix: pix}
}
