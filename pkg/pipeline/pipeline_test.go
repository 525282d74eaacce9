package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/entropy"
	"github.com/teslashibe/entropass/pkg/grid"
	"github.com/teslashibe/entropass/pkg/password"
)

type fixedSalt []byte

func (f fixedSalt) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = f[i%len(f)]
	}
	return len(p), nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.FrameInterval = 0
	opts.FrameTimeout = 100 * time.Millisecond
	opts.GridMin, opts.GridMax = 2, 4
	opts.Open = capture.OpenOptions{PreferredIndex: 0, ProbeOthers: true, MaxIndex: 2, Retries: 1}
	return opts
}

func newTestGenerator(t *testing.T, opener capture.Opener) *Generator {
	t.Helper()
	builder, err := entropy.NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	return New(capture.NewCamera(opener, nil), builder, password.NewSynthesizer(nil), testOptions(), nil)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func TestFramesFor(t *testing.T) {
	tests := []struct{ length, want int }{
		{0, 1}, {1, 1}, {4, 1}, {5, 1}, {6, 2}, {12, 3}, {16, 4}, {30, 6},
	}
	for _, tt := range tests {
		if got := FramesFor(tt.length); got != tt.want {
			t.Errorf("FramesFor(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func TestGenerate(t *testing.T) {
	dev := capture.NewMockDevice(
		capture.SolidFrame(64, 48, 10, 20, 30),
		capture.SolidFrame(64, 48, 200, 100, 50),
		capture.SolidFrame(64, 48, 90, 90, 90),
	)
	mock := capture.FailingIndices(dev, 0)
	gen := newTestGenerator(t, mock)
	var log eventLog
	gen.OnEvent = log.add

	res, err := gen.Generate(context.Background(), password.DefaultRequest(12))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if res.Length != 12 || len([]rune(res.Password)) != 12 {
		t.Errorf("expected a 12 character password, got %q (length %d)", res.Password, res.Length)
	}
	if res.FramesUsed != 3 || len(res.Samples) != 3 {
		t.Errorf("expected 3 frames, got %d (%d samples)", res.FramesUsed, len(res.Samples))
	}
	if res.ID == "" {
		t.Error("expected a request ID")
	}
	for i, s := range res.Samples {
		if s.Shape.Rows < 2 || s.Shape.Rows > 4 || s.Shape.Cols < 2 || s.Shape.Cols > 4 {
			t.Errorf("sample %d: shape %v outside [2,4]", i, s.Shape)
		}
		if len(s.Flat) != s.Shape.Rows*s.Shape.Cols*3 {
			t.Errorf("sample %d: flat length %d does not match shape %v", i, len(s.Flat), s.Shape)
		}
	}
	if res.Samples[1].Flat[0] != 200 {
		t.Errorf("samples out of capture order: second sample starts with %d", res.Samples[1].Flat[0])
	}
	if dev.Closes() != 1 {
		t.Errorf("expected device to be released once, got %d", dev.Closes())
	}

	want := []EventType{
		EventSessionOpened,
		EventFrameCaptured, EventFrameCaptured, EventFrameCaptured,
		EventDigestBuilt,
		EventPasswordGenerated,
	}
	got := log.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if log.events[0].Device != 1 {
		t.Errorf("expected device 1 after index 0 failed, got %d", log.events[0].Device)
	}
}

func TestGenerateInvalidRequestSkipsCamera(t *testing.T) {
	mock := capture.NewMock()
	gen := newTestGenerator(t, mock)

	_, err := gen.Generate(context.Background(), password.DefaultRequest(2))
	if !errors.Is(err, password.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(mock.Attempts()) != 0 {
		t.Errorf("camera must not be opened for an invalid request, attempts %v", mock.Attempts())
	}
	if Classify(err) != CategoryRequest {
		t.Errorf("expected request category, got %q", Classify(err))
	}
}

func TestGenerateDeviceOpenFailure(t *testing.T) {
	mock := &capture.Mock{
		OpenFunc: func(int, int) (capture.Device, error) {
			return nil, errors.New("v4l2: /dev/video0: EACCES")
		},
	}
	gen := newTestGenerator(t, mock)
	var log eventLog
	gen.OnEvent = log.add

	_, err := gen.Generate(context.Background(), password.DefaultRequest(16))
	if !errors.Is(err, capture.ErrDeviceOpen) {
		t.Fatalf("expected ErrDeviceOpen, got %v", err)
	}
	if Classify(err) != CategoryDevice {
		t.Errorf("expected device category, got %q", Classify(err))
	}
	if msg := PublicMessage(err); strings.Contains(msg, "EACCES") || msg == "" {
		t.Errorf("public message must be generic, got %q", msg)
	}
	if got := log.types(); len(got) != 1 || got[0] != EventFailed {
		t.Errorf("expected a single failure event, got %v", got)
	}
}

func TestGenerateReadTimeout(t *testing.T) {
	dev := capture.NewMockDevice()
	gen := newTestGenerator(t, capture.FailingIndices(dev))

	_, err := gen.Generate(context.Background(), password.DefaultRequest(10))
	if !errors.Is(err, capture.ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
	if Classify(err) != CategoryCapture {
		t.Errorf("expected capture category, got %q", Classify(err))
	}
	if dev.Closes() != 1 {
		t.Errorf("device must be released after a failed read, closes=%d", dev.Closes())
	}
}

func TestGenerateGridTooFine(t *testing.T) {
	dev := capture.NewMockDevice(capture.SolidFrame(1, 1, 1, 1, 1))
	gen := newTestGenerator(t, capture.FailingIndices(dev))

	_, err := gen.Generate(context.Background(), password.DefaultRequest(10))
	if !errors.Is(err, grid.ErrGridTooFine) {
		t.Fatalf("expected ErrGridTooFine, got %v", err)
	}
	if Classify(err) != CategoryInternal {
		t.Errorf("expected internal category, got %q", Classify(err))
	}
}

func TestGenerateContextCancelled(t *testing.T) {
	dev := capture.NewMockDevice(capture.SolidFrame(16, 16, 1, 2, 3))
	gen := newTestGenerator(t, capture.FailingIndices(dev))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, password.DefaultRequest(10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if dev.Closes() != 1 {
		t.Errorf("device must be released on cancellation, closes=%d", dev.Closes())
	}
}

type stopAfter struct {
	n      int
	shown  int
	closed bool
}

func (p *stopAfter) Show(capture.Frame, grid.Shape) bool {
	p.shown++
	return p.shown > p.n
}

func (p *stopAfter) Close() { p.closed = true }

func TestCapturePreviewStop(t *testing.T) {
	t.Run("after one frame", func(t *testing.T) {
		dev := capture.NewMockDevice(capture.SolidFrame(16, 16, 1, 2, 3))
		gen := newTestGenerator(t, capture.FailingIndices(dev))
		preview := &stopAfter{n: 1}
		gen.Preview = preview

		samples, err := gen.Capture(context.Background(), 4)
		if err != nil {
			t.Fatalf("Capture failed: %v", err)
		}
		if len(samples) != 1 {
			t.Errorf("expected 1 sample before the preview closed, got %d", len(samples))
		}
		if !preview.closed {
			t.Error("preview must be closed when the session ends")
		}
	})

	t.Run("before any frame", func(t *testing.T) {
		dev := capture.NewMockDevice(capture.SolidFrame(16, 16, 1, 2, 3))
		gen := newTestGenerator(t, capture.FailingIndices(dev))
		gen.Preview = &stopAfter{n: 0}

		if _, err := gen.Capture(context.Background(), 4); !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	})
}

// paintingPreview draws a green top row into every frame it is shown,
// the way an on-screen overlay does.
type paintingPreview struct{}

func (paintingPreview) Show(f capture.Frame, _ grid.Shape) bool {
	for x := 0; x < f.Width; x++ {
		i := x * 3
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = 0, 255, 0
	}
	return false
}

func (paintingPreview) Close() {}

func TestCapturePreviewDoesNotAlterSamples(t *testing.T) {
	src := capture.SolidFrame(16, 16, 100, 100, 100)
	dev := capture.NewMockDevice(src)
	gen := newTestGenerator(t, capture.FailingIndices(dev))
	gen.intn = func(int) int { return 0 }
	gen.Preview = paintingPreview{}

	samples, err := gen.Capture(context.Background(), 2)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	for i, s := range samples {
		for j, v := range s.Flat {
			if v != 100 {
				t.Fatalf("sample %d value %d = %d, want 100", i, j, v)
			}
		}
		if math.Abs(s.AvgBrightness-100) > 1e-6 {
			t.Errorf("sample %d brightness = %.2f, want 100", i, s.AvgBrightness)
		}
	}
	if b, g, r := src.BGR(0, 0); b != 100 || g != 100 || r != 100 {
		t.Errorf("device frame modified: (%d,%d,%d)", b, g, r)
	}
}

func TestCaptureUsesRandomShape(t *testing.T) {
	dev := capture.NewMockDevice(capture.SolidFrame(32, 32, 1, 2, 3))
	gen := newTestGenerator(t, capture.FailingIndices(dev))
	draws := []int{0, 2, 1, 1}
	gen.intn = func(n int) int {
		v := draws[0]
		draws = draws[1:]
		return v
	}

	samples, err := gen.Capture(context.Background(), 2)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if samples[0].Shape != (grid.Shape{Rows: 2, Cols: 4}) {
		t.Errorf("first shape = %v, want 2x4", samples[0].Shape)
	}
	if samples[1].Shape != (grid.Shape{Rows: 3, Cols: 3}) {
		t.Errorf("second shape = %v, want 3x3", samples[1].Shape)
	}
}

func fixedScenarioSamples() []grid.Sample {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	flat := []uint8{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120}
	sample := grid.Sample{
		Flat:           flat,
		Shape:          grid.Shape{Rows: 2, Cols: 2},
		Width:          640,
		Height:         480,
		Timestamp:      ts,
		AvgBrightness:  128.0,
		UsedRealDevice: true,
	}
	return []grid.Sample{sample, sample}
}

func TestDeriveReproducibleWithFixedSalt(t *testing.T) {
	synth := password.NewSynthesizer(nil)
	req := password.DefaultRequest(12)

	derive := func(salt []byte) string {
		t.Helper()
		b, err := entropy.NewBuilder(entropy.WithSaltSource(fixedSalt(salt)))
		if err != nil {
			t.Fatalf("NewBuilder failed: %v", err)
		}
		pw, err := Derive(fixedScenarioSamples(), req, b, synth)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		return pw
	}

	saltA := bytes.Repeat([]byte{0x5A}, 16)
	saltB := bytes.Repeat([]byte{0xA5}, 16)

	first, second := derive(saltA), derive(saltA)
	if first != second {
		t.Errorf("fixed salt must reproduce the password: %q vs %q", first, second)
	}
	if len([]rune(first)) != 12 {
		t.Errorf("expected 12 characters, got %q", first)
	}
	if other := derive(saltB); other == first {
		t.Errorf("changing the salt must change the password, both %q", first)
	}
}

func TestPublicMessage(t *testing.T) {
	if PublicMessage(nil) != "" {
		t.Error("expected empty message for nil")
	}
	_, err := password.NewSynthesizer(nil).Synthesize(password.DefaultRequest(99), nil)
	if msg := PublicMessage(err); !strings.Contains(msg, "between 4 and 30") {
		t.Errorf("expected the request reason, got %q", msg)
	}
	if msg := PublicMessage(errors.New("cgo: segfault at 0x0")); strings.Contains(msg, "segfault") {
		t.Errorf("internal detail leaked: %q", msg)
	}
}
