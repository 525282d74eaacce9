// Package pipeline runs one password derivation end to end:
// open camera, read frames, reduce to grids, digest, synthesize.
//
// Each Generate call owns its device handle for the duration of the call.
// The Generator holds no per-request state, but the camera itself is a
// single physical resource: callers serving concurrent requests must
// serialize access (see pkg/web).
package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/entropy"
	"github.com/teslashibe/entropass/pkg/grid"
	"github.com/teslashibe/entropass/pkg/password"
)

// CharsPerFrame sets how many password characters each captured frame backs.
const CharsPerFrame = 5

// Options tunes a capture session.
type Options struct {
	// FrameInterval is the pause between consecutive frames.
	FrameInterval time.Duration `json:"frame_interval"`

	// FrameTimeout bounds each frame read.
	FrameTimeout time.Duration `json:"frame_timeout"`

	// GridMin and GridMax bound the random grid size per frame.
	GridMin int `json:"grid_min"`
	GridMax int `json:"grid_max"`

	Open capture.OpenOptions `json:"open"`
}

// DefaultOptions returns the command-line capture defaults.
func DefaultOptions() Options {
	return Options{
		FrameInterval: 350 * time.Millisecond,
		FrameTimeout:  2 * time.Second,
		GridMin:       8,
		GridMax:       12,
		Open:          capture.DefaultOpenOptions(),
	}
}

// FramesFor returns how many frames to capture for a password of length n.
func FramesFor(n int) int {
	return max(1, (n+CharsPerFrame-1)/CharsPerFrame)
}

// Previewer shows frames while they are captured.
type Previewer interface {
	// Show displays f with a s-sized grid overlay. Returning true stops the capture.
	Show(f capture.Frame, s grid.Shape) (stop bool)
	Close()
}

// EventType names a progress event.
type EventType string

const (
	EventSessionOpened     EventType = "session.opened"
	EventFrameCaptured     EventType = "frame.captured"
	EventDigestBuilt       EventType = "digest.built"
	EventPasswordGenerated EventType = "password.generated"
	EventFailed            EventType = "session.failed"
)

// Event reports pipeline progress. It never carries the password or salt.
type Event struct {
	Type       EventType `json:"type"`
	RequestID  string    `json:"request_id"`
	Time       time.Time `json:"time"`
	Device     int       `json:"device,omitempty"`
	Frame      int       `json:"frame,omitempty"`
	Total      int       `json:"total,omitempty"`
	Rows       int       `json:"rows,omitempty"`
	Cols       int       `json:"cols,omitempty"`
	Brightness float64   `json:"brightness,omitempty"`
	Length     int       `json:"length,omitempty"`
	Category   Category  `json:"category,omitempty"`
}

// Result is the outcome of a successful Generate.
type Result struct {
	ID         string
	Password   string
	Length     int
	FramesUsed int

	// Samples is the ordered capture, kept for optional backups.
	Samples []grid.Sample
}

// Generator runs capture sessions.
type Generator struct {
	camera  *capture.Camera
	builder *entropy.Builder
	synth   *password.Synthesizer
	opts    Options
	logger  *slog.Logger

	// Preview, when set, is shown every frame and closed when the session ends.
	Preview Previewer

	// OnEvent receives progress events. It must not block.
	OnEvent func(Event)

	intn  func(n int) int
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Generator.
func New(camera *capture.Camera, builder *entropy.Builder, synth *password.Synthesizer, opts Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		camera:  camera,
		builder: builder,
		synth:   synth,
		opts:    opts,
		logger:  logger.With("component", "pipeline"),
		intn:    rand.IntN,
		sleep:   sleepContext,
	}
}

// Generate validates req, captures FramesFor(req.Length) frames and derives
// the password. Capture errors abort the whole request; nothing is retried
// beyond device acquisition.
func (g *Generator) Generate(ctx context.Context, req password.Request) (*Result, error) {
	id := uuid.NewString()
	logger := g.logger.With("request_id", id)

	if err := g.synth.Validate(req); err != nil {
		return nil, err
	}

	samples, err := g.capture(ctx, id, FramesFor(req.Length))
	if err != nil {
		g.fail(logger, id, err)
		return nil, err
	}

	digest, err := g.builder.Build(samples)
	if err != nil {
		g.fail(logger, id, err)
		return nil, err
	}
	g.emit(Event{Type: EventDigestBuilt, RequestID: id, Total: len(samples)})

	pw, err := g.synth.Synthesize(req, entropy.NewStream(digest))
	if err != nil {
		g.fail(logger, id, err)
		return nil, err
	}

	logger.Info("password.generated", "length", req.Length, "frames_used", len(samples))
	g.emit(Event{Type: EventPasswordGenerated, RequestID: id, Length: req.Length, Total: len(samples)})

	return &Result{
		ID:         id,
		Password:   pw,
		Length:     len([]rune(pw)),
		FramesUsed: len(samples),
		Samples:    samples,
	}, nil
}

// Capture opens the camera and returns up to frames samples in capture order.
func (g *Generator) Capture(ctx context.Context, frames int) ([]grid.Sample, error) {
	return g.capture(ctx, uuid.NewString(), frames)
}

func (g *Generator) capture(ctx context.Context, id string, frames int) ([]grid.Sample, error) {
	frames = max(1, frames)
	logger := g.logger.With("request_id", id)

	handle, err := g.camera.Open(g.opts.Open)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	if g.Preview != nil {
		defer g.Preview.Close()
	}

	logger.Info("capture.session_opened", "device", handle.Index, "attempt", handle.Attempt, "frames", frames)
	g.emit(Event{Type: EventSessionOpened, RequestID: id, Device: handle.Index, Total: frames})

	samples := make([]grid.Sample, 0, frames)
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := g.camera.ReadFrame(handle, g.opts.FrameTimeout)
		if err != nil {
			return nil, err
		}

		shape := grid.RandomShape(g.intn, g.opts.GridMin, g.opts.GridMax)
		// The preview draws its overlay into the pixels it is given.
		if g.Preview != nil && g.Preview.Show(frame.Clone(), shape) {
			logger.Info("capture.preview_closed", "frames", len(samples))
			break
		}

		sample, err := grid.Reduce(frame, shape)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)

		logger.Info("capture.frame",
			"index", i,
			"grid_rows", shape.Rows,
			"grid_cols", shape.Cols,
			"brightness", sample.AvgBrightness,
		)
		g.emit(Event{
			Type:       EventFrameCaptured,
			RequestID:  id,
			Frame:      i + 1,
			Total:      frames,
			Rows:       shape.Rows,
			Cols:       shape.Cols,
			Brightness: sample.AvgBrightness,
		})

		if i < frames-1 {
			if err := g.sleep(ctx, g.opts.FrameInterval); err != nil {
				return nil, err
			}
		}
	}

	if len(samples) == 0 {
		return nil, ErrCancelled
	}
	return samples, nil
}

// Derive turns an already captured sequence into a password.
func Derive(samples []grid.Sample, req password.Request, b *entropy.Builder, s *password.Synthesizer) (string, error) {
	if err := s.Validate(req); err != nil {
		return "", err
	}
	digest, err := b.Build(samples)
	if err != nil {
		return "", err
	}
	return s.Synthesize(req, entropy.NewStream(digest))
}

func (g *Generator) fail(logger *slog.Logger, id string, err error) {
	cat := Classify(err)
	logger.Error("request.failed", "category", cat, "error", err)
	g.emit(Event{Type: EventFailed, RequestID: id, Category: cat})
}

func (g *Generator) emit(e Event) {
	if g.OnEvent == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	g.OnEvent(e)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
