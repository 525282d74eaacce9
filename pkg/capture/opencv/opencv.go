// Package opencv backs capture.Opener with OpenCV video devices.
package opencv

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/entropass/pkg/capture"
)

// ErrNotOpened is returned when OpenCV accepts an index but the device does not open.
var ErrNotOpened = errors.New("opencv: device not opened")

// Opener opens OpenCV capture devices by index.
type Opener struct {
	// Width and Height request a capture resolution. Zero keeps the driver default.
	Width  int
	Height int
}

// NewOpener returns an Opener requesting res. A zero res keeps the driver default.
func NewOpener(res capture.Resolution) *Opener {
	return &Opener{Width: res.Width, Height: res.Height}
}

// Open implements capture.Opener.
func (o *Opener) Open(index int) (capture.Device, error) {
	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("opencv: open %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, ErrNotOpened
	}
	if o.Width > 0 && o.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(o.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(o.Height))
	}
	return &device{vc: vc, mat: gocv.NewMat()}, nil
}

type device struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Read grabs one frame and copies it out of the Mat as packed BGR.
func (d *device) Read() (capture.Frame, bool) {
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return capture.Frame{}, false
	}
	f, err := FrameFromMat(d.mat)
	if err != nil {
		return capture.Frame{}, false
	}
	return f, true
}

func (d *device) Close() error {
	d.mat.Close()
	return d.vc.Close()
}

// FrameFromMat converts an 8-bit Mat with 1, 3 or 4 channels to a BGR frame.
func FrameFromMat(m gocv.Mat) (capture.Frame, error) {
	if m.Empty() {
		return capture.Frame{}, errors.New("opencv: empty mat")
	}

	src := m
	switch m.Channels() {
	case 3:
	case 1, 4:
		conv := gocv.NewMat()
		defer conv.Close()
		code := gocv.ColorGrayToBGR
		if m.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		gocv.CvtColor(m, &conv, code)
		src = conv
	default:
		return capture.Frame{}, fmt.Errorf("opencv: unsupported channel count %d", m.Channels())
	}

	if !src.IsContinuous() {
		clone := src.Clone()
		defer clone.Close()
		src = clone
	}

	return capture.Frame{
		Width:     src.Cols(),
		Height:    src.Rows(),
		Pix:       src.ToBytes(),
		Timestamp: time.Now(),
		Real:      true,
	}, nil
}

// MatFromFrame wraps a copy of f in a new Mat. The caller closes it.
func MatFromFrame(f capture.Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), errors.New("opencv: empty frame")
	}
	// NewMatFromBytes keeps a pointer to the slice; drawing on the Mat must not touch f.
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, bytes.Clone(f.Pix[:f.Width*f.Height*3]))
}
