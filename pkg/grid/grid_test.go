package grid

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/entropass/pkg/capture"
)

func TestReduceUniformFrame(t *testing.T) {
	colours := [][3]uint8{{0, 0, 0}, {255, 255, 255}, {12, 200, 77}, {128, 64, 32}}
	shapes := []Shape{{2, 2}, {3, 5}, {8, 12}, {12, 8}, {7, 7}}

	for _, c := range colours {
		frame := capture.SolidFrame(101, 77, c[0], c[1], c[2])
		for _, s := range shapes {
			sample, err := Reduce(frame, s)
			if err != nil {
				t.Fatalf("Reduce(%v) failed: %v", s, err)
			}
			if len(sample.Flat) != s.Rows*s.Cols*3 {
				t.Fatalf("expected %d values, got %d", s.Rows*s.Cols*3, len(sample.Flat))
			}
			for i := 0; i < len(sample.Flat); i += 3 {
				for ch := 0; ch < 3; ch++ {
					if diff := int(sample.Flat[i+ch]) - int(c[ch]); diff < -1 || diff > 1 {
						t.Errorf("shape %v cell %d channel %d: got %d want %d", s, i/3, ch, sample.Flat[i+ch], c[ch])
					}
				}
			}
		}
	}
}

func TestReduceConvertsToRGB(t *testing.T) {
	frame := capture.SolidFrame(4, 4, 10, 20, 30)
	sample, err := Reduce(frame, Shape{Rows: 2, Cols: 2})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if sample.Flat[0] != 10 || sample.Flat[1] != 20 || sample.Flat[2] != 30 {
		t.Errorf("expected RGB (10,20,30), got %v", sample.Flat[:3])
	}
}

func TestReduceRemainderCells(t *testing.T) {
	// 5 columns split in 2: cells are 2 and 3 pixels wide.
	frame := capture.Frame{Width: 5, Height: 1, Pix: make([]byte, 15)}
	for x := 0; x < 5; x++ {
		frame.Pix[x*3+2] = uint8(x * 10) // red channel = 0,10,20,30,40
	}

	cells, err := Cells(frame, Shape{Rows: 1, Cols: 2})
	if err != nil {
		t.Fatalf("Cells failed: %v", err)
	}
	if cells[0].Bounds.Dx() != 2 || cells[1].Bounds.Dx() != 3 {
		t.Errorf("expected widths 2 and 3, got %d and %d", cells[0].Bounds.Dx(), cells[1].Bounds.Dx())
	}
	if cells[0].R != 5 {
		t.Errorf("expected first cell red 5, got %d", cells[0].R)
	}
	if cells[1].R != 30 {
		t.Errorf("expected last cell red 30, got %d", cells[1].R)
	}
}

func TestReduceMetadata(t *testing.T) {
	ts := time.Unix(1700000000, 123456789)
	frame := capture.SolidFrame(40, 30, 100, 100, 100)
	frame.Timestamp = ts
	frame.Real = true

	sample, err := Reduce(frame, Shape{Rows: 3, Cols: 4})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if sample.Width != 40 || sample.Height != 30 {
		t.Errorf("expected resolution 40x30, got %dx%d", sample.Width, sample.Height)
	}
	if sample.Shape != (Shape{Rows: 3, Cols: 4}) {
		t.Errorf("unexpected shape %v", sample.Shape)
	}
	if !sample.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, sample.Timestamp)
	}
	if !sample.UsedRealDevice {
		t.Error("expected UsedRealDevice to follow the frame")
	}
	if math.Abs(sample.AvgBrightness-100) > 1e-9 {
		t.Errorf("expected brightness 100, got %f", sample.AvgBrightness)
	}
}

func TestReduceTooFine(t *testing.T) {
	frame := capture.SolidFrame(10, 4, 1, 1, 1)

	if _, err := Reduce(frame, Shape{Rows: 5, Cols: 2}); !errors.Is(err, ErrGridTooFine) {
		t.Errorf("expected ErrGridTooFine for 5 rows on 4px, got %v", err)
	}
	if _, err := Reduce(frame, Shape{Rows: 2, Cols: 11}); !errors.Is(err, ErrGridTooFine) {
		t.Errorf("expected ErrGridTooFine for 11 cols on 10px, got %v", err)
	}
	if _, err := Reduce(capture.Frame{}, Shape{Rows: 2, Cols: 2}); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestLuminance(t *testing.T) {
	frame := capture.SolidFrame(3, 3, 255, 0, 0)
	if got := Luminance(frame); math.Abs(got-WeightR*255) > 1e-9 {
		t.Errorf("expected %f, got %f", WeightR*255, got)
	}

	cell := Cell{R: 0, G: 255, B: 0}
	if got := cell.Brightness(); math.Abs(got-WeightG*255) > 1e-9 {
		t.Errorf("expected %f, got %f", WeightG*255, got)
	}
}

func TestRandomShape(t *testing.T) {
	t.Run("bounds", func(t *testing.T) {
		calls := 0
		intn := func(n int) int {
			calls++
			if n != 5 {
				t.Errorf("expected span 5, got %d", n)
			}
			return n - 1
		}
		s := RandomShape(intn, 8, 12)
		if s.Rows != 12 || s.Cols != 12 {
			t.Errorf("expected 12x12 at the top of the range, got %v", s)
		}
		if calls != 2 {
			t.Errorf("rows and cols must be drawn independently, got %d draws", calls)
		}
	})

	t.Run("min floored to 2", func(t *testing.T) {
		s := RandomShape(func(int) int { return 0 }, 0, 1)
		if s.Rows != MinSize || s.Cols != MinSize {
			t.Errorf("expected %dx%d, got %v", MinSize, MinSize, s)
		}
	})
}
