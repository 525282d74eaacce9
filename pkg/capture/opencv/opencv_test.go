package opencv

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/grid"
)

func TestMatRoundTrip(t *testing.T) {
	f := capture.SolidFrame(4, 3, 10, 20, 30)

	mat, err := MatFromFrame(f)
	if err != nil {
		t.Fatalf("MatFromFrame failed: %v", err)
	}
	defer mat.Close()

	if mat.Cols() != 4 || mat.Rows() != 3 || mat.Channels() != 3 {
		t.Fatalf("unexpected mat %dx%dx%d", mat.Cols(), mat.Rows(), mat.Channels())
	}

	got, err := FrameFromMat(mat)
	if err != nil {
		t.Fatalf("FrameFromMat failed: %v", err)
	}
	if !got.Real {
		t.Error("frames from a Mat are marked real")
	}
	if got.Width != 4 || got.Height != 3 {
		t.Errorf("expected 4x3, got %dx%d", got.Width, got.Height)
	}
	if b, g, r := got.BGR(3, 2); b != 30 || g != 20 || r != 10 {
		t.Errorf("expected BGR (30,20,10), got (%d,%d,%d)", b, g, r)
	}
}

func TestMatFromFrameCopiesPixels(t *testing.T) {
	f := capture.SolidFrame(8, 8, 100, 100, 100)

	mat, err := MatFromFrame(f)
	if err != nil {
		t.Fatalf("MatFromFrame failed: %v", err)
	}
	defer mat.Close()

	gocv.Rectangle(&mat, image.Rect(0, 0, 8, 8), color.RGBA{0, 255, 0, 0}, -1)
	if b, g, r := f.BGR(0, 0); b != 100 || g != 100 || r != 100 {
		t.Errorf("drawing on the Mat changed the frame: (%d,%d,%d)", b, g, r)
	}
}

func TestStatusLine(t *testing.T) {
	if got := StatusLine(101.04); got != "Brightness: 101.0 | q = stop" {
		t.Errorf("unexpected status line %q", got)
	}
}

func TestMatFromEmptyFrame(t *testing.T) {
	mat, err := MatFromFrame(capture.Frame{})
	defer mat.Close()
	if err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestCellLabels(t *testing.T) {
	c := grid.Cell{Bounds: image.Rect(0, 0, 10, 10), R: 7, G: 200, B: 0}
	got := CellLabels(c)
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %v", got)
	}
	if got[0] != "R:007 G:200 B:000" {
		t.Errorf("unexpected colour label %q", got[0])
	}
	if got[1] != "Br:119" {
		t.Errorf("unexpected brightness label %q", got[1])
	}
}
