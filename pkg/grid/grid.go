// Package grid reduces a raw frame to a coarse, quantized colour fingerprint.
//
// The frame is split into Rows×Cols rectangular cells. Cell edges come from
// integer division of the frame size, and the last row and column absorb the
// remainder so the whole frame is covered. Each cell contributes its mean
// colour as an R, G, B byte triple.
package grid

import (
	"errors"
	"image"
	"time"

	"github.com/teslashibe/entropass/pkg/capture"
)

// ErrGridTooFine is returned when a cell would be narrower or shorter than one pixel.
var ErrGridTooFine = errors.New("grid: grid is too fine for the frame size")

// MinSize is the smallest grid dimension drawn by RandomShape.
const MinSize = 2

// Luminance weights (ITU-R BT.601).
const (
	WeightR = 0.299
	WeightG = 0.587
	WeightB = 0.114
)

// Shape is a grid size in cells.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Sample is the reduced fingerprint of one frame. It must not be modified
// after Reduce returns it.
type Sample struct {
	// Flat holds Rows×Cols RGB triples, row-major.
	Flat []uint8

	Shape Shape

	// Width and Height are the source frame resolution.
	Width  int
	Height int

	Timestamp time.Time

	// AvgBrightness is the whole-frame mean luminance (0-255).
	AvgBrightness float64

	UsedRealDevice bool
}

// Cell is the mean colour of one grid cell.
type Cell struct {
	Bounds  image.Rectangle
	R, G, B uint8
}

// Brightness returns the luminance of the cell's mean colour.
func (c Cell) Brightness() float64 {
	return WeightR*float64(c.R) + WeightG*float64(c.G) + WeightB*float64(c.B)
}

// Cells computes the per-cell mean colours of f, row-major.
// Dimensions below 1 are raised to 1.
func Cells(f capture.Frame, s Shape) ([]Cell, error) {
	if f.Empty() {
		return nil, errors.New("grid: empty frame")
	}
	rows, cols := max(1, s.Rows), max(1, s.Cols)

	cellW := f.Width / cols
	cellH := f.Height / rows
	if cellW == 0 || cellH == 0 {
		return nil, ErrGridTooFine
	}

	cells := make([]Cell, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x0, y0 := c*cellW, r*cellH
			x1, y1 := x0+cellW, y0+cellH
			if c == cols-1 {
				x1 = f.Width
			}
			if r == rows-1 {
				y1 = f.Height
			}
			cells = append(cells, meanCell(f, image.Rect(x0, y0, x1, y1)))
		}
	}
	return cells, nil
}

func meanCell(f capture.Frame, rect image.Rectangle) Cell {
	var sumB, sumG, sumR uint64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := f.Pix[(y*f.Width+rect.Min.X)*3 : (y*f.Width+rect.Max.X)*3]
		for i := 0; i < len(row); i += 3 {
			sumB += uint64(row[i])
			sumG += uint64(row[i+1])
			sumR += uint64(row[i+2])
		}
	}

	n := uint64(rect.Dx() * rect.Dy())
	// Integer division truncates the mean, matching a float mean cast to int.
	return Cell{
		Bounds: rect,
		R:      uint8(sumR / n),
		G:      uint8(sumG / n),
		B:      uint8(sumB / n),
	}
}

// Reduce builds the Sample for f using a rows×cols grid.
func Reduce(f capture.Frame, s Shape) (Sample, error) {
	cells, err := Cells(f, s)
	if err != nil {
		return Sample{}, err
	}

	flat := make([]uint8, 0, len(cells)*3)
	for _, c := range cells {
		flat = append(flat, c.R, c.G, c.B)
	}

	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return Sample{
		Flat:           flat,
		Shape:          Shape{Rows: max(1, s.Rows), Cols: max(1, s.Cols)},
		Width:          f.Width,
		Height:         f.Height,
		Timestamp:      ts,
		AvgBrightness:  Luminance(f),
		UsedRealDevice: f.Real,
	}, nil
}

// Luminance returns the mean of 0.299·R + 0.587·G + 0.114·B over all pixels.
func Luminance(f capture.Frame) float64 {
	if f.Empty() {
		return 0
	}
	var sumB, sumG, sumR uint64
	pix := f.Pix[:f.Width*f.Height*3]
	for i := 0; i < len(pix); i += 3 {
		sumB += uint64(pix[i])
		sumG += uint64(pix[i+1])
		sumR += uint64(pix[i+2])
	}
	n := float64(f.Width * f.Height)
	return (WeightR*float64(sumR) + WeightG*float64(sumG) + WeightB*float64(sumB)) / n
}

// RandomShape draws rows and cols independently and uniformly from
// [lo, hi]. lo is floored to MinSize and hi is raised to lo.
// intn must return a value in [0, n), like math/rand/v2.IntN.
func RandomShape(intn func(n int) int, lo, hi int) Shape {
	lo = max(MinSize, lo)
	hi = max(lo, hi)
	span := hi - lo + 1
	return Shape{
		Rows: lo + intn(span),
		Cols: lo + intn(span),
	}
}
