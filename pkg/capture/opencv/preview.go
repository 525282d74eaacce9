package opencv

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/grid"
)

var (
	gridColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Preview shows captured frames in a window with the sampling grid drawn over them.
type Preview struct {
	window *gocv.Window
}

// NewPreview opens a preview window titled title.
func NewPreview(title string) *Preview {
	return &Preview{window: gocv.NewWindow(title)}
}

// Show draws the overlay and pumps the window. It returns true once 'q' is pressed.
func (p *Preview) Show(f capture.Frame, s grid.Shape) bool {
	mat, err := MatFromFrame(f)
	if err != nil {
		return false
	}
	defer mat.Close()

	cells, err := grid.Cells(f, s)
	if err != nil {
		return false
	}
	for _, c := range cells {
		gocv.Rectangle(&mat, c.Bounds, gridColor, 1)
		for i, line := range CellLabels(c) {
			pt := image.Pt(c.Bounds.Min.X+3, c.Bounds.Min.Y+12+i*12)
			if pt.Y >= c.Bounds.Max.Y {
				break
			}
			gocv.PutText(&mat, line, pt, gocv.FontHersheySimplex, 0.3, labelColor, 1)
		}
	}

	gocv.PutText(&mat, StatusLine(grid.Luminance(f)),
		image.Pt(10, f.Height-10), gocv.FontHersheySimplex, 0.5, labelColor, 1)

	p.window.IMShow(mat)
	return p.window.WaitKey(1)&0xff == 'q'
}

// Close destroys the window.
func (p *Preview) Close() {
	p.window.Close()
}

// CellLabels returns the overlay text for one cell.
func CellLabels(c grid.Cell) []string {
	return []string{
		fmt.Sprintf("R:%03d G:%03d B:%03d", c.R, c.G, c.B),
		fmt.Sprintf("Br:%.0f", c.Brightness()),
	}
}

// StatusLine returns the footer shown under the grid.
func StatusLine(brightness float64) string {
	return fmt.Sprintf("Brightness: %.1f | q = stop", brightness)
}
