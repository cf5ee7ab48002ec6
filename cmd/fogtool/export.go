package main

import (
	"bufio"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/fogofwar/internal/fog"
	"github.com/Faultbox/fogofwar/internal/fogmesh"
)

// renderHeights draws one pixel per sub-grid point of the logical grid: white is
// full fog, grey half, black ground. Unlocking points are tinted. Row 0 is the top
// (highest z) so the image reads like a map.
func renderHeights(g fogmesh.GridReader, cellsX, cellsZ int) *image.RGBA {
	w, h := 2*cellsX+1, 2*cellsZ+1
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fh := g.FogHeight()

	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			// Logical (0,0) starts at sub-grid (2,2).
			sx, sz := px+2, (h-1-py)+2
			state := fogmesh.StateAt(g, sx, sz)
			v := uint8(255 * state.Height(fh) / fh)

			c := color.RGBA{R: v, G: v, B: v, A: 255}
			if _, hl := fogmesh.UVAt(g, sx, sz, state).Float32(); hl == 1 {
				c.B = 255
			}
			img.SetRGBA(px, py, c)
		}
	}
	return img
}

// exportBMP writes the height image of the grid.
func exportBMP(path string, g *fog.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := bmp.Encode(w, renderHeights(g, g.CellsX(), g.CellsZ())); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
