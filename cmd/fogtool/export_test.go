package main

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/fogofwar/internal/fog"
)

func newTestGrid(t *testing.T) *fog.Grid {
	t.Helper()
	g, err := fog.NewGrid(4, 4, 1, 6)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestRenderHeights(t *testing.T) {
	g := newTestGrid(t)
	g.UnlockCell(1, 1)

	img := renderHeights(g, g.CellsX(), g.CellsZ())
	if b := img.Bounds(); b.Dx() != 9 || b.Dy() != 9 {
		t.Fatalf("size = %dx%d, want 9x9", b.Dx(), b.Dy())
	}

	tests := []struct {
		name   string
		px, py int
		want   uint8
	}{
		// Row 0 is the top of the map.
		{"unlocked centre", 3, 5, 0},
		{"half corner", 2, 6, 127},
		{"far locked corner", 8, 0, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := img.RGBAAt(tt.px, tt.py)
			if c.R != tt.want {
				t.Errorf("pixel (%d,%d) = %d, want %d", tt.px, tt.py, c.R, tt.want)
			}
		})
	}
}

func TestRenderHeights_UnlockingTint(t *testing.T) {
	g := newTestGrid(t)
	g.SetCellUnlocking(2, 2)

	img := renderHeights(g, g.CellsX(), g.CellsZ())
	// Centre of cell (2,2) is sub (7,7): px 5, py 8-5.
	c := img.RGBAAt(5, 3)
	if c.R != 255 || c.B != 255 {
		t.Errorf("unlocking centre = %v, want locked height with blue tint", c)
	}
	if c := img.RGBAAt(0, 8); c.B != c.R {
		t.Errorf("untouched corner tinted: %v", c)
	}
}

func TestExportBMP(t *testing.T) {
	g := newTestGrid(t)
	g.UnlockCell(0, 0)

	path := filepath.Join(t.TempDir(), "fog.bmp")
	if err := exportBMP(path, g); err != nil {
		t.Fatalf("exportBMP: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img, err := bmp.Decode(f)
	if err != nil {
		t.Fatalf("bmp.Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 9 || b.Dy() != 9 {
		t.Errorf("decoded size = %dx%d, want 9x9", b.Dx(), b.Dy())
	}
	// Cell (0,0) centre: sub (3,3) -> px 1, py 7.
	if r, _, _, _ := img.At(1, 7).RGBA(); r != 0 {
		t.Errorf("unlocked centre red = %d, want 0", r)
	}
	if r, _, _, _ := img.At(8, 0).RGBA(); r != 0xffff {
		t.Errorf("locked corner red = %d, want 0xffff", r)
	}
}
