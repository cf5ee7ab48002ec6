package fog

import (
	"errors"
	"fmt"
	"math"

	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// ErrInvalidDimensions is returned when a grid is initialized with a non-positive map size or cell size.
var ErrInvalidDimensions = errors.New("invalid fog grid dimensions")

// Grid stores the unlock status of every logical cell and the height of every lattice corner.
//
// Cells are addressed in [0, cellsX) x [0, cellsZ). Corners are addressed in
// [0, cellsX] x [0, cellsZ]; corner (x, z) is the bottom-left corner of cell (x, z).
// The corner array is a cache derived from cell statuses (see DeriveCornerHeight).
//
// Grid is not safe for concurrent use; callers serialize access.
type Grid struct {
	corners   []float32 // row-major, (cellsX+1) per row
	cells     []Type    // row-major, cellsX per row
	fogHeight float32
	cellSize  float32
	cellsX    int
	cellsZ    int
}

// NewGrid creates a fully locked grid covering mapWidth x mapHeight world units.
func NewGrid(mapWidth, mapHeight, cellSize, fogHeight float32) (*Grid, error) {
	g := &Grid{}
	if err := g.Initialize(mapWidth, mapHeight, cellSize, fogHeight); err != nil {
		return nil, err
	}
	return g, nil
}

// Initialize (re)allocates the grid. Every cell starts Locked and every corner at fogHeight.
func (g *Grid) Initialize(mapWidth, mapHeight, cellSize, fogHeight float32) error {
	if cellSize <= 0 || mapWidth <= 0 || mapHeight <= 0 {
		return fmt.Errorf("%w: map %gx%g, cell %g", ErrInvalidDimensions, mapWidth, mapHeight, cellSize)
	}

	g.cellSize = cellSize
	g.fogHeight = fogHeight
	g.cellsX = int(math.Ceil(float64(mapWidth / cellSize)))
	g.cellsZ = int(math.Ceil(float64(mapHeight / cellSize)))

	g.corners = make([]float32, (g.cellsX+1)*(g.cellsZ+1))
	for i := range g.corners {
		g.corners[i] = fogHeight
	}

	g.cells = make([]Type, g.cellsX*g.cellsZ)
	for i := range g.cells {
		g.cells[i] = Locked
	}
	return nil
}

// CellsX returns the number of logical cells along X.
func (g *Grid) CellsX() int { return g.cellsX }

// CellsZ returns the number of logical cells along Z.
func (g *Grid) CellsZ() int { return g.cellsZ }

// CellSize returns the edge length of a cell in world units.
func (g *Grid) CellSize() float32 { return g.cellSize }

// FogHeight returns the full fog height.
func (g *Grid) FogHeight() float32 { return g.fogHeight }

func (g *Grid) inCells(x, z int) bool {
	return x >= 0 && x < g.cellsX && z >= 0 && z < g.cellsZ
}

func (g *Grid) inCorners(x, z int) bool {
	return x >= 0 && x <= g.cellsX && z >= 0 && z <= g.cellsZ
}

func (g *Grid) cornerIndex(x, z int) int {
	return z*(g.cellsX+1) + x
}

func (g *Grid) setVertexHeight(x, z int, h float32) {
	if g.inCorners(x, z) {
		g.corners[g.cornerIndex(x, z)] = h
	}
}

// UnlockCell marks a cell Unlocked and drops its four corners to the ground.
// Returns false when the cell is out of range or already unlocked, i.e. when no rebuild is needed.
func (g *Grid) UnlockCell(x, z int) bool {
	if !g.inCells(x, z) {
		return false
	}
	idx := z*g.cellsX + x
	if g.cells[idx] == Unlocked {
		return false
	}

	g.cells[idx] = Unlocked
	g.setVertexHeight(x, z, 0)     // bottom-left
	g.setVertexHeight(x+1, z, 0)   // bottom-right
	g.setVertexHeight(x+1, z+1, 0) // top-right
	g.setVertexHeight(x, z+1, 0)   // top-left
	return true
}

// SetCellUnlocking flags a cell for the reveal preview. Corner heights are untouched.
// Unlocked cells are terminal and keep their status.
func (g *Grid) SetCellUnlocking(x, z int) {
	if !g.inCells(x, z) {
		return
	}
	idx := z*g.cellsX + x
	if g.cells[idx] == Unlocked {
		return
	}
	g.cells[idx] = Unlocking
}

// GetRawType returns the stored status of a cell, or Locked outside the grid.
func (g *Grid) GetRawType(x, z int) Type {
	if !g.inCells(x, z) {
		return Locked
	}
	return g.cells[z*g.cellsX+x]
}

// GetGridInfo returns the status of a logical cell with Unlocking propagated from the
// left, lower and lower-left neighbours, so a preview covers the whole 2x2 neighbourhood.
// Out-of-range cells read as Locked.
func (g *Grid) GetGridInfo(x, z int) Type {
	if !g.inCells(x, z) {
		return Locked
	}
	if g.isUnlocking(x, z) || g.isUnlocking(x-1, z) || g.isUnlocking(x, z-1) || g.isUnlocking(x-1, z-1) {
		return Unlocking
	}
	return g.cells[z*g.cellsX+x]
}

func (g *Grid) isUnlocking(x, z int) bool {
	return g.inCells(x, z) && g.cells[z*g.cellsX+x] == Unlocking
}

// GetGridInfoMesh is GetGridInfo in mesh coordinates. The mesh lattice has a one-cell
// margin on every side: mesh (1,1) is logical (0,0) and the margin always reads Locked.
func (g *Grid) GetGridInfoMesh(meshX, meshZ int) Type {
	return g.GetGridInfo(meshX-1, meshZ-1)
}

// IsUnlockedMesh reports whether the cell at mesh coordinates is stored as Unlocked.
// No Unlocking propagation is applied, so heights never depend on the preview state.
func (g *Grid) IsUnlockedMesh(meshX, meshZ int) bool {
	return g.GetRawType(meshX-1, meshZ-1) == Unlocked
}

// InGridMesh reports whether mesh coordinates address a logical cell rather than the margin.
func (g *Grid) InGridMesh(meshX, meshZ int) bool {
	return g.inCells(meshX-1, meshZ-1)
}

// GetRawTypeMesh is GetRawType in mesh coordinates.
func (g *Grid) GetRawTypeMesh(meshX, meshZ int) Type {
	return g.GetRawType(meshX-1, meshZ-1)
}

// GetVertexHeight returns the cached corner height, or 0 outside the lattice.
func (g *Grid) GetVertexHeight(x, z int) float32 {
	if !g.inCorners(x, z) {
		return 0
	}
	return g.corners[g.cornerIndex(x, z)]
}

// GetCellCornerHeights returns the four corner heights of a cell.
// ok is false (and all heights 0) when the cell is out of range.
func (g *Grid) GetCellCornerHeights(x, z int) (bl, br, tr, tl float32, ok bool) {
	if !g.inCells(x, z) {
		return 0, 0, 0, 0, false
	}
	row := g.cellsX + 1
	base := z*row + x
	return g.corners[base], g.corners[base+1], g.corners[base+row+1], g.corners[base+row], true
}

// GetHeightAtWorldPos returns the height of the corner nearest to pos. The position is
// in grid-local units: origin at corner (0,0), one cell per cellSize, with no start
// position or global scale applied.
func (g *Grid) GetHeightAtWorldPos(pos fmath.Vec3) float32 {
	x := int(math.Round(float64(pos.X / g.cellSize)))
	z := int(math.Round(float64(pos.Z / g.cellSize)))
	return g.GetVertexHeight(x, z)
}

// DeriveCornerHeight computes a corner height from cell statuses alone:
// ground if any of the up to four cells sharing the corner is Unlocked, full fog otherwise.
func (g *Grid) DeriveCornerHeight(x, z int) float32 {
	if !g.inCorners(x, z) {
		return 0
	}
	if g.GetRawType(x-1, z-1) == Unlocked || g.GetRawType(x, z-1) == Unlocked ||
		g.GetRawType(x-1, z) == Unlocked || g.GetRawType(x, z) == Unlocked {
		return 0
	}
	return g.fogHeight
}

// RecomputeCorners rebuilds the corner cache from cell statuses.
func (g *Grid) RecomputeCorners() {
	for z := 0; z <= g.cellsZ; z++ {
		for x := 0; x <= g.cellsX; x++ {
			g.corners[g.cornerIndex(x, z)] = g.DeriveCornerHeight(x, z)
		}
	}
}

// CountByType returns the number of cells for each stored status.
func (g *Grid) CountByType() map[Type]int {
	counts := make(map[Type]int)
	for _, t := range g.cells {
		counts[t]++
	}
	return counts
}
