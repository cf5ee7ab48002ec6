package fogmesh

import (
	"github.com/Faultbox/fogofwar/internal/fog"
)

// GridReader is the read-only view of the fog grid the builder samples.
// All coordinates are mesh coordinates: logical cell (0,0) is mesh (1,1) and the
// one-cell margin around the grid reads as Locked.
type GridReader interface {
	IsUnlockedMesh(meshX, meshZ int) bool
	GetRawTypeMesh(meshX, meshZ int) fog.Type
	InGridMesh(meshX, meshZ int) bool
	FogHeight() float32
}

// VertexState is the reveal level of a sub-grid point.
type VertexState uint8

const (
	VertexLocked VertexState = iota
	VertexHalf
	VertexUnlocked
)

// String returns the state name.
func (s VertexState) String() string {
	switch s {
	case VertexLocked:
		return "Locked"
	case VertexHalf:
		return "Half"
	case VertexUnlocked:
		return "Unlocked"
	default:
		return "Unknown"
	}
}

// Height maps a vertex state to its fog surface height.
func (s VertexState) Height(fogHeight float32) float32 {
	switch s {
	case VertexHalf:
		return fogHeight * 0.5
	case VertexUnlocked:
		return 0
	default:
		return fogHeight
	}
}

// sharing returns the mesh cells that contain sub-grid point (subX, subZ):
// one for a centre, two for an edge midpoint, four for a corner.
func sharing(subX, subZ int) ([4][2]int, int) {
	gx, gz := subX>>1, subZ>>1
	halfX, halfZ := subX&1 == 1, subZ&1 == 1

	var cells [4][2]int
	switch {
	case halfX && halfZ:
		cells[0] = [2]int{gx, gz}
		return cells, 1
	case halfX:
		cells[0] = [2]int{gx, gz}
		cells[1] = [2]int{gx, gz - 1}
		return cells, 2
	case halfZ:
		cells[0] = [2]int{gx, gz}
		cells[1] = [2]int{gx - 1, gz}
		return cells, 2
	default:
		cells[0] = [2]int{gx - 1, gz - 1}
		cells[1] = [2]int{gx, gz - 1}
		cells[2] = [2]int{gx - 1, gz}
		cells[3] = [2]int{gx, gz}
		return cells, 4
	}
}

// StateAt computes the vertex state of sub-grid point (subX, subZ). Sub-grid
// coordinates are mesh coordinates doubled, so odd values land on cell centres
// and edge midpoints. Only stored Unlocked status is consulted; Unlocking never
// changes geometry.
func StateAt(g GridReader, subX, subZ int) VertexState {
	gx, gz := subX>>1, subZ>>1
	halfX, halfZ := subX&1 == 1, subZ&1 == 1

	if halfX && halfZ {
		if g.IsUnlockedMesh(gx, gz) {
			return VertexUnlocked
		}
		n := 0
		for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			if g.IsUnlockedMesh(gx+d[0], gz+d[1]) {
				n++
			}
		}
		if n >= 2 {
			return VertexHalf
		}
		return VertexLocked
	}

	cells, count := sharing(subX, subZ)
	unlocked, inGrid := 0, 0
	for _, c := range cells[:count] {
		if g.InGridMesh(c[0], c[1]) {
			inGrid++
		}
		if g.IsUnlockedMesh(c[0], c[1]) {
			unlocked++
		}
	}

	if halfX || halfZ {
		if unlocked > 0 {
			return VertexUnlocked
		}
		return VertexLocked
	}

	// A map corner touches a single logical cell; it opens fully with that cell
	// and leaves the ramp to the border strip.
	switch {
	case unlocked == 0:
		return VertexLocked
	case unlocked >= 2 || unlocked == inGrid:
		return VertexUnlocked
	default:
		return VertexHalf
	}
}

// unlockingAt reports whether any cell containing the sub-grid point is stored as Unlocking.
func unlockingAt(g GridReader, subX, subZ int) bool {
	cells, count := sharing(subX, subZ)
	for _, c := range cells[:count] {
		if g.GetRawTypeMesh(c[0], c[1]) == fog.Unlocking {
			return true
		}
	}
	return false
}

// UVAt returns the (blend, highlight) pair for a sub-grid point in the given state.
// Blend is 1 for fog, 0.5 for half and 0 for ground; highlight is 1 while a cell
// touching the point is Unlocking, in which case blend collapses to fog or ground.
func UVAt(g GridReader, subX, subZ int, state VertexState) UV16 {
	if unlockingAt(g, subX, subZ) {
		if state == VertexLocked {
			return NewUV16(1, 1)
		}
		return NewUV16(0, 1)
	}
	switch state {
	case VertexUnlocked:
		return NewUV16(0, 0)
	case VertexHalf:
		return NewUV16(0.5, 0)
	default:
		return NewUV16(1, 0)
	}
}
