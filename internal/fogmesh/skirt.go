package fogmesh

import (
	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// DefaultSkirtMargin is how far the skirt reaches past the map edge, in world units.
const DefaultSkirtMargin = 160

// skirtIndices covers the four strips: bottom, right, top, left.
var skirtIndices = []uint16{
	1, 0, 3,
	1, 3, 2,
	4, 6, 5,
	6, 7, 5,
	8, 11, 10,
	10, 9, 8,
	12, 14, 13,
	12, 15, 14,
}

// BuildSkirt writes a flat ring of fog at fogHeight around a map of the given
// size, so the camera never sees past the edge. The ring encloses the map plus
// one cell of margin per side and extends margin units outward. Positions are
// in unscaled world units with the origin at the outer corner of the cell margin.
func BuildSkirt(dst *Mesh, mapWidth, mapHeight, cellSize, margin, fogHeight float32) {
	w := mapWidth + 2*cellSize
	h := mapHeight + 2*cellSize
	m := margin

	pos := [16][2]float32{
		// bottom
		{0, 0}, {0, -m}, {w + m, -m}, {w + m, 0},
		// right
		{w, 0}, {w + m, 0}, {w, h + m}, {w + m, h + m},
		// top
		{-m, h}, {w, h}, {w, h + m}, {-m, h + m},
		// left
		{0, h}, {-m, h}, {-m, -m}, {0, -m},
	}

	dst.Kind = KindSparse
	dst.Positions = dst.Positions[:0]
	dst.UVs = dst.UVs[:0]
	for _, p := range pos {
		dst.Positions = append(dst.Positions, fmath.Vec3{X: p[0], Y: fogHeight, Z: p[1]})
		dst.UVs = append(dst.UVs, NewUV16(1, 1))
	}
	dst.Indices = append(dst.Indices[:0], skirtIndices...)
	dst.Bounds = Bounds{
		Min: fmath.Vec3{X: -m, Y: fogHeight, Z: -m},
		Max: fmath.Vec3{X: w + m, Y: fogHeight, Z: h + m},
	}
}
