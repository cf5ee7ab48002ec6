package fogmesh

import (
	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// Arena holds the scratch buffers of one builder. Buffers grow to the largest
// block seen and are never shrunk.
type Arena struct {
	positions []fmath.Vec3
	uvs       []UV16
	indices   []uint16
	indexMap  []int32 // sub-grid point -> vertex index, -1 when not materialised

	vertexCap int
}

// VertexCapacity returns the number of vertices the arena can hold without growing.
func (a *Arena) VertexCapacity() int { return a.vertexCap }

// blockVertices returns the worst-case vertex count of a w x h block.
func blockVertices(w, h int) int {
	return (2*w + 1) * (2*h + 1)
}

// reserve makes room for n vertices and 6n indices.
func (a *Arena) reserve(n int) {
	if n <= a.vertexCap {
		return
	}
	a.positions = make([]fmath.Vec3, 0, n)
	a.uvs = make([]UV16, 0, n)
	a.indices = make([]uint16, 0, 6*n)
	a.indexMap = make([]int32, n)
	a.vertexCap = n
}

// begin clears the output buffers and the first n entries of the index map.
func (a *Arena) begin(n int) {
	a.positions = a.positions[:0]
	a.uvs = a.uvs[:0]
	a.indices = a.indices[:0]
	m := a.indexMap[:n]
	for i := range m {
		m[i] = -1
	}
}
