// Package fogmesh turns fog grid state into triangle meshes.
//
// A block of mesh cells is emitted either sparse (one flat quad at fog height) or
// dense (per-cell triangles on a half-cell sub-grid whose heights follow the
// Locked / Half / Unlocked vertex states). Positions are in mesh space: one unit
// per cell, logical cell (0,0) starting at (1,1) because of the one-cell margin.
package fogmesh

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/x448/float16"

	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// Kind tells how a mesh was generated.
type Kind uint8

const (
	KindEmpty  Kind = iota // Never built or cleared
	KindSparse             // Single quad, 4 vertices
	KindDense              // Subdivided surface
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSparse:
		return "sparse"
	case KindDense:
		return "dense"
	default:
		return "empty"
	}
}

// UV16 is a pair of half-precision floats: U is the fog blend, V the unlocking highlight.
type UV16 struct {
	U float16.Float16
	V float16.Float16
}

// NewUV16 packs two float32 values.
func NewUV16(u, v float32) UV16 {
	return UV16{U: float16.Fromfloat32(u), V: float16.Fromfloat32(v)}
}

// Float32 unpacks the pair.
func (uv UV16) Float32() (u, v float32) {
	return uv.U.Float32(), uv.V.Float32()
}

// Bounds is an axis-aligned box.
type Bounds struct {
	Min fmath.Vec3
	Max fmath.Vec3
}

// Center returns the midpoint of the box.
func (b Bounds) Center() fmath.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the box extents.
func (b Bounds) Size() fmath.Vec3 {
	return b.Max.Sub(b.Min)
}

// Mesh is the generated output for one block. Slices are reused across rebuilds.
type Mesh struct {
	Kind      Kind
	Positions []fmath.Vec3
	UVs       []UV16
	Indices   []uint16
	Bounds    Bounds
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Positions) }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Reset empties the mesh, keeping its capacity.
func (m *Mesh) Reset() {
	m.Kind = KindEmpty
	m.Positions = m.Positions[:0]
	m.UVs = m.UVs[:0]
	m.Indices = m.Indices[:0]
	m.Bounds = Bounds{}
}

// Digest hashes the mesh contents. Two meshes with equal digests carry the same
// kind, positions, UVs and indices.
func (m *Mesh) Digest() uint64 {
	h := xxhash.New()
	buf := make([]byte, 0, 64)

	buf = append(buf, byte(m.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Positions)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Indices)))
	_, _ = h.Write(buf)

	for _, p := range m.Positions {
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.X))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Y))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Z))
		_, _ = h.Write(buf)
	}
	for _, uv := range m.UVs {
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint16(buf, uv.U.Bits())
		buf = binary.LittleEndian.AppendUint16(buf, uv.V.Bits())
		_, _ = h.Write(buf)
	}
	for _, i := range m.Indices {
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint16(buf, i)
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}

// copyFrom overwrites m with the arena contents, reusing m's slices.
func (m *Mesh) copyFrom(kind Kind, a *Arena, bounds Bounds) {
	m.Kind = kind
	m.Positions = append(m.Positions[:0], a.positions...)
	m.UVs = append(m.UVs[:0], a.uvs...)
	m.Indices = append(m.Indices[:0], a.indices...)
	m.Bounds = bounds
}
