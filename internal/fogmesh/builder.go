package fogmesh

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/fogofwar/internal/logger"
	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// ErrBlockTooLarge is returned when a block needs more vertices than the builder allows.
var ErrBlockTooLarge = errors.New("mesh block too large")

const (
	// DefaultCullThreshold is the height below which a triangle counts as ground.
	DefaultCullThreshold = 0.01
	// MaxIndexableVertices is the vertex limit of 16-bit indices.
	MaxIndexableVertices = 1 << 16
	// DefaultInitialBlock is the block extent the scratch buffers start out sized for.
	DefaultInitialBlock = 25
)

// Options configures a Builder.
type Options struct {
	CullThreshold float32    // Triangles with all heights below this are dropped
	MaxVertices   int        // Hard ceiling per block, at most MaxIndexableVertices
	Offset        fmath.Vec3 // Added to every emitted position
}

// DefaultOptions returns the standard builder settings.
func DefaultOptions() Options {
	return Options{
		CullThreshold: DefaultCullThreshold,
		MaxVertices:   MaxIndexableVertices,
	}
}

// subPoint is a sub-grid offset inside one cell, in half-cell units.
type subPoint struct{ x, z int }

// Two triangles over the whole cell: (BL, TL, BR), (TL, TR, BR).
var quadPattern = [][3]subPoint{
	{{0, 0}, {0, 2}, {2, 0}},
	{{0, 2}, {2, 2}, {2, 0}},
}

// Eight triangles fanned around the centre with corners and edge midpoints.
var diamondPattern = [][3]subPoint{
	{{0, 0}, {0, 1}, {1, 0}}, // BL, L, B
	{{2, 0}, {1, 0}, {2, 1}}, // BR, B, R
	{{0, 2}, {1, 2}, {0, 1}}, // TL, T, L
	{{2, 2}, {2, 1}, {1, 2}}, // TR, R, T
	{{1, 1}, {1, 0}, {0, 1}}, // C, B, L
	{{1, 1}, {2, 1}, {1, 0}}, // C, R, B
	{{1, 1}, {1, 2}, {2, 1}}, // C, T, R
	{{1, 1}, {0, 1}, {1, 2}}, // C, L, T
}

// Builder generates fog meshes for blocks of the grid it was created with.
//
// A Builder owns its scratch Arena and is not safe for concurrent use.
type Builder struct {
	grid  GridReader
	opts  Options
	arena Arena

	// per-build state
	startSubX int
	startSubZ int
	mapW      int
	fogHeight float32
}

// NewBuilder creates a builder reading from grid.
func NewBuilder(grid GridReader, opts Options) *Builder {
	if opts.MaxVertices <= 0 || opts.MaxVertices > MaxIndexableVertices {
		opts.MaxVertices = MaxIndexableVertices
	}
	b := &Builder{grid: grid, opts: opts}
	b.InitBuffers(DefaultInitialBlock, DefaultInitialBlock)
	return b
}

// Options returns the builder settings.
func (b *Builder) Options() Options { return b.opts }

// SetOffset changes the offset added to emitted positions.
func (b *Builder) SetOffset(offset fmath.Vec3) { b.opts.Offset = offset }

// VertexCapacity returns the current scratch capacity in vertices.
func (b *Builder) VertexCapacity() int { return b.arena.VertexCapacity() }

// InitBuffers sizes the scratch buffers for a w x h block. Smaller requests are ignored.
func (b *Builder) InitBuffers(w, h int) {
	n := min(blockVertices(max(w, 0), max(h, 0)), b.opts.MaxVertices)
	b.arena.reserve(n)
}

// blockBounds returns the mesh-space box of a block with the given top height.
func (b *Builder) blockBounds(startX, startZ, w, h int, top float32) Bounds {
	lo := fmath.Vec3{X: float32(startX), Y: 0, Z: float32(startZ)}
	hi := fmath.Vec3{X: float32(startX + w), Y: top, Z: float32(startZ + h)}
	return Bounds{Min: lo.Add(b.opts.Offset), Max: hi.Add(b.opts.Offset)}
}

// BuildSparse writes a flat quad at fog height covering the w x h block whose
// lower-left mesh cell is (startX, startZ).
func (b *Builder) BuildSparse(dst *Mesh, startX, startZ, w, h int) {
	fh := b.grid.FogHeight()
	x0, z0 := float32(startX), float32(startZ)
	x1, z1 := float32(startX+w), float32(startZ+h)

	a := &b.arena
	a.begin(0)
	corners := [4]fmath.Vec3{
		{X: x0, Y: fh, Z: z0},
		{X: x1, Y: fh, Z: z0},
		{X: x0, Y: fh, Z: z1},
		{X: x1, Y: fh, Z: z1},
	}
	for _, c := range corners {
		a.positions = append(a.positions, c.Add(b.opts.Offset))
		a.uvs = append(a.uvs, NewUV16(1, 0))
	}
	a.indices = append(a.indices, 0, 2, 1, 1, 2, 3)

	dst.copyFrom(KindSparse, a, b.blockBounds(startX, startZ, w, h, fh))
}

// BuildDense writes the subdivided surface of the w x h block whose lower-left
// mesh cell is (startX, startZ). Cells whose four corners are all Locked get two
// triangles; every other cell gets the eight-triangle fan. Triangles lying
// entirely below the cull threshold are dropped before any vertex is created.
//
// If the block needs more vertices than the builder allows, the error is logged,
// ErrBlockTooLarge is returned and dst is left unchanged.
func (b *Builder) BuildDense(dst *Mesh, startX, startZ, w, h int) error {
	if w <= 0 || h <= 0 {
		dst.Reset()
		dst.Kind = KindDense
		return nil
	}

	required := blockVertices(w, h)
	if required > b.opts.MaxVertices {
		logger.Error("Mesh size too large",
			zap.Int("startX", startX),
			zap.Int("startZ", startZ),
			zap.Int("width", w),
			zap.Int("height", h),
			zap.Int("required", required),
			zap.Int("limit", b.opts.MaxVertices))
		return fmt.Errorf("%dx%d block needs %d vertices: %w", w, h, required, ErrBlockTooLarge)
	}
	if required > b.arena.vertexCap {
		logger.Debug("growing mesh buffers",
			zap.Int("from", b.arena.vertexCap),
			zap.Int("to", required))
		b.arena.reserve(required)
	}

	b.startSubX = startX * 2
	b.startSubZ = startZ * 2
	b.mapW = 2*w + 1
	b.fogHeight = b.grid.FogHeight()
	b.arena.begin(required)

	for cz := range h {
		for cx := range w {
			gx, gz := startX+cx, startZ+cz
			pattern := diamondPattern
			if b.cellLocked(gx, gz) {
				pattern = quadPattern
			}
			subX, subZ := cx*2, cz*2
			for _, tri := range pattern {
				b.tryAddTriangle(
					subPoint{subX + tri[0].x, subZ + tri[0].z},
					subPoint{subX + tri[1].x, subZ + tri[1].z},
					subPoint{subX + tri[2].x, subZ + tri[2].z},
				)
			}
		}
	}

	dst.copyFrom(KindDense, &b.arena, b.blockBounds(startX, startZ, w, h, b.fogHeight))
	return nil
}

// cellLocked reports whether all four corners of mesh cell (gx, gz) are Locked.
func (b *Builder) cellLocked(gx, gz int) bool {
	sx, sz := gx*2, gz*2
	return StateAt(b.grid, sx, sz) == VertexLocked &&
		StateAt(b.grid, sx+2, sz) == VertexLocked &&
		StateAt(b.grid, sx, sz+2) == VertexLocked &&
		StateAt(b.grid, sx+2, sz+2) == VertexLocked
}

func (b *Builder) heightAt(p subPoint) float32 {
	return StateAt(b.grid, b.startSubX+p.x, b.startSubZ+p.z).Height(b.fogHeight)
}

func (b *Builder) tryAddTriangle(p0, p1, p2 subPoint) {
	t := b.opts.CullThreshold
	if b.heightAt(p0) < t && b.heightAt(p1) < t && b.heightAt(p2) < t {
		return
	}
	b.arena.indices = append(b.arena.indices, b.vertex(p0), b.vertex(p1), b.vertex(p2))
}

// vertex returns the index of local sub-grid point p, creating it on first use.
func (b *Builder) vertex(p subPoint) uint16 {
	a := &b.arena
	key := p.z*b.mapW + p.x
	if idx := a.indexMap[key]; idx >= 0 {
		return uint16(idx)
	}

	gsx, gsz := b.startSubX+p.x, b.startSubZ+p.z
	state := StateAt(b.grid, gsx, gsz)
	pos := fmath.Vec3{
		X: float32(gsx) * 0.5,
		Y: state.Height(b.fogHeight),
		Z: float32(gsz) * 0.5,
	}

	idx := len(a.positions)
	a.positions = append(a.positions, pos.Add(b.opts.Offset))
	a.uvs = append(a.uvs, UVAt(b.grid, gsx, gsz, state))
	a.indexMap[key] = int32(idx)
	return uint16(idx)
}
