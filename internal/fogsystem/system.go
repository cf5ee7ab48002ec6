// Package fogsystem ties the fog grid, the region quadtree and the mesh builder
// together: mutations paint the affected area into the quadtree and a rebuild
// pass regenerates only the dirty regions.
//
// A System is single-threaded. Apply all mutations of a batch, then call
// RebuildDirtyLeaves; callers using it from several goroutines must serialize access.
package fogsystem

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Faultbox/fogofwar/internal/config"
	"github.com/Faultbox/fogofwar/internal/fog"
	"github.com/Faultbox/fogofwar/internal/fogmesh"
	"github.com/Faultbox/fogofwar/internal/logger"
	"github.com/Faultbox/fogofwar/internal/quadtree"
	"github.com/Faultbox/fogofwar/internal/telemetry"
	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// ErrMaskSizeMismatch is returned when a bulk unlock mask does not cover the grid exactly.
var ErrMaskSizeMismatch = errors.New("grid status bits length mismatch")

// Border strip order.
const (
	BorderBottom = iota
	BorderTop
	BorderLeft
	BorderRight
)

// RebuildStats summarizes one rebuild pass.
type RebuildStats struct {
	Rebuilt   int // Leaves regenerated
	Sparse    int
	Dense     int
	Discarded int // Meshes dropped because their node split
	Failed    int // Leaves or borders over the vertex ceiling; previous mesh kept
	Borders   int // Border strips regenerated
	Vertices  int
	Triangles int
}

// LeafMesh is the current mesh of one quadtree leaf.
type LeafMesh struct {
	Node   int
	Type   fog.Type
	Mesh   *fogmesh.Mesh
	Bounds fogmesh.Bounds // World space
}

// System owns the fog state of one map.
type System struct {
	cfg    config.FogConfig
	grid   *fog.Grid
	tree   *quadtree.Tree
	build  *fogmesh.Builder
	tracer trace.Tracer
	log    *zap.Logger

	meshes      []fogmesh.Mesh // indexed by quadtree node
	borders     [4]fogmesh.Mesh
	borderDirty bool
	skirt       fogmesh.Mesh
	preview     fogmesh.Mesh

	cellsX, cellsZ int
	transform      fmath.Mat4 // mesh space -> world
	skirtTransform fmath.Mat4
}

// New creates the fog system for the map described by cfg. Every cell starts Locked
// and the whole map is pending its first rebuild.
func New(cfg config.FogConfig, meshCfg config.MeshConfig) (*System, error) {
	if cfg.GlobalScale <= 0 {
		return nil, fmt.Errorf("global scale %v: %w", cfg.GlobalScale, config.ErrInvalid)
	}

	grid, err := fog.NewGrid(cfg.MapWidth, cfg.MapHeight, cfg.GridCellSize, cfg.FogHeight)
	if err != nil {
		return nil, fmt.Errorf("creating fog grid: %w", err)
	}

	leaf := cfg.LeafSize
	if leaf <= 0 {
		leaf = 25
	}

	s := &System{
		cfg:         cfg,
		grid:        grid,
		tree:        quadtree.New(grid.CellsX(), grid.CellsZ(), leaf),
		tracer:      telemetry.Tracer("fogsystem"),
		log:         logger.Named("fogsystem"),
		borderDirty: true,
		cellsX:      grid.CellsX(),
		cellsZ:      grid.CellsZ(),
	}
	s.meshes = make([]fogmesh.Mesh, s.tree.NodeCapacity())

	// World units per mesh cell.
	unit := cfg.GlobalScale * cfg.GridCellSize
	s.transform = fmath.TranslateScale(
		fmath.Vec3{X: -unit, Y: 0, Z: -unit},
		fmath.Vec3{X: unit, Y: 1, Z: unit},
	)
	s.skirtTransform = fmath.TranslateScale(
		fmath.Vec3{X: -unit, Y: 0, Z: -unit}.Add(cfg.StartPosition),
		fmath.Vec3{X: cfg.GlobalScale, Y: 1, Z: cfg.GlobalScale},
	)

	s.build = fogmesh.NewBuilder(grid, fogmesh.Options{
		CullThreshold: meshCfg.CullThreshold,
		MaxVertices:   meshCfg.MaxBlockVertices,
		Offset: fmath.Vec3{
			X: cfg.StartPosition.X / unit,
			Y: cfg.StartPosition.Y,
			Z: cfg.StartPosition.Z / unit,
		},
	})
	if meshCfg.InitialBlock > 0 {
		s.build.InitBuffers(meshCfg.InitialBlock, meshCfg.InitialBlock)
	}

	margin := cfg.SkirtMargin
	if margin <= 0 {
		margin = fogmesh.DefaultSkirtMargin
	}
	fogmesh.BuildSkirt(&s.skirt, cfg.MapWidth, cfg.MapHeight, cfg.GridCellSize, margin, cfg.FogHeight)

	s.log.Info("fog system ready",
		zap.Int("cellsX", s.cellsX),
		zap.Int("cellsZ", s.cellsZ),
		zap.Int("leafSize", leaf),
		zap.Int("nodeCapacity", s.tree.NodeCapacity()))

	return s, nil
}

// Grid returns the fog grid for read-only queries.
func (s *System) Grid() *fog.Grid { return s.grid }

// Tree returns the region quadtree for read-only queries.
func (s *System) Tree() *quadtree.Tree { return s.tree }

// Transform maps mesh-space positions to world space.
func (s *System) Transform() fmath.Mat4 { return s.transform }

// SkirtTransform maps skirt positions to world space.
func (s *System) SkirtTransform() fmath.Mat4 { return s.skirtTransform }

// marginAABB is the cell plus one cell on every side.
func marginAABB(x, z int) quadtree.AABB {
	return quadtree.NewAABB(x-1, z-1, x+2, z+2)
}

// UpdateFogGridInfo applies a single-cell request. Only unlocking is supported;
// returns true when the cell changed.
func (s *System) UpdateFogGridInfo(x, z int, unlock bool) bool {
	if !unlock {
		return false
	}
	if !s.grid.UnlockCell(x, z) {
		return false
	}
	s.InsertArea(marginAABB(x, z), fog.Unlocked)
	return true
}

// SetCellUnlocking marks a cell as being revealed so its region is rebuilt with the
// unlocking highlight. Unlocked and out-of-range cells are ignored.
func (s *System) SetCellUnlocking(x, z int) bool {
	if x < 0 || z < 0 || x >= s.cellsX || z >= s.cellsZ {
		return false
	}
	if t := s.grid.GetRawType(x, z); t == fog.Unlocked || t == fog.Unlocking {
		return false
	}
	s.grid.SetCellUnlocking(x, z)
	s.InsertArea(marginAABB(x, z), fog.Unlocking)
	return true
}

// TryUnlockingArea unlocks every cell whose bit is set in the packed row-major mask.
// bitLength must equal the number of logical cells and bits must hold that many
// bits; otherwise the call is rejected without touching any state.
// Returns the number of cells that changed.
func (s *System) TryUnlockingArea(bits []byte, bitLength int) (int, error) {
	total := s.cellsX * s.cellsZ
	mask, ok := fog.WrapMask(bits, bitLength)
	if bitLength != total || !ok {
		s.log.Error("Grid status bits length mismatch",
			zap.Int("expectedBits", total),
			zap.Int("actualBits", bitLength),
			zap.Int("bytes", len(bits)))
		return 0, fmt.Errorf("expected %d bits in %d bytes, got %d bits in %d bytes: %w",
			total, fog.MaskByteLen(total), bitLength, len(bits), ErrMaskSizeMismatch)
	}

	changed := 0
	for z := range s.cellsZ {
		for x := range s.cellsX {
			if !mask.Get(z*s.cellsX + x) {
				continue
			}
			if s.grid.UnlockCell(x, z) {
				s.InsertArea(marginAABB(x, z), fog.Unlocked)
				changed++
			}
		}
	}

	s.log.Debug("area unlocked", zap.Int("cells", changed), zap.Int("setBits", mask.Count()))
	return changed, nil
}

// UnlockMask is TryUnlockingArea for a Mask.
func (s *System) UnlockMask(m *fog.Mask) (int, error) {
	return s.TryUnlockingArea(m.Bytes(), m.Len())
}

// InsertArea paints aabb into the quadtree. Areas touching the grid edge also
// mark the border strips for rebuild.
func (s *System) InsertArea(aabb quadtree.AABB, t fog.Type) {
	s.tree.Insert(aabb, t)
	if aabb.Min.X <= 0 || aabb.Max.X >= s.cellsX || aabb.Min.Z <= 0 || aabb.Max.Z >= s.cellsZ {
		s.borderDirty = true
	}
}

// RebuildDirtyLeaves regenerates the meshes of every dirty leaf and drops the
// meshes of nodes that split since the last pass. Cost follows the number of
// dirty nodes, not the map size. Afterwards no node is dirty.
func (s *System) RebuildDirtyLeaves(ctx context.Context) RebuildStats {
	_, span := s.tracer.Start(ctx, "fog.rebuild")
	defer span.End()

	var stats RebuildStats
	if s.borderDirty {
		s.buildBorders(&stats)
		s.borderDirty = false
	}

	for _, i := range s.tree.DirtyNodes() {
		if !s.tree.IsLeaf(i) {
			s.meshes[i].Reset()
			s.tree.MarkRebuilt(i)
			stats.Discarded++
			continue
		}

		m := &s.meshes[i]
		if err := s.buildLeaf(m, i); err != nil {
			stats.Failed++
		} else if m.Kind == fogmesh.KindSparse {
			stats.Sparse++
		} else {
			stats.Dense++
		}
		s.tree.MarkRebuilt(i)
		stats.Rebuilt++
		stats.Vertices += m.VertexCount()
		stats.Triangles += m.TriangleCount()
	}

	span.SetAttributes(
		attribute.Int("fog.rebuilt", stats.Rebuilt),
		attribute.Int("fog.sparse", stats.Sparse),
		attribute.Int("fog.dense", stats.Dense),
		attribute.Int("fog.discarded", stats.Discarded),
		attribute.Int("fog.failed", stats.Failed),
		attribute.Int("fog.borders", stats.Borders),
		attribute.Int("fog.triangles", stats.Triangles),
	)
	if stats.Rebuilt > 0 || stats.Borders > 0 {
		s.log.Debug("fog rebuilt",
			zap.Int("leaves", stats.Rebuilt),
			zap.Int("discarded", stats.Discarded),
			zap.Int("failed", stats.Failed),
			zap.Int("triangles", stats.Triangles))
	}
	return stats
}

// buildLeaf regenerates the mesh of leaf i. Logical cell (x,z) is mesh cell (x+1,z+1).
func (s *System) buildLeaf(m *fogmesh.Mesh, i int) error {
	lo, hi := s.tree.GetNodeBounds(i)
	w, h := hi.X-lo.X, hi.Z-lo.Z

	if s.tree.GetNodeType(i) == fog.Locked {
		s.build.BuildSparse(m, lo.X+1, lo.Z+1, w, h)
		return nil
	}
	return s.build.BuildDense(m, lo.X+1, lo.Z+1, w, h)
}

// buildBorders regenerates the four one-cell strips covering the mesh margin.
func (s *System) buildBorders(stats *RebuildStats) {
	meshW, meshH := s.cellsX+2, s.cellsZ+2
	strips := [4][4]int{
		BorderBottom: {0, 0, meshW, 1},
		BorderTop:    {0, meshH - 1, meshW, 1},
		BorderLeft:   {0, 1, 1, meshH - 2},
		BorderRight:  {meshW - 1, 1, 1, meshH - 2},
	}
	for i, r := range strips {
		if err := s.build.BuildDense(&s.borders[i], r[0], r[1], r[2], r[3]); err != nil {
			stats.Failed++
			continue
		}
		stats.Borders++
	}
}

// LeafMeshes returns the current mesh of every leaf in node order.
func (s *System) LeafMeshes() []LeafMesh {
	leaves := s.tree.Leaves()
	out := make([]LeafMesh, 0, len(leaves))
	for _, i := range leaves {
		m := &s.meshes[i]
		out = append(out, LeafMesh{
			Node:   i,
			Type:   s.tree.GetNodeType(i),
			Mesh:   m,
			Bounds: s.WorldBounds(m),
		})
	}
	return out
}

// LeafMesh returns the mesh stored for node i, or nil for an invalid index.
func (s *System) LeafMesh(i int) *fogmesh.Mesh {
	if i < 0 || i >= len(s.meshes) {
		return nil
	}
	return &s.meshes[i]
}

// BorderMeshes returns the bottom, top, left and right margin strips.
func (s *System) BorderMeshes() [4]*fogmesh.Mesh {
	return [4]*fogmesh.Mesh{&s.borders[0], &s.borders[1], &s.borders[2], &s.borders[3]}
}

// SkirtMesh returns the flat fog ring around the map, see SkirtTransform.
func (s *System) SkirtMesh() *fogmesh.Mesh { return &s.skirt }

// WorldBounds returns the world-space box of a mesh built by this system.
func (s *System) WorldBounds(m *fogmesh.Mesh) fogmesh.Bounds {
	lo, hi := s.transform.TransformBox(m.Bounds.Min, m.Bounds.Max)
	return fogmesh.Bounds{Min: lo, Max: hi}
}

// BuildUnlockingPreview builds a dense mesh over the given cells and their 3x3
// neighbourhoods from the current grid state, for the caller to fade out while
// the cells are being revealed. The mesh is reused by the next call.
func (s *System) BuildUnlockingPreview(cells []quadtree.Point) (*fogmesh.Mesh, error) {
	if len(cells) == 0 {
		s.preview.Reset()
		return &s.preview, nil
	}

	minX, minZ := cells[0].X, cells[0].Z
	maxX, maxZ := minX, minZ
	for _, c := range cells[1:] {
		minX, maxX = min(minX, c.X), max(maxX, c.X)
		minZ, maxZ = min(minZ, c.Z), max(maxZ, c.Z)
	}

	// One neighbour on each side (-1), shifted into mesh coordinates (+1).
	startX, startZ := minX, minZ
	w, h := maxX-minX+3, maxZ-minZ+3

	if err := s.build.BuildDense(&s.preview, startX, startZ, w, h); err != nil {
		return nil, err
	}
	return &s.preview, nil
}
