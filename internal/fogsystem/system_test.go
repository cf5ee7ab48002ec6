package fogsystem

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/fogofwar/internal/config"
	"github.com/Faultbox/fogofwar/internal/fog"
	"github.com/Faultbox/fogofwar/internal/fogmesh"
	"github.com/Faultbox/fogofwar/internal/logger"
	"github.com/Faultbox/fogofwar/internal/quadtree"
	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// unitConfig describes a map of w x h one-unit cells at the world origin.
func unitConfig(w, h, leaf int) config.FogConfig {
	return config.FogConfig{
		MapWidth:     float32(w),
		MapHeight:    float32(h),
		GridCellSize: 1,
		FogHeight:    6,
		GlobalScale:  1,
		LeafSize:     leaf,
	}
}

func newSystem(t *testing.T, w, h, leaf int) *System {
	t.Helper()
	s, err := New(unitConfig(w, h, leaf), config.Default().Mesh)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func assertClean(t *testing.T, s *System) {
	t.Helper()
	for i := range s.Tree().NodeCapacity() {
		if s.Tree().IsDirty(i) {
			t.Fatalf("node %d still dirty after rebuild", i)
		}
	}
}

func TestNew_DefaultMap(t *testing.T) {
	cfg := config.Default()
	s, err := New(cfg.Fog, cfg.Mesh)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.Grid().CellsX() != 400 || s.Grid().CellsZ() != 400 {
		t.Errorf("grid %dx%d, want 400x400", s.Grid().CellsX(), s.Grid().CellsZ())
	}
	if s.Tree().NodeCapacity() != 341 {
		t.Errorf("NodeCapacity() = %d, want 341", s.Tree().NodeCapacity())
	}

	stats := s.RebuildDirtyLeaves(context.Background())
	if stats.Rebuilt != 1 || stats.Sparse != 1 || stats.Borders != 4 {
		t.Errorf("first rebuild %+v", stats)
	}

	leaves := s.LeafMeshes()
	if len(leaves) != 1 {
		t.Fatalf("got %d leaves, want 1", len(leaves))
	}
	want := fogmesh.Bounds{
		Min: fmath.Vec3{X: 0, Y: 6, Z: 0},
		Max: fmath.Vec3{X: 1200, Y: 12, Z: 1200},
	}
	if leaves[0].Bounds != want {
		t.Errorf("root world bounds = %+v, want %+v", leaves[0].Bounds, want)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := unitConfig(10, 10, 4)
	cfg.GridCellSize = 0
	if _, err := New(cfg, config.Default().Mesh); !errors.Is(err, fog.ErrInvalidDimensions) {
		t.Errorf("err = %v, want ErrInvalidDimensions", err)
	}

	cfg = unitConfig(10, 10, 4)
	cfg.GlobalScale = 0
	if _, err := New(cfg, config.Default().Mesh); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestUpdateFogGridInfo(t *testing.T) {
	s := newSystem(t, 12, 12, 25)
	s.RebuildDirtyLeaves(context.Background())

	if s.UpdateFogGridInfo(5, 5, false) {
		t.Error("re-locking should be a no-op")
	}
	if !s.UpdateFogGridInfo(5, 5, true) {
		t.Fatal("first unlock returned false")
	}
	if s.UpdateFogGridInfo(5, 5, true) {
		t.Error("second unlock returned true")
	}
	if s.UpdateFogGridInfo(12, 0, true) {
		t.Error("out-of-range unlock returned true")
	}

	stats := s.RebuildDirtyLeaves(context.Background())
	if stats.Dense != 1 {
		t.Errorf("rebuild %+v, want one dense leaf", stats)
	}
	assertClean(t, s)

	if bl, br, tr, tl, ok := s.Grid().GetCellCornerHeights(5, 5); !ok || bl != 0 || br != 0 || tr != 0 || tl != 0 {
		t.Errorf("corners of (5,5) = %v %v %v %v", bl, br, tr, tl)
	}

	m := s.LeafMesh(s.Tree().LeafAt(5, 5))
	if m.TriangleCount() == 0 {
		t.Fatal("leaf mesh is empty")
	}
	for i := range m.TriangleCount() {
		top := float32(0)
		for _, idx := range m.Indices[i*3 : i*3+3] {
			top = max(top, m.Positions[idx].Y)
		}
		if top < config.Default().Mesh.CullThreshold {
			t.Fatalf("triangle %d should have been culled", i)
		}
	}
}

func TestTryUnlockingArea_SizeMismatch(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	t.Cleanup(logger.SetLogger(zap.New(core)))

	s := newSystem(t, 4, 4, 25)
	s.RebuildDirtyLeaves(context.Background())

	tests := []struct {
		name   string
		bits   []byte
		length int
	}{
		{"short bit count", []byte{0xFF, 0xFF}, 15},
		{"long bit count", []byte{0xFF, 0xFF, 0xFF}, 17},
		{"short byte slice", []byte{0xFF}, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.TryUnlockingArea(tt.bits, tt.length)
			if !errors.Is(err, ErrMaskSizeMismatch) {
				t.Fatalf("err = %v, want ErrMaskSizeMismatch", err)
			}
			if n != 0 {
				t.Errorf("changed %d cells", n)
			}
			if got := s.Grid().CountByType()[fog.Unlocked]; got != 0 {
				t.Errorf("%d cells unlocked after rejected call", got)
			}
			if len(s.Tree().DirtyNodes()) != 0 {
				t.Error("rejected call dirtied the quadtree")
			}
		})
	}

	if got := logs.FilterMessage("Grid status bits length mismatch").Len(); got != len(tests) {
		t.Errorf("logged %d mismatch errors, want %d", got, len(tests))
	}
}

func TestTryUnlockingArea_FullMask(t *testing.T) {
	s := newSystem(t, 4, 4, 25)

	n, err := s.TryUnlockingArea([]byte{0xFF, 0xFF}, 16)
	if err != nil {
		t.Fatalf("TryUnlockingArea: %v", err)
	}
	if n != 16 {
		t.Errorf("changed %d cells, want 16", n)
	}
	if got := s.Grid().CountByType()[fog.Unlocked]; got != 16 {
		t.Errorf("%d cells unlocked, want 16", got)
	}

	s.RebuildDirtyLeaves(context.Background())
	assertClean(t, s)

	leaves := s.LeafMeshes()
	if len(leaves) != 1 || leaves[0].Type != fog.Unlocked {
		t.Fatalf("leaves = %+v", leaves)
	}
	if m := leaves[0].Mesh; m.Kind != fogmesh.KindDense || m.TriangleCount() != 0 {
		t.Errorf("fully unlocked leaf: kind %v, %d triangles", m.Kind, m.TriangleCount())
	}
	// The fog wall now lives in the margin strips.
	for i, b := range s.BorderMeshes() {
		if b.TriangleCount() == 0 {
			t.Errorf("border %d is empty", i)
		}
	}

	// Already unlocked cells do not count again.
	if n, _ := s.TryUnlockingArea([]byte{0xFF, 0xFF}, 16); n != 0 {
		t.Errorf("second call changed %d cells", n)
	}
}

func TestUnlockMask_Pattern(t *testing.T) {
	s := newSystem(t, 4, 2, 25)
	mask, err := fog.ParseMaskPattern("1000" + "0001")
	if err != nil {
		t.Fatalf("ParseMaskPattern: %v", err)
	}

	if n, err := s.UnlockMask(mask); err != nil || n != 2 {
		t.Fatalf("UnlockMask = %d, %v", n, err)
	}
	if s.Grid().GetRawType(0, 0) != fog.Unlocked || s.Grid().GetRawType(3, 1) != fog.Unlocked {
		t.Error("mask bits were not applied row-major")
	}
	if s.Grid().GetRawType(1, 0) != fog.Locked {
		t.Error("unset bit unlocked a cell")
	}
}

func TestRebuild_DirtyConvergence(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	s := newSystem(t, 100, 100, 10)

	for round := range 5 {
		for range 40 {
			x, z := rng.Intn(100), rng.Intn(100)
			if rng.Intn(4) == 0 {
				s.SetCellUnlocking(x, z)
			} else {
				s.UpdateFogGridInfo(x, z, true)
			}
		}
		stats := s.RebuildDirtyLeaves(context.Background())
		if stats.Rebuilt == 0 {
			t.Errorf("round %d rebuilt nothing", round)
		}
		assertClean(t, s)

		if again := s.RebuildDirtyLeaves(context.Background()); again.Rebuilt != 0 || again.Discarded != 0 {
			t.Errorf("round %d: second pass did work: %+v", round, again)
		}
	}
}

func TestRebuild_IncrementalMatchesFromScratch(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	type op struct {
		x, z      int
		unlocking bool
	}
	var ops []op
	for range 300 {
		ops = append(ops, op{rng.Intn(60), rng.Intn(60), rng.Intn(5) == 0})
	}

	apply := func(s *System, o op) {
		if o.unlocking {
			s.SetCellUnlocking(o.x, o.z)
		} else {
			s.UpdateFogGridInfo(o.x, o.z, true)
		}
	}

	incremental := newSystem(t, 60, 60, 8)
	for i, o := range ops {
		apply(incremental, o)
		if i%7 == 0 {
			incremental.RebuildDirtyLeaves(context.Background())
		}
	}
	incremental.RebuildDirtyLeaves(context.Background())

	scratch := newSystem(t, 60, 60, 8)
	for _, o := range ops {
		apply(scratch, o)
	}
	scratch.RebuildDirtyLeaves(context.Background())

	a, b := incremental.LeafMeshes(), scratch.LeafMeshes()
	if len(a) != len(b) {
		t.Fatalf("leaf count %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Node != b[i].Node {
			t.Fatalf("leaf %d: node %d vs %d", i, a[i].Node, b[i].Node)
		}
		if a[i].Mesh.Digest() != b[i].Mesh.Digest() {
			t.Errorf("node %d: incremental mesh differs from full rebuild", a[i].Node)
		}
	}
	for i, m := range incremental.BorderMeshes() {
		if m.Digest() != scratch.BorderMeshes()[i].Digest() {
			t.Errorf("border %d differs", i)
		}
	}
}

func TestInsertArea_BorderDirty(t *testing.T) {
	s := newSystem(t, 100, 100, 25)
	s.RebuildDirtyLeaves(context.Background())

	s.UpdateFogGridInfo(50, 50, true)
	if stats := s.RebuildDirtyLeaves(context.Background()); stats.Borders != 0 {
		t.Errorf("interior unlock rebuilt %d borders", stats.Borders)
	}

	tests := []struct {
		name string
		x, z int
	}{
		{"near left edge", 1, 50},
		{"bottom edge", 40, 0},
		{"right edge", 99, 10},
		{"top edge", 60, 98},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.UpdateFogGridInfo(tt.x, tt.z, true)
			if stats := s.RebuildDirtyLeaves(context.Background()); stats.Borders != 4 {
				t.Errorf("rebuilt %d borders, want 4", stats.Borders)
			}
		})
	}
}

func TestRebuild_DiscardsSplitNodes(t *testing.T) {
	s := newSystem(t, 100, 100, 25)
	s.RebuildDirtyLeaves(context.Background())
	if s.LeafMesh(0).Kind != fogmesh.KindSparse {
		t.Fatal("root should start sparse")
	}

	s.UpdateFogGridInfo(50, 50, true)
	stats := s.RebuildDirtyLeaves(context.Background())

	if stats.Discarded == 0 {
		t.Errorf("no meshes discarded: %+v", stats)
	}
	if m := s.LeafMesh(0); m.Kind != fogmesh.KindEmpty || m.VertexCount() != 0 {
		t.Errorf("split root kept its mesh: %v, %d vertices", m.Kind, m.VertexCount())
	}
	for _, l := range s.LeafMeshes() {
		if l.Mesh.Kind == fogmesh.KindEmpty {
			t.Errorf("leaf %d has no mesh", l.Node)
		}
	}
}

func TestRebuild_CapacityFailureKeepsMesh(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	t.Cleanup(logger.SetLogger(zap.New(core)))

	meshCfg := config.Default().Mesh
	meshCfg.MaxBlockVertices = 100
	s, err := New(unitConfig(30, 30, 30), meshCfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.RebuildDirtyLeaves(context.Background())
	before := s.LeafMesh(0).Digest()

	s.UpdateFogGridInfo(5, 5, true)
	stats := s.RebuildDirtyLeaves(context.Background())

	if stats.Failed == 0 {
		t.Fatalf("expected a failed build: %+v", stats)
	}
	if s.LeafMesh(0).Digest() != before {
		t.Error("failed build replaced the previous mesh")
	}
	assertClean(t, s)
	if logs.FilterMessage("Mesh size too large").Len() == 0 {
		t.Error("capacity failure was not logged")
	}
}

func TestSetCellUnlocking(t *testing.T) {
	s := newSystem(t, 12, 12, 25)
	s.RebuildDirtyLeaves(context.Background())

	if !s.SetCellUnlocking(3, 3) {
		t.Fatal("SetCellUnlocking returned false")
	}
	if s.SetCellUnlocking(3, 3) {
		t.Error("repeat call returned true")
	}
	if s.SetCellUnlocking(-1, 3) {
		t.Error("out-of-range call returned true")
	}

	s.RebuildDirtyLeaves(context.Background())
	m := s.LeafMesh(s.Tree().LeafAt(3, 3))
	if m.Kind != fogmesh.KindDense {
		t.Fatalf("unlocking leaf built %v", m.Kind)
	}
	highlighted := 0
	for _, uv := range m.UVs {
		if _, v := uv.Float32(); v == 1 {
			highlighted++
		}
	}
	if highlighted != 4 {
		t.Errorf("%d highlighted vertices, want the 4 cell corners", highlighted)
	}

	s.UpdateFogGridInfo(3, 3, true)
	if s.SetCellUnlocking(3, 3) {
		t.Error("unlocked cell went back to unlocking")
	}
	if s.Grid().GetRawType(3, 3) != fog.Unlocked {
		t.Error("cell is not Unlocked")
	}
}

func TestBuildUnlockingPreview(t *testing.T) {
	s := newSystem(t, 12, 12, 25)

	m, err := s.BuildUnlockingPreview([]quadtree.Point{{X: 5, Z: 5}})
	if err != nil {
		t.Fatalf("BuildUnlockingPreview: %v", err)
	}
	// 3x3 locked cells, two triangles each.
	if m.TriangleCount() != 18 {
		t.Errorf("TriangleCount() = %d, want 18", m.TriangleCount())
	}
	if m.Bounds.Min != (fmath.Vec3{X: 5, Y: 0, Z: 5}) || m.Bounds.Max != (fmath.Vec3{X: 8, Y: 6, Z: 8}) {
		t.Errorf("bounds = %+v", m.Bounds)
	}

	m, err = s.BuildUnlockingPreview([]quadtree.Point{{X: 2, Z: 7}, {X: 4, Z: 6}})
	if err != nil {
		t.Fatalf("BuildUnlockingPreview: %v", err)
	}
	if m.Bounds.Min != (fmath.Vec3{X: 2, Y: 0, Z: 6}) || m.Bounds.Max != (fmath.Vec3{X: 7, Y: 6, Z: 10}) {
		t.Errorf("bounds = %+v", m.Bounds)
	}

	m, err = s.BuildUnlockingPreview(nil)
	if err != nil || m.TriangleCount() != 0 {
		t.Errorf("empty preview: %d triangles, %v", m.TriangleCount(), err)
	}
}

func TestWorldTransform(t *testing.T) {
	cfg := unitConfig(30, 30, 10)
	cfg.GridCellSize = 2
	cfg.GlobalScale = 1.5
	cfg.StartPosition = fmath.Vec3{X: 30, Y: 6, Z: -15}

	s, err := New(cfg, config.Default().Mesh)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.RebuildDirtyLeaves(context.Background())

	// Logical cell (0,0) starts at the start position; 15 cells of 3 world units.
	got := s.WorldBounds(s.LeafMesh(0))
	want := fogmesh.Bounds{
		Min: fmath.Vec3{X: 30, Y: 6, Z: -15},
		Max: fmath.Vec3{X: 75, Y: 12, Z: 30},
	}
	if got != want {
		t.Errorf("WorldBounds = %+v, want %+v", got, want)
	}

	// Skirt origin sits one scaled cell outside the map corner.
	if p := s.SkirtTransform().TransformVec3(fmath.Vec3{}); p != (fmath.Vec3{X: 27, Y: 6, Z: -18}) {
		t.Errorf("skirt origin = %v", p)
	}
	if n := s.SkirtMesh().TriangleCount(); n != 8 {
		t.Errorf("skirt has %d triangles", n)
	}
}

func TestRebuild_EmitsSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	s := newSystem(t, 50, 50, 25)
	s.UpdateFogGridInfo(10, 10, true)
	stats := s.RebuildDirtyLeaves(context.Background())

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "fog.rebuild" {
		t.Fatalf("spans = %v", spans)
	}
	found := false
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "fog.rebuilt" {
			found = true
			if kv.Value.AsInt64() != int64(stats.Rebuilt) {
				t.Errorf("fog.rebuilt = %d, want %d", kv.Value.AsInt64(), stats.Rebuilt)
			}
		}
	}
	if !found {
		t.Error("span has no fog.rebuilt attribute")
	}
}

func TestRebuild_EachDirtyLeafOncePerPass(t *testing.T) {
	s := newSystem(t, 100, 100, 25)
	s.RebuildDirtyLeaves(context.Background())

	passes := [][]quadtree.Point{
		{{X: 5, Z: 5}},
		{{X: 5, Z: 6}, {X: 6, Z: 5}},
		{{X: 30, Z: 30}, {X: 31, Z: 30}, {X: 60, Z: 60}},
		{{X: 5, Z: 5}},
	}

	for n, cells := range passes {
		for _, c := range cells {
			s.UpdateFogGridInfo(c.X, c.Z, true)
		}

		leaves := make(map[int]bool)
		internal := 0
		for _, i := range s.Tree().DirtyNodes() {
			if s.Tree().IsLeaf(i) {
				leaves[i] = true
			} else {
				internal++
			}
		}

		stats := s.RebuildDirtyLeaves(context.Background())
		if stats.Rebuilt != len(leaves) || stats.Sparse+stats.Dense != len(leaves) {
			t.Errorf("pass %d: %+v, want %d leaves rebuilt", n, stats, len(leaves))
		}
		if stats.Discarded != internal {
			t.Errorf("pass %d: discarded %d, want %d", n, stats.Discarded, internal)
		}

		vertices, triangles := 0, 0
		for i := range leaves {
			vertices += s.LeafMesh(i).VertexCount()
			triangles += s.LeafMesh(i).TriangleCount()
		}
		if stats.Vertices != vertices || stats.Triangles != triangles {
			t.Errorf("pass %d: counted %d vertices %d triangles, meshes hold %d and %d",
				n, stats.Vertices, stats.Triangles, vertices, triangles)
		}
		assertClean(t, s)
	}
}
