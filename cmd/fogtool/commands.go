package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/fogofwar/internal/config"
	"github.com/Faultbox/fogofwar/internal/fog"
	"github.com/Faultbox/fogofwar/internal/fogsystem"
	"github.com/Faultbox/fogofwar/internal/logger"
)

func cmdInfo(ctx context.Context, cfg *config.Config, args []string) error {
	s, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}

	g, tree := s.Grid(), s.Tree()
	fmt.Printf("Map:        %gx%g world units\n", cfg.Fog.MapWidth, cfg.Fog.MapHeight)
	fmt.Printf("Cells:      %dx%d (cell size %g)\n", g.CellsX(), g.CellsZ(), g.CellSize())
	fmt.Printf("Fog height: %g\n", g.FogHeight())
	fmt.Printf("Quadtree:   depth %d, leaf %d, %d nodes\n", tree.Depth(), tree.LeafSize(), tree.NodeCapacity())
	printSummary(s)
	return nil
}

func printSummary(s *fogsystem.System) {
	counts := s.Grid().CountByType()
	fmt.Printf("Cells:      %d locked, %d unlocking, %d unlocked\n",
		counts[fog.Locked], counts[fog.Unlocking], counts[fog.Unlocked])

	leaves := s.LeafMeshes()
	byType := make(map[fog.Type]int)
	vertices, triangles := 0, 0
	for _, l := range leaves {
		byType[l.Type]++
		vertices += l.Mesh.VertexCount()
		triangles += l.Mesh.TriangleCount()
	}
	fmt.Printf("Leaves:     %d (%d locked, %d unlocking, %d unlocked)\n",
		len(leaves), byType[fog.Locked], byType[fog.Unlocking], byType[fog.Unlocked])
	fmt.Printf("Mesh:       %d vertices, %d triangles\n", vertices, triangles)
}

func printStats(st fogsystem.RebuildStats) {
	fmt.Printf("Rebuild:    %d leaves (%d sparse, %d dense), %d discarded, %d failed, %d borders\n",
		st.Rebuilt, st.Sparse, st.Dense, st.Discarded, st.Failed, st.Borders)
}

// parseCell parses "x,z".
func parseCell(s string) (int, int, error) {
	xs, zs, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("cell %q: want x,z", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, fmt.Errorf("cell %q: %w", s, err)
	}
	z, err := strconv.Atoi(strings.TrimSpace(zs))
	if err != nil {
		return 0, 0, fmt.Errorf("cell %q: %w", s, err)
	}
	return x, z, nil
}

func cmdUnlock(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: fogtool unlock <x,z> [x,z ...]")
	}

	s, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}

	changed := 0
	for _, a := range args {
		x, z, err := parseCell(a)
		if err != nil {
			return err
		}
		if s.UpdateFogGridInfo(x, z, true) {
			changed++
		} else {
			logger.Warn("cell not unlocked", zap.Int("x", x), zap.Int("z", z))
		}
	}

	fmt.Printf("Unlocked:   %d of %d cells\n", changed, len(args))
	printStats(s.RebuildDirtyLeaves(ctx))
	printSummary(s)
	return nil
}

// loadMask reads a '0'/'1' pattern file; whitespace is ignored.
func loadMask(path string) (*fog.Mask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pattern := strings.Join(strings.Fields(string(data)), "")
	return fog.ParseMaskPattern(pattern)
}

func cmdMask(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: fogtool mask <file>")
	}

	mask, err := loadMask(args[0])
	if err != nil {
		return err
	}

	s, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}
	n, err := s.UnlockMask(mask)
	if err != nil {
		return err
	}

	fmt.Printf("Unlocked:   %d cells (%d bits set)\n", n, mask.Count())
	printStats(s.RebuildDirtyLeaves(ctx))
	printSummary(s)
	return nil
}

type noiseFlags struct {
	seed      *int64
	threshold *float64
	scale     *float64
}

func addNoiseFlags(fs *flag.FlagSet) noiseFlags {
	return noiseFlags{
		seed:      fs.Int64("seed", 1, "Noise seed"),
		threshold: fs.Float64("threshold", 0.4, "Unlock cells where noise exceeds this value"),
		scale:     fs.Float64("scale", 0.1, "Noise frequency per cell"),
	}
}

func (f noiseFlags) mask(cellsX, cellsZ int) (*fog.Mask, error) {
	return fog.ParseMaskPattern(noisePattern(cellsX, cellsZ, *f.seed, *f.threshold, *f.scale))
}

func cmdNoise(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("noise", flag.ExitOnError)
	nf := addNoiseFlags(fs)
	out := fs.String("o", "", "Write the pattern to this file")
	fs.Parse(args)

	s, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}

	g := s.Grid()
	mask, err := nf.mask(g.CellsX(), g.CellsZ())
	if err != nil {
		return err
	}
	if *out != "" {
		if err := writePattern(*out, mask, g.CellsX()); err != nil {
			return err
		}
		logger.Info("pattern written", zap.String("path", *out))
	}

	n, err := s.UnlockMask(mask)
	if err != nil {
		return err
	}
	fmt.Printf("Unlocked:   %d cells\n", n)
	printStats(s.RebuildDirtyLeaves(ctx))
	printSummary(s)
	return nil
}

// writePattern writes the mask as rows of '0'/'1', one grid row per line.
func writePattern(path string, m *fog.Mask, rowLen int) error {
	var b strings.Builder
	for i := range m.Len() {
		if m.Get(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
		if (i+1)%rowLen == 0 {
			b.WriteByte('\n')
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

func cmdExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "Output BMP file")
	maskPath := fs.String("mask", "", "Apply this '0'/'1' pattern file first")
	useNoise := fs.Bool("noise", false, "Apply a noise pattern first")
	nf := addNoiseFlags(fs)
	fs.Parse(args)

	if *out == "" {
		return errors.New("usage: fogtool export -o <file.bmp> [-mask file] [-noise]")
	}

	s, err := newSystem(ctx, cfg)
	if err != nil {
		return err
	}

	if *maskPath != "" {
		mask, err := loadMask(*maskPath)
		if err != nil {
			return err
		}
		if _, err := s.UnlockMask(mask); err != nil {
			return err
		}
	}
	if *useNoise {
		mask, err := nf.mask(s.Grid().CellsX(), s.Grid().CellsZ())
		if err != nil {
			return err
		}
		if _, err := s.UnlockMask(mask); err != nil {
			return err
		}
	}
	s.RebuildDirtyLeaves(ctx)

	if err := exportBMP(*out, s.Grid()); err != nil {
		return fmt.Errorf("exporting %s: %w", *out, err)
	}
	fmt.Printf("Wrote %s\n", *out)
	return nil
}

func cmdConfig(_ context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("o", "", "Write to this file")
	save := fs.Bool("save", false, "Write to the user config directory")
	fs.Parse(args)

	switch {
	case *save:
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Saved to %s\n", filepath.Join(config.ConfigDir(), "fog.yaml"))
	case *out != "":
		if err := cfg.SaveTo(*out); err != nil {
			return err
		}
		fmt.Printf("Saved to %s\n", *out)
	default:
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	}
	return nil
}
