// Package config handles fog system configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"

	fmath "github.com/Faultbox/fogofwar/pkg/math"
)

// ErrInvalid marks a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid config")

// Config holds all fog system settings.
type Config struct {
	Fog       FogConfig       `yaml:"fog"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// FogConfig describes the map the fog covers and how it sits in the world.
type FogConfig struct {
	MapWidth      float32    `yaml:"map_width"`      // World units along X
	MapHeight     float32    `yaml:"map_height"`     // World units along Z
	GridCellSize  float32    `yaml:"grid_cell_size"` // World units per logical cell
	FogHeight     float32    `yaml:"fog_height"`     // Height of fully locked fog
	StartPosition fmath.Vec3 `yaml:"start_position"` // World position of logical cell (0,0)
	GlobalScale   float32    `yaml:"global_scale"`
	LeafSize      int        `yaml:"leaf_size"`    // Minimum quadtree leaf extent in cells
	SkirtMargin   float32    `yaml:"skirt_margin"` // World-edge skirt width
}

// MeshConfig holds mesh builder settings.
type MeshConfig struct {
	CullThreshold    float32 `yaml:"cull_threshold"`
	MaxBlockVertices int     `yaml:"max_block_vertices"`
	InitialBlock     int     `yaml:"initial_block"` // Block extent the scratch buffers start at
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// TelemetryConfig holds tracing settings. The OTLP endpoint itself comes from
// the standard OTEL_EXPORTER_OTLP_* environment variables.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Fog: FogConfig{
			MapWidth:      1200,
			MapHeight:     1200,
			GridCellSize:  3,
			FogHeight:     6,
			StartPosition: fmath.Vec3{X: 0, Y: 6, Z: 0},
			GlobalScale:   1,
			LeafSize:      25,
			SkirtMargin:   160,
		},
		Mesh: MeshConfig{
			CullThreshold:    0.01,
			MaxBlockVertices: 65536,
			InitialBlock:     25,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "fogofwar",
		},
	}
}

// LogicalSize returns the grid extent in cells.
func (f FogConfig) LogicalSize() (cellsX, cellsZ int) {
	if f.GridCellSize <= 0 {
		return 0, 0
	}
	cellsX = int(math.Ceil(float64(f.MapWidth / f.GridCellSize)))
	cellsZ = int(math.Ceil(float64(f.MapHeight / f.GridCellSize)))
	return cellsX, cellsZ
}

// Validate reports every unusable value at once.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, field string, value any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%w: %s = %v", ErrInvalid, field, value))
		}
	}

	f := c.Fog
	check(f.MapWidth > 0, "fog.map_width", f.MapWidth)
	check(f.MapHeight > 0, "fog.map_height", f.MapHeight)
	check(f.GridCellSize > 0, "fog.grid_cell_size", f.GridCellSize)
	check(f.FogHeight > 0, "fog.fog_height", f.FogHeight)
	check(f.GlobalScale > 0, "fog.global_scale", f.GlobalScale)
	check(f.LeafSize > 0, "fog.leaf_size", f.LeafSize)
	check(f.SkirtMargin >= 0, "fog.skirt_margin", f.SkirtMargin)

	m := c.Mesh
	check(m.CullThreshold >= 0, "mesh.cull_threshold", m.CullThreshold)
	check(m.MaxBlockVertices > 0 && m.MaxBlockVertices <= 1<<16, "mesh.max_block_vertices", m.MaxBlockVertices)
	check(m.InitialBlock > 0, "mesh.initial_block", m.InitialBlock)

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		check(false, "logging.level", c.Logging.Level)
	}

	return err
}
