package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagMapWidth  = flag.Float64("map-width", 0, "Map width in world units")
	flagMapHeight = flag.Float64("map-height", 0, "Map height in world units")
	flagCellSize  = flag.Float64("cell-size", 0, "Grid cell size in world units")
	flagFogHeight = flag.Float64("fog-height", 0, "Height of locked fog")
	flagLeafSize  = flag.Int("leaf-size", 0, "Minimum quadtree leaf extent in cells")
	flagLogFile   = flag.String("log-file", "", "Write logs to this file as well")
	flagTrace     = flag.Bool("trace", false, "Export OpenTelemetry traces")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagMapWidth > 0 {
		cfg.Fog.MapWidth = float32(*flagMapWidth)
	}
	if *flagMapHeight > 0 {
		cfg.Fog.MapHeight = float32(*flagMapHeight)
	}
	if *flagCellSize > 0 {
		cfg.Fog.GridCellSize = float32(*flagCellSize)
	}
	if *flagFogHeight > 0 {
		cfg.Fog.FogHeight = float32(*flagFogHeight)
	}
	if *flagLeafSize > 0 {
		cfg.Fog.LeafSize = *flagLeafSize
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagTrace {
		cfg.Telemetry.Enabled = true
	}
}
