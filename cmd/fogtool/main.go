// fogtool is a CLI utility for exercising the fog-of-war grid, quadtree and mesh builder.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Faultbox/fogofwar/internal/config"
	"github.com/Faultbox/fogofwar/internal/fogsystem"
	"github.com/Faultbox/fogofwar/internal/logger"
	"github.com/Faultbox/fogofwar/internal/telemetry"
)

func main() {
	// Optional; OTEL_EXPORTER_OTLP_* may also be set directly.
	_ = godotenv.Load()

	config.ParseFlags()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitWithOptions(logger.Options{
		Level:   cfg.Logging.Level,
		Console: true,
		JSON:    cfg.Logging.JSON,
		File:    fileConfig(cfg.Logging.LogFile),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	} else {
		defer func() {
			if err := shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown", zap.Error(err))
			}
		}()
	}

	var run func(context.Context, *config.Config, []string) error
	switch command {
	case "info":
		run = cmdInfo
	case "unlock":
		run = cmdUnlock
	case "mask":
		run = cmdMask
	case "noise":
		run = cmdNoise
	case "export":
		run = cmdExport
	case "config":
		run = cmdConfig
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := run(ctx, cfg, rest); err != nil {
		logger.Error(command+" failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func fileConfig(path string) logger.FileConfig {
	if path == "" {
		return logger.FileConfig{}
	}
	return logger.DefaultFileConfig(path)
}

func printUsage() {
	fmt.Println(`fogtool - fog-of-war grid and mesh utility

Usage:
  fogtool [global options] <command> [options]

Global options:
  -config <file>      Config file (default ./fog.yaml or the user config dir)
  -map-width, -map-height, -cell-size, -fog-height, -leaf-size
  -debug              Debug logging
  -log-file <file>    Also log to a rotating file
  -trace              Export OpenTelemetry traces (OTEL_EXPORTER_OTLP_* env)

Commands:
  info                          Show grid and quadtree layout
  unlock <x,z> [x,z ...]        Unlock cells and report the rebuild
  mask <file>                   Bulk unlock from a file of '0'/'1' characters
  noise [-seed N] [-threshold T] [-scale S] [-o file]
                                Unlock cells where noise exceeds the threshold
  export -o <file.bmp> [-mask file] [-noise] [-seed N]
                                Render the fog surface heights as a BMP
  config [-o file | -save]      Print or save the effective config

Examples:
  fogtool info
  fogtool -map-width 90 -map-height 90 -cell-size 1 unlock 10,10 11,10
  fogtool noise -seed 7 -o mask.txt
  fogtool -cell-size 3 export -noise -o fog.bmp`)
}

// newSystem builds a fog system from the loaded config and runs the first rebuild.
func newSystem(ctx context.Context, cfg *config.Config) (*fogsystem.System, error) {
	s, err := fogsystem.New(cfg.Fog, cfg.Mesh)
	if err != nil {
		return nil, err
	}
	s.RebuildDirtyLeaves(ctx)
	return s, nil
}
