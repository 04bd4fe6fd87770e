package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/color-predictor/internal/config"
	"github.com/ironsheep/color-predictor/internal/estimate"
	"github.com/ironsheep/color-predictor/internal/logging"
	"github.com/ironsheep/color-predictor/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("color-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("color-mcp - MCP server for color detection")
			fmt.Println()
			fmt.Println("Usage: color-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Printf("  %s=debug    Enable debug logging\n", logging.EnvLevel)
			fmt.Printf("  %s=<path>   Config file with custom color ranges\n", config.EnvConfigPath)
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	cfg, path, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "color-mcp: %v\n", err)
		os.Exit(1)
	}

	// stdout is for MCP protocol
	logger, err := logging.New("color-mcp", cfg.Log.Level, logging.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "color-mcp: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck
	logger.Debugw("starting", "version", Version, "built", BuildTime, "commit", GitCommit, "config", path)

	table, err := cfg.Table()
	if err != nil {
		logger.Fatalw("invalid color ranges", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Table:      table,
		Estimator:  estimate.New(cfg.Representative()),
		RegionSize: cfg.Region.Size,
		Blur:       cfg.Region.Blur,
		Logger:     logger,
	})
	if err := srv.Run(ctx); err != nil {
		logger.Fatalw("server error", "error", err)
	}
}
