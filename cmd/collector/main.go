// Command collector records detection events posted by color-predictor and
// serves per-minute summaries of them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ironsheep/color-predictor/internal/collector"
	"github.com/ironsheep/color-predictor/internal/collector/sqlite"
	"github.com/ironsheep/color-predictor/internal/config"
	"github.com/ironsheep/color-predictor/internal/logging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:    "collector",
		Usage:   "store color detections and report them over HTTP",
		Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "address to serve on",
				EnvVars: []string{"PORT_ADDR"},
			},
			&cli.StringFlag{
				Name:  "database",
				Usage: "SQLite database file, or :memory:",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	var (
		cfg *config.Config
		err error
	)
	if p := c.String("config"); p != "" {
		cfg, _, err = config.LoadFromPath(p)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return err
	}
	if c.IsSet("listen") {
		cfg.Collector.Listen = c.String("listen")
	}
	if c.IsSet("database") {
		cfg.Collector.Database = c.String("database")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	logger, err := logging.New("collector", cfg.Log.Level, logging.Stdout)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	repo, err := sqlite.New(cfg.Collector.Database)
	if err != nil {
		return err
	}
	defer repo.Close()
	logger.Infow("database ready", "path", cfg.Collector.Database)

	srv := collector.NewServer(repo, logger)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Collector.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
