// Command color-predictor watches a camera and names the color in the center
// of the frame.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ironsheep/color-predictor/internal/capture"
	"github.com/ironsheep/color-predictor/internal/config"
	"github.com/ironsheep/color-predictor/internal/detector"
	"github.com/ironsheep/color-predictor/internal/display"
	"github.com/ironsheep/color-predictor/internal/estimate"
	"github.com/ironsheep/color-predictor/internal/imaging"
	"github.com/ironsheep/color-predictor/internal/logging"
	"github.com/ironsheep/color-predictor/internal/report"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagDevice    = "device"
	flagSize      = "size"
	flagWindow    = "window"
	flagNoReport  = "no-report"
	flagReportURL = "report-url"
	flagLoop      = "loop"
)

var app = &cli.App{
	Name:    "color-predictor",
	Usage:   "detect the dominant color in the center of a camera frame",
	Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "path to the YAML config file",
			EnvVars: []string{config.EnvConfigPath},
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "debug, info, warn or error",
		},
		&cli.IntFlag{
			Name:  flagSize,
			Usage: "edge length of the analyzed center square in pixels",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "run",
			Usage: "detect colors from a live camera",
			Flags: []cli.Flag{
				&cli.IntSliceFlag{
					Name:    flagDevice,
					Aliases: []string{"d"},
					Usage:   "camera device id, repeat to list fallbacks",
				},
				&cli.BoolFlag{
					Name:  flagWindow,
					Usage: "show a preview window (press q to quit)",
				},
				&cli.BoolFlag{
					Name:  flagNoReport,
					Usage: "do not send detections to the collector",
				},
				&cli.StringFlag{
					Name:  flagReportURL,
					Usage: "collector endpoint for detection events",
				},
			},
			Action: runAction,
		},
		{
			Name:      "detect",
			Usage:     "detect colors in still images",
			ArgsUsage: "<file or directory>...",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  flagLoop,
					Usage: "replay the images until interrupted",
				},
			},
			Action: detectAction,
		},
		{
			Name:   "ranges",
			Usage:  "print the classification table",
			Action: rangesAction,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "color-predictor: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config, or searches the default
// locations, and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if p := c.String(flagConfig); p != "" {
		cfg, path, err = config.LoadFromPath(p)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagSize) {
		cfg.Region.Size = c.Int(flagSize)
	}
	return cfg, path, cfg.Validate()
}

func newPipeline(cfg *config.Config) (*detector.Pipeline, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}
	return &detector.Pipeline{
		Estimator:  estimate.New(cfg.Representative()),
		Table:      table,
		RegionSize: cfg.Region.Size,
		Blur:       cfg.Region.Blur,
	}, nil
}

func setup(c *cli.Context) (*config.Config, *detector.Pipeline, *zap.SugaredLogger, error) {
	cfg, path, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New("color-predictor", cfg.Log.Level, logging.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	if path != "" {
		logger.Debugw("loaded config", "path", path)
	}
	pipeline, err := newPipeline(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, pipeline, logger, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func runAction(c *cli.Context) error {
	cfg, pipeline, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if devices := c.IntSlice(flagDevice); len(devices) > 0 {
		cfg.Camera.Devices = devices
	}
	if c.IsSet(flagWindow) {
		cfg.Display.Window = c.Bool(flagWindow)
	}
	if c.Bool(flagNoReport) {
		off := false
		cfg.Report.Enabled = &off
	}
	if c.IsSet(flagReportURL) {
		cfg.Report.URL = c.String(flagReportURL)
	}

	ctx, stop := signalContext(c)
	defer stop()

	source, device, err := capture.Open(cfg.Camera.Devices, capture.OpenWebcamSource, logger)
	if err != nil {
		return err
	}
	logger.Infow("camera opened", "device", device)

	if err := capture.WarmUp(ctx, cfg.Camera.WarmUp.Duration()); err != nil {
		logger.Info("interrupted during warm-up")
		return source.Close()
	}

	var renderer display.Renderer = display.Headless{}
	if cfg.Display.Window {
		renderer = display.NewWindow(cfg.Display.Title)
	}

	var reporter *report.Reporter
	if cfg.ReportEnabled() {
		sink := report.NewHTTPSink(cfg.Report.URL, cfg.Report.Timeout.Duration())
		reporter = report.NewReporter(sink, cfg.Report.Interval.Duration(), cfg.Report.Timeout.Duration(), logger)
		logger.Infow("reporting detections", "url", cfg.Report.URL, "interval", cfg.Report.Interval.Duration())
	}

	d, err := detector.New(detector.Config{
		Source:          source,
		Pipeline:        pipeline,
		Renderer:        renderer,
		Reporter:        reporter,
		Logger:          logger,
		Console:         os.Stdout,
		MaxMissedFrames: cfg.Camera.MaxMissedFrames,
	})
	if err != nil {
		source.Close()
		renderer.Close()
		return err
	}

	err = d.Run(ctx)
	stats := d.Stats()
	logger.Infow("detector stopped",
		"frames", stats.Frames,
		"detected", stats.Detected,
		"missed", stats.Missed,
		"skipped", stats.Skipped,
	)
	if reporter != nil {
		rs := reporter.Stats()
		logger.Infow("reporter stopped", "sent", rs.Sent, "failed", rs.Failed, "throttled", rs.Throttled, "dropped", rs.Dropped)
	}
	return err
}

func detectAction(c *cli.Context) error {
	cfg, pipeline, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	paths, err := capture.StillPaths(c.Args().Slice()...)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return cli.Exit("detect: no image files given", 2)
	}

	ctx, stop := signalContext(c)
	defer stop()

	d, err := detector.New(detector.Config{
		Source:          capture.NewFiles(imaging.NewImageCache(), c.Bool(flagLoop), paths...),
		Pipeline:        pipeline,
		Logger:          logger,
		Console:         os.Stdout,
		MaxMissedFrames: cfg.Camera.MaxMissedFrames,
	})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func rangesAction(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	table, err := cfg.Table()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tLABEL\tLOWER\tUPPER")
	for _, r := range table.Ranges() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Key, r.Label, r.Lower, r.Upper)
	}
	return w.Flush()
}
