// Package app assembles the configured components for the CLI commands.
package app

import (
	"fmt"

	"github.com/hotspot-detector/geodetect/internal/analysis"
	"github.com/hotspot-detector/geodetect/internal/asset"
	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/detector/backends"
	"github.com/hotspot-detector/geodetect/internal/logger"
	"github.com/hotspot-detector/geodetect/internal/observability"
	"github.com/hotspot-detector/geodetect/internal/raster"

	// raster readers register themselves
	_ "github.com/hotspot-detector/geodetect/internal/raster/gdal"
	_ "github.com/hotspot-detector/geodetect/internal/raster/geotiff"
)

// SetupLogging installs the global logger from settings. A non-empty
// consoleLevel overrides the console level, so one-shot commands can keep
// stdout for their output.
func SetupLogging(settings *conf.Settings, consoleLevel string) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = string(logger.LogLevelDebug)
	}
	if cfg.Console != nil {
		console := *cfg.Console
		cfg.Console = &console
	}
	if cfg.FileOutput != nil {
		file := *cfg.FileOutput
		cfg.FileOutput = &file
	}
	if consoleLevel != "" {
		if cfg.Console == nil {
			cfg.Console = &logger.ConsoleOutput{Enabled: true}
		}
		cfg.Console.Level = consoleLevel
	} else if settings.Debug && cfg.Console != nil {
		cfg.Console.Level = string(logger.LogLevelDebug)
	}

	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return cl, nil
}

// NewGateway returns the unloaded model gateway for the configured backend.
func NewGateway(settings *conf.Settings, metrics *observability.Metrics) *detector.Gateway {
	var opts []detector.Option
	if metrics != nil {
		opts = append(opts, detector.WithMetrics(metrics.Detector))
	}
	return detector.NewGateway(backends.GatewayConfig(&settings.Model), backends.Factory(&settings.Model), opts...)
}

// NewPipeline returns the analysis pipeline over model and the configured raster reader.
func NewPipeline(settings *conf.Settings, model analysis.Model, metrics *observability.Metrics) (*analysis.Pipeline, error) {
	opener, err := raster.NewOpener(settings.Raster.Reader)
	if err != nil {
		return nil, err
	}
	var opts []analysis.Option
	if metrics != nil {
		opts = append(opts, analysis.WithMetrics(metrics.Analysis))
	}
	return analysis.New(model, opener, opts...), nil
}

// NewAssetManager returns the upload store rooted at the configured temp dir.
func NewAssetManager(settings *conf.Settings, metrics *observability.Metrics) (*asset.Manager, error) {
	var opts []asset.Option
	if metrics != nil {
		opts = append(opts, asset.WithMetrics(metrics.Assets))
	}
	return asset.NewManager(asset.Config{
		Dir:          settings.ResolveTempDir(),
		MaxBytes:     settings.Upload.MaxBytes,
		MinFreeBytes: settings.Upload.MinFreeBytes,
	}, opts...)
}
