// Package serve implements the HTTP service command.
package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hotspot-detector/geodetect/internal/api"
	"github.com/hotspot-detector/geodetect/internal/app"
	"github.com/hotspot-detector/geodetect/internal/buildinfo"
	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/logger"
	"github.com/hotspot-detector/geodetect/internal/observability"
	"github.com/hotspot-detector/geodetect/internal/telemetry"
)

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP detection service",
		Long: "Load the detection model and serve GET /, GET /status and POST /analyze_geotiff " +
			"until interrupted. A model that fails to load leaves the service running in degraded mode.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, build)
		},
	}
}

func getLogger() logger.Logger {
	return logger.Global().Module("serve")
}

// Run starts the service and blocks until ctx is cancelled.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := getLogger()
	log.Info("Starting geodetect", logger.String("build", build.String()))

	flush, err := telemetry.Init(&settings.Telemetry, build)
	if err != nil {
		log.Warn("Telemetry disabled", logger.Error(err))
	}
	defer flush()

	var metrics *observability.Metrics
	if settings.Metrics.Enabled {
		if metrics, err = observability.NewMetrics(); err != nil {
			return err
		}
	}

	assets, err := app.NewAssetManager(settings, metrics)
	if err != nil {
		return err
	}

	gateway := app.NewGateway(settings, metrics)
	defer func() {
		if err := gateway.Close(); err != nil {
			log.Warn("Error closing model", logger.Error(err))
		}
	}()

	pipeline, err := app.NewPipeline(settings, gateway, metrics)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// a failed load is reported on /status, the service still starts
		_ = gateway.Load(gctx)
		return nil
	})
	g.Go(func() error {
		if _, err := assets.Sweep(settings.Upload.SweepAfter); err != nil {
			log.Warn("Stale upload sweep incomplete", logger.Error(err))
		}
		return nil
	})
	_ = g.Wait()

	if !gateway.Ready() {
		log.Warn("Serving in degraded mode, analysis requests will be refused",
			logger.String("model", settings.Model.Path))
	}

	opts := []api.ServerOption{api.WithBuildInfo(build)}
	if metrics != nil {
		opts = append(opts, api.WithMetrics(metrics))
	}
	server, err := api.New(api.ConfigFromSettings(settings), gateway, pipeline, assets, opts...)
	if err != nil {
		return err
	}

	go rotateLogsOnHangup(ctx)

	return server.Run(ctx)
}

// rotateLogsOnHangup rotates the log file on SIGHUP until ctx ends.
func rotateLogsOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := logger.Global().Rotate(); err != nil {
				getLogger().Warn("Log rotation failed", logger.Error(err))
				continue
			}
			getLogger().Info("Log file rotated")
		}
	}
}
