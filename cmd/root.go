// Package cmd builds the geodetect command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hotspot-detector/geodetect/cmd/analyze"
	configcmd "github.com/hotspot-detector/geodetect/cmd/config"
	"github.com/hotspot-detector/geodetect/cmd/inspect"
	"github.com/hotspot-detector/geodetect/cmd/serve"
	"github.com/hotspot-detector/geodetect/cmd/version"
	"github.com/hotspot-detector/geodetect/internal/app"
	"github.com/hotspot-detector/geodetect/internal/buildinfo"
	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// Command annotations read by the root pre-run hook.
const (
	// AnnotationNoSettings skips loading configuration.
	AnnotationNoSettings = "geodetect/no-settings"
	// AnnotationConsoleLevel overrides the console log level.
	AnnotationConsoleLevel = "geodetect/console-level"
)

// flagBindings maps persistent flags to configuration keys.
var flagBindings = map[string]string{
	"debug":     "debug",
	"host":      "server.host",
	"port":      "server.port",
	"backend":   "model.backend",
	"model":     "model.path",
	"labels":    "model.labels",
	"reader":    "raster.reader",
	"log-level": "logging.level",
}

// RootCommand creates the root command. Without a subcommand it runs serve.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "geodetect",
		Short:         "Photovoltaic fault detection for georeferenced drone imagery",
		Version:       build.Version(),
		SilenceUsage:  true,
	}

	bindErr := setupFlags(rootCmd, &configFile)

	serveCmd := serve.Command(settings, build)
	rootCmd.RunE = serveCmd.RunE

	analyzeCmd := analyze.Command(settings)
	inspectCmd := inspect.Command(settings)
	configCmd := configcmd.Command()
	versionCmd := version.Command(build)

	// one-shot commands print to stdout, keep logs out of the way
	for _, c := range []*cobra.Command{analyzeCmd, inspectCmd} {
		c.Annotations = map[string]string{AnnotationConsoleLevel: string(logger.LogLevelError)}
	}
	for _, c := range append([]*cobra.Command{configCmd, versionCmd}, configCmd.Commands()...) {
		c.Annotations = map[string]string{AnnotationNoSettings: "true"}
	}

	rootCmd.AddCommand(serveCmd, analyzeCmd, inspectCmd, configCmd, versionCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if _, skip := cmd.Annotations[AnnotationNoSettings]; skip {
			return nil
		}
		return initialize(settings, configFile, cmd.Annotations[AnnotationConsoleLevel])
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return logger.Global().Close()
	}

	return rootCmd
}

// initialize loads configuration and installs the global logger. It runs
// after flag parsing, so bound flags take precedence over env and file.
func initialize(settings *conf.Settings, configFile, consoleLevel string) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if _, err := app.SetupLogging(settings, consoleLevel); err != nil {
		return err
	}

	if settings.ConfigFile != "" {
		conf.GetLogger().Debug("Configuration loaded", logger.String("file", settings.ConfigFile))
	}
	return nil
}

// setupFlags defines the global flags and binds them to viper keys.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/geodetect, /etc/geodetect)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("host", "", "Interface to listen on")
	flags.StringP("port", "p", "", "TCP port to listen on")
	flags.String("backend", "", "Model backend: onnx, tflite or remote")
	flags.StringP("model", "m", "", "Path to the detection model")
	flags.String("labels", "", "Path to data.yaml or labels.txt")
	flags.String("reader", "", "Raster reader: geotiff or gdal")
	flags.String("log-level", "", "Default log level: debug, info, warn, error")

	for flag, key := range flagBindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
