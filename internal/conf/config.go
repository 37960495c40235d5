// config.go: settings struct for the geodetect service and the functions that load it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hotspot-detector/geodetect/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// ServerSettings contains settings for the HTTP listener.
type ServerSettings struct {
	Host            string        // interface to bind, empty for all
	Port            string        // TCP port, PORT env var
	ReadTimeout     time.Duration // maximum time to read a request including the upload
	WriteTimeout    time.Duration // maximum time to write a response, covers inference
	IdleTimeout     time.Duration // keep-alive idle timeout
	ShutdownTimeout time.Duration // grace period for in-flight requests on SIGTERM
	AllowedOrigins  []string      // CORS origins
	RateLimit       float64       // requests per second per client IP, 0 disables
	MaxConnections  int           // concurrent TCP connections, 0 is unlimited
}

// UploadSettings contains settings for temporary upload storage.
type UploadSettings struct {
	MaxBytes     int64         // largest accepted upload
	TempDir      string        // parent directory for per-request folders
	MinFreeBytes uint64        // refuse uploads when free space drops below this
	SweepAfter   time.Duration // age after which leftover request folders are removed at startup
}

// ModelSettings contains settings for the object detector.
type ModelSettings struct {
	Backend       string        // onnx, tflite or remote
	Path          string        // model file for local backends
	Labels        string        // data.yaml or labels.txt
	InputSize     int           // square network input, in pixels
	Confidence    float64       // minimum class score kept
	IoU           float64       `mapstructure:"iou"` // NMS overlap threshold
	MaxDetections int           // cap per image after NMS
	MaxConcurrent int           // concurrent inference calls
	Threads       int           // intra-op threads, 0 for auto
	ONNXLibrary   string        `mapstructure:"onnxlibrary"` // onnxruntime shared library path
	RemoteURL     string        `mapstructure:"remoteurl"`   // inference endpoint for the remote backend
	Timeout       time.Duration // remote call timeout
}

// RasterSettings selects the georeferencing reader.
type RasterSettings struct {
	Reader string // geotiff or gdal
}

// TelemetrySettings contains settings for Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool
	DSN         string `mapstructure:"dsn"`
	Environment string
}

// MetricsSettings contains settings for the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
}

// Settings is the complete service configuration.
type Settings struct {
	Debug     bool
	Server    ServerSettings
	Upload    UploadSettings
	Model     ModelSettings
	Raster    RasterSettings
	Logging   logger.LoggingConfig
	Telemetry TelemetrySettings
	Metrics   MetricsSettings

	ConfigFile string `mapstructure:"-" yaml:"-"` // file the settings were read from, runtime value
}

// settingsInstance is the most recently loaded settings
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env, the configuration file and environment variables through the global viper
// instance, which is where cobra flags are bound.
func Load(configFile string) (*Settings, error) {
	return LoadWith(viper.GetViper(), configFile)
}

// LoadWith is Load against a caller-provided viper instance.
// An explicit configFile must exist; otherwise a missing config file is not an error.
func LoadWith(v *viper.Viper, configFile string) (*Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// loadDotEnv populates the process environment from dotenv files. Existing variables win.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", p, err)
		}
		GetLogger().Debug("Loaded environment file", logger.String("path", p))
	}
	return nil
}

// readConfigFile reads configFile, or searches the default paths when it is empty.
func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("No config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// GetSettings returns the most recently loaded settings, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// embedded at build time
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// WriteDefaultConfig writes the embedded default config to path.
// An existing file is only replaced when force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(DefaultConfig()); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, path); err != nil {
		return fmt.Errorf("error moving config file into place: %w", err)
	}
	return nil
}
