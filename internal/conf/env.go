// env.go - Environment variable configuration and validation for geodetect
package conf

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix enables GEODETECT_<SECTION>_<KEY> overrides for every key with a default.
const envPrefix = "GEODETECT"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"server.port", "PORT", validateEnvPort},

		{"model.path", "MODEL_PATH", nil},
		{"model.labels", "MODEL_LABELS", nil},
		{"model.backend", "MODEL_BACKEND", validateEnvOneOf(validBackends)},
		{"model.confidence", "MODEL_CONFIDENCE", validateEnvUnitInterval},
		{"model.iou", "MODEL_IOU", validateEnvUnitInterval},
		{"model.threads", "MODEL_THREADS", validateEnvThreads},
		{"model.remoteurl", "MODEL_REMOTE_URL", validateEnvURL},

		{"upload.maxbytes", "UPLOAD_MAX_BYTES", validateEnvPositiveInt},
		{"upload.tempdir", "UPLOAD_TEMP_DIR", nil},

		{"logging.level", "LOG_LEVEL", validateEnvOneOf(validLogLevels)},
		{"telemetry.dsn", "SENTRY_DSN", validateEnvURL},
		{"raster.reader", "RASTER_READER", validateEnvOneOf(validReaders)},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var problems []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					problems = append(problems, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvUnitInterval(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f <= 0 || f > 1 {
		return fmt.Errorf("must be in (0, 1], got %g", f)
	}
	return nil
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid threads: %w", err)
	}
	if threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", threads)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvOneOf(valid []string) func(string) error {
	return func(value string) error {
		if slices.Contains(valid, strings.ToLower(value)) {
			return nil
		}
		return fmt.Errorf("must be one of: %s", strings.Join(valid, ", "))
	}
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return bindEnvVars(v)
}
