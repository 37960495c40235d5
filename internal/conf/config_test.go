package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the short environment bindings for the duration of a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, b := range getEnvBindings() {
		if val, ok := os.LookupEnv(b.EnvVar); ok {
			t.Setenv(b.EnvVar, val) // registers restore
			require.NoError(t, os.Unsetenv(b.EnvVar))
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := LoadWith(viper.New(), writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, "8080", settings.Server.Port)
	assert.Equal(t, int64(104857600), settings.Upload.MaxBytes)
	assert.Equal(t, BackendONNX, settings.Model.Backend)
	assert.Equal(t, "best.onnx", settings.Model.Path)
	assert.Equal(t, "data.yaml", settings.Model.Labels)
	assert.Equal(t, 640, settings.Model.InputSize)
	assert.InDelta(t, 0.25, settings.Model.Confidence, 1e-9)
	assert.InDelta(t, 0.7, settings.Model.IoU, 1e-9)
	assert.Equal(t, 300, settings.Model.MaxDetections)
	assert.Equal(t, 1, settings.Model.MaxConcurrent)
	assert.Equal(t, 120*time.Second, settings.Model.Timeout)
	assert.Equal(t, 300*time.Second, settings.Server.WriteTimeout)
	assert.Equal(t, time.Hour, settings.Upload.SweepAfter)
	assert.Equal(t, ReaderGeoTIFF, settings.Raster.Reader)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.True(t, settings.Metrics.Enabled)
	assert.Equal(t, []string{"*"}, settings.Server.AllowedOrigins)
	assert.NotEmpty(t, settings.ConfigFile)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  port: "9090"
  ratelimit: 5
model:
  backend: TFLite
  path: /models/best.tflite
  confidence: 0.4
upload:
  maxbytes: 2048
logging:
  level: debug
  file:
    enabled: true
    path: /var/log/geodetect.log
`)

	settings, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "9090", settings.Server.Port)
	assert.InDelta(t, 5.0, settings.Server.RateLimit, 0)
	assert.Equal(t, BackendTFLite, settings.Model.Backend, "backend is normalized to lower case")
	assert.Equal(t, "/models/best.tflite", settings.Model.Path)
	assert.InDelta(t, 0.4, settings.Model.Confidence, 1e-9)
	assert.Equal(t, int64(2048), settings.Upload.MaxBytes)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.FileOutput)
	assert.True(t, settings.Logging.FileOutput.Enabled)
	assert.Equal(t, "/var/log/geodetect.log", settings.Logging.FileOutput.Path)
	assert.Equal(t, 100, settings.Logging.FileOutput.MaxSize, "unset keys keep defaults")
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("MODEL_PATH", "/srv/model.onnx")
	t.Setenv("UPLOAD_MAX_BYTES", "1000")
	t.Setenv("GEODETECT_MODEL_MAXDETECTIONS", "50")

	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	settings, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "7000", settings.Server.Port)
	assert.Equal(t, "/srv/model.onnx", settings.Model.Path)
	assert.Equal(t, int64(1000), settings.Upload.MaxBytes)
	assert.Equal(t, 50, settings.Model.MaxDetections)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	t.Setenv("MODEL_BACKEND", "torch")

	_, err := LoadWith(viper.New(), writeConfig(t, "debug: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "MODEL_BACKEND")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadWith(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEmbeddedConfigLoads(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	settings, err := LoadWith(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "8080", settings.Server.Port)

	err = WriteDefaultConfig(path, false)
	require.Error(t, err, "existing file is not replaced without force")
	require.NoError(t, WriteDefaultConfig(path, true))
}

func TestSettingsHelpers(t *testing.T) {
	t.Parallel()

	s := &Settings{Server: ServerSettings{Host: "127.0.0.1", Port: "8080"}}
	assert.Equal(t, "127.0.0.1:8080", s.Address())
	assert.Equal(t, filepath.Join(os.TempDir(), "geodetect"), s.ResolveTempDir())

	s.Upload.TempDir = "/data/uploads"
	assert.Equal(t, "/data/uploads", s.ResolveTempDir())
}
