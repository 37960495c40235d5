// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with other packages.
const (
	DefaultPort          = "8080"
	DefaultMaxUploadSize = 100 * 1024 * 1024
	DefaultInputSize     = 640
	DefaultConfidence    = 0.25
	DefaultIoU           = 0.7
	DefaultMaxDetections = 300
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.readtimeout", 60*time.Second)
	v.SetDefault("server.writetimeout", 300*time.Second)
	v.SetDefault("server.idletimeout", 120*time.Second)
	v.SetDefault("server.shutdowntimeout", 15*time.Second)
	v.SetDefault("server.allowedorigins", []string{"*"})
	v.SetDefault("server.ratelimit", 0.0)
	v.SetDefault("server.maxconnections", 0)

	v.SetDefault("upload.maxbytes", DefaultMaxUploadSize)
	v.SetDefault("upload.tempdir", "")
	v.SetDefault("upload.minfreebytes", 0)
	v.SetDefault("upload.sweepafter", time.Hour)

	v.SetDefault("model.backend", BackendONNX)
	v.SetDefault("model.path", "best.onnx")
	v.SetDefault("model.labels", "data.yaml")
	v.SetDefault("model.inputsize", DefaultInputSize)
	v.SetDefault("model.confidence", DefaultConfidence)
	v.SetDefault("model.iou", DefaultIoU)
	v.SetDefault("model.maxdetections", DefaultMaxDetections)
	v.SetDefault("model.maxconcurrent", 1)
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.onnxlibrary", "")
	v.SetDefault("model.remoteurl", "")
	v.SetDefault("model.timeout", 120*time.Second)

	v.SetDefault("raster.reader", ReaderGeoTIFF)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/geodetect.log")
	v.SetDefault("logging.file.maxsize", 100)
	v.SetDefault("logging.file.maxage", 30)
	v.SetDefault("logging.file.maxbackups", 10)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("metrics.enabled", true)
}
