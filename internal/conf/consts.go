package conf

// Inference backends.
const (
	BackendONNX   = "onnx"
	BackendTFLite = "tflite"
	BackendRemote = "remote"
)

// Raster readers.
const (
	ReaderGeoTIFF = "geotiff"
	ReaderGDAL    = "gdal"
)

// validBackends lists the accepted model.backend values.
var validBackends = []string{BackendONNX, BackendTFLite, BackendRemote}

// validReaders lists the accepted raster.reader values.
var validReaders = []string{ReaderGeoTIFF, ReaderGDAL}

var validLogLevels = []string{"trace", "debug", "info", "warn", "warning", "error"}
