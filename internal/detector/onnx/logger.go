package onnx

import (
	"sync"

	"github.com/hotspot-detector/geodetect/internal/logger"
)

var (
	pkgLogger     logger.Logger
	pkgLoggerOnce sync.Once
)

// GetLogger returns the onnx backend logger.
func GetLogger() logger.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("detector.onnx")
	})
	return pkgLogger
}
