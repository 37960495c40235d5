package asset

import (
	"sync"

	"github.com/hotspot-detector/geodetect/internal/logger"
)

var (
	pkgLogger     logger.Logger
	pkgLoggerOnce sync.Once
)

// GetLogger returns the asset package logger.
func GetLogger() logger.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("asset")
	})
	return pkgLogger
}
