package analysis

import (
	"sync"

	"github.com/hotspot-detector/geodetect/internal/logger"
)

var (
	pkgLogger     logger.Logger
	pkgLoggerOnce sync.Once
)

// GetLogger returns the analysis package logger.
func GetLogger() logger.Logger {
	pkgLoggerOnce.Do(func() {
		pkgLogger = logger.Global().Module("analysis")
	})
	return pkgLogger
}
