package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hotspot-detector/geodetect/internal/observability/metrics"
)

// NewMetrics records request counts, latency and response size per route.
// Handler errors are rendered here so the recorded status is the one sent.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			m.RequestStarted()
			defer m.RequestFinished()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			method := c.Request().Method
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordHTTPRequest(method, path, c.Response().Status, time.Since(start).Seconds())
			m.RecordHTTPResponseSize(method, path, c.Response().Size)
			return nil
		}
	}
}
