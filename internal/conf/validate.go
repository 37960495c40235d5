// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and normalizes enum values to lower case.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) []string{
		validateServerSettings,
		validateUploadSettings,
		validateModelSettings,
		validateRasterSettings,
		validateLoggingSettings,
		validateTelemetrySettings,
	} {
		ve.Errors = append(ve.Errors, check(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateServerSettings(s *Settings) []string {
	var errs []string
	if port, err := strconv.Atoi(s.Server.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be a TCP port number, got %q", s.Server.Port))
	}
	if s.Server.ReadTimeout <= 0 || s.Server.WriteTimeout <= 0 {
		errs = append(errs, "server read and write timeouts must be positive")
	}
	if s.Server.RateLimit < 0 {
		errs = append(errs, "server.ratelimit must not be negative")
	}
	if s.Server.MaxConnections < 0 {
		errs = append(errs, "server.maxconnections must not be negative")
	}
	return errs
}

func validateUploadSettings(s *Settings) []string {
	var errs []string
	if s.Upload.MaxBytes <= 0 {
		errs = append(errs, "upload.maxbytes must be positive")
	}
	if s.Upload.SweepAfter < 0 {
		errs = append(errs, "upload.sweepafter must not be negative")
	}
	return errs
}

func validateModelSettings(s *Settings) []string {
	var errs []string
	m := &s.Model

	m.Backend = strings.ToLower(m.Backend)
	if !slices.Contains(validBackends, m.Backend) {
		errs = append(errs, fmt.Sprintf("model.backend must be one of %v, got %q", validBackends, m.Backend))
	}

	switch m.Backend {
	case BackendRemote:
		if u, err := url.Parse(m.RemoteURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "model.remoteurl must be an absolute URL when model.backend is remote")
		}
	default:
		if m.Path == "" {
			errs = append(errs, "model.path is required")
		}
	}

	if m.InputSize <= 0 || m.InputSize%32 != 0 {
		errs = append(errs, fmt.Sprintf("model.inputsize must be a positive multiple of 32, got %d", m.InputSize))
	}
	if m.Confidence <= 0 || m.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("model.confidence must be in (0, 1], got %g", m.Confidence))
	}
	if m.IoU <= 0 || m.IoU > 1 {
		errs = append(errs, fmt.Sprintf("model.iou must be in (0, 1], got %g", m.IoU))
	}
	if m.MaxDetections <= 0 {
		errs = append(errs, "model.maxdetections must be positive")
	}
	if m.MaxConcurrent < 1 {
		errs = append(errs, "model.maxconcurrent must be at least 1")
	}
	if m.Threads < 0 {
		errs = append(errs, "model.threads must not be negative")
	}
	return errs
}

func validateRasterSettings(s *Settings) []string {
	s.Raster.Reader = strings.ToLower(s.Raster.Reader)
	if !slices.Contains(validReaders, s.Raster.Reader) {
		return []string{fmt.Sprintf("raster.reader must be one of %v, got %q", validReaders, s.Raster.Reader)}
	}
	return nil
}

func validateLoggingSettings(s *Settings) []string {
	s.Logging.DefaultLevel = strings.ToLower(s.Logging.DefaultLevel)
	if !slices.Contains(validLogLevels, s.Logging.DefaultLevel) {
		return []string{fmt.Sprintf("logging.level must be one of %v, got %q", validLogLevels, s.Logging.DefaultLevel)}
	}
	return nil
}

func validateTelemetrySettings(s *Settings) []string {
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		return []string{"telemetry.dsn is required when telemetry is enabled"}
	}
	return nil
}
