// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
//
// Nothing is sent unless telemetry.enabled is set. When it is, errors built
// through the internal errors package are reported with their component and
// category tags, and every event is scrubbed before it leaves the process.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hotspot-detector/geodetect/internal/buildinfo"
	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// FlushTimeout bounds how long shutdown waits for queued events.
const FlushTimeout = 2 * time.Second

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

type options struct {
	transport sentry.Transport
}

// Option configures Init.
type Option func(*options)

// WithTransport replaces the HTTP transport, used by tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *options) { o.transport = t }
}

// Init initializes Sentry when telemetry is enabled and installs the
// reporter used by the errors package. The returned flush function must be
// called before exit; it is a no-op when telemetry is disabled.
func Init(settings *conf.TelemetrySettings, build *buildinfo.Context, opts ...Option) (func(), error) {
	noop := func() {}
	if settings == nil || !settings.Enabled {
		GetLogger().Debug("Sentry telemetry is disabled (opt-in required)")
		errors.SetTelemetryReporter(nil)
		return noop, nil
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Transport:        o.transport,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "", // hostnames are not reported
		Release:          fmt.Sprintf("geodetect@%s", build.Version()),
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return noop, fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	GetLogger().Info("Sentry telemetry enabled",
		logger.String("environment", settings.Environment),
		logger.String("release", build.Version()))

	return func() {
		if !sentry.Flush(FlushTimeout) {
			GetLogger().Warn("Sentry flush timed out", logger.Duration("timeout", FlushTimeout))
		}
	}, nil
}

// beforeSend strips host identity, request data and free-form extras.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil
	event.Message = errors.ScrubMessage(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
