// Package backends builds the configured detector backend from settings.
package backends

import (
	"context"
	"fmt"

	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/cpuspec"
	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/detector/onnx"
	"github.com/hotspot-detector/geodetect/internal/detector/remote"
	"github.com/hotspot-detector/geodetect/internal/detector/tflite"
	"github.com/hotspot-detector/geodetect/internal/detector/yolo"
)

// GatewayConfig derives the gateway configuration from settings.
func GatewayConfig(m *conf.ModelSettings) detector.Config {
	cfg := detector.Config{
		Backend:       m.Backend,
		ModelPath:     m.Path,
		LabelsPath:    m.Labels,
		MaxConcurrent: m.MaxConcurrent,
	}
	if m.Backend == conf.BackendRemote {
		cfg.ModelPath = m.RemoteURL
	}
	return cfg
}

// Factory returns a BackendFactory for the configured backend.
func Factory(m *conf.ModelSettings) detector.BackendFactory {
	opts := yolo.Options{
		Confidence:    m.Confidence,
		IoU:           m.IoU,
		MaxDetections: m.MaxDetections,
	}
	threads := cpuspec.GetCPUSpec().InferenceThreads(m.Threads, m.MaxConcurrent)

	return func(ctx context.Context) (detector.Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch m.Backend {
		case conf.BackendONNX:
			return backend(onnx.New(onnx.Config{
				ModelPath:   m.Path,
				LibraryPath: m.ONNXLibrary,
				InputSize:   m.InputSize,
				Threads:     threads,
				Options:     opts,
			}))
		case conf.BackendTFLite:
			return backend(tflite.New(tflite.Config{
				ModelPath: m.Path,
				Threads:   threads,
				Options:   opts,
			}))
		case conf.BackendRemote:
			return backend(remote.New(remote.Config{
				URL:     m.RemoteURL,
				Timeout: m.Timeout,
			}))
		default:
			return nil, fmt.Errorf("unknown model backend %q", m.Backend)
		}
	}
}

// backend keeps a nil concrete pointer from becoming a non-nil interface.
func backend(b detector.Backend, err error) (detector.Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
