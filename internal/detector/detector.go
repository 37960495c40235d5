// Package detector owns the object-detection model: it loads one backend at
// startup, tracks whether it is usable and serves read-only inference to
// concurrent analyses.
package detector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// ErrModelUnavailable is returned by Infer until a model has loaded successfully.
var ErrModelUnavailable = errors.NewStd("model not loaded")

// RawDetection is one box produced by the model, in source-image pixels.
type RawDetection struct {
	Box        [4]int // x1, y1, x2, y2 with x1 <= x2 and y1 <= y2
	ClassIndex int
	Confidence float64 // 0..1
}

// Backend runs a concrete model. Implementations must be safe for
// concurrent use; the gateway additionally bounds concurrency.
type Backend interface {
	Detect(ctx context.Context, path string) ([]RawDetection, error)
	Name() string
	Close() error
}

// LabelProvider is implemented by backends that carry their own class names.
type LabelProvider interface {
	Labels() []string
}

// BackendFactory builds the backend during Load.
type BackendFactory func(ctx context.Context) (Backend, error)

// State is the model lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MetricsRecorder receives model lifecycle and inference measurements.
type MetricsRecorder interface {
	ModelLoaded(backend string, duration time.Duration, err error)
	InferenceCompleted(backend string, duration time.Duration, detections int, err error)
	InferenceInFlight(delta int)
}

// Config describes the model to load.
type Config struct {
	Backend       string
	ModelPath     string
	LabelsPath    string // empty uses labels embedded in the model, if any
	MaxConcurrent int
}

// Info is a snapshot of the gateway for status reporting.
type Info struct {
	State   string `json:"state"`
	Backend string `json:"backend"`
	Path    string `json:"path"`
	Classes int    `json:"classes"`
	Error   string `json:"error,omitempty"`
}

// Gateway is the single long-lived model handle shared by all requests.
type Gateway struct {
	cfg     Config
	factory BackendFactory
	metrics MetricsRecorder
	log     logger.Logger

	loadOnce sync.Once
	state    atomic.Int32
	backend  Backend
	labels   []string
	loadErr  error

	sem *semaphore.Weighted
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// NewGateway returns an uninitialized gateway. Call Load once at startup.
func NewGateway(cfg Config, factory BackendFactory, opts ...Option) *Gateway {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	g := &Gateway{
		cfg:     cfg,
		factory: factory,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = GetLogger()
	}
	return g
}

// Load builds the backend and class table. Only the first call does any
// work; later calls return the first result. A failed load leaves the
// gateway in StateFailed and Infer refuses work.
func (g *Gateway) Load(ctx context.Context) error {
	g.loadOnce.Do(func() {
		start := time.Now()
		g.loadErr = g.load(ctx)
		elapsed := time.Since(start)

		if g.metrics != nil {
			g.metrics.ModelLoaded(g.cfg.Backend, elapsed, g.loadErr)
		}
		if g.loadErr != nil {
			g.state.Store(int32(StateFailed))
			g.log.Error("model load failed",
				logger.String("backend", g.cfg.Backend),
				logger.String("path", g.cfg.ModelPath),
				logger.Duration("duration", elapsed),
				logger.Error(g.loadErr))
			return
		}
		g.state.Store(int32(StateReady))
		g.log.Info("model loaded",
			logger.String("backend", g.backend.Name()),
			logger.String("path", g.cfg.ModelPath),
			logger.Int("classes", len(g.labels)),
			logger.Int("max_concurrent", g.cfg.MaxConcurrent),
			logger.Duration("duration", elapsed))
	})
	return g.loadErr
}

func (g *Gateway) load(ctx context.Context) error {
	if g.factory == nil {
		return errors.Newf("no backend factory configured").
			Component("detector").
			Category(errors.CategoryConfiguration).
			Build()
	}

	var labels []string
	if g.cfg.LabelsPath != "" {
		var err error
		labels, err = LoadLabels(g.cfg.LabelsPath)
		if err != nil {
			return err
		}
	}

	start := time.Now()
	backend, err := g.factory(ctx)
	if err != nil {
		return errors.New(err).
			Component("detector").
			Category(errors.CategoryModelLoad).
			Priority(errors.PriorityCritical).
			ModelContext(g.cfg.ModelPath, g.cfg.Backend).
			Timing("model-load", time.Since(start)).
			Build()
	}

	if labels == nil {
		if lp, ok := backend.(LabelProvider); ok {
			labels = lp.Labels()
		}
	}
	if len(labels) == 0 {
		_ = backend.Close()
		return errors.Newf("no class labels: set model.labels or use a model with embedded names").
			Component("detector").
			Category(errors.CategoryLabelLoad).
			ModelContext(g.cfg.ModelPath, g.cfg.Backend).
			Build()
	}

	g.backend = backend
	g.labels = labels
	return nil
}

// State reports the lifecycle state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// Ready reports whether Infer will accept work.
func (g *Gateway) Ready() bool {
	return g.State() == StateReady
}

// Err returns the load error, if any.
func (g *Gateway) Err() error {
	if g.State() != StateFailed {
		return nil
	}
	return g.loadErr
}

// Labels returns a copy of the class-name table.
func (g *Gateway) Labels() []string {
	if !g.Ready() {
		return nil
	}
	return append([]string(nil), g.labels...)
}

// ClassName resolves a class index.
func (g *Gateway) ClassName(index int) (string, bool) {
	if !g.Ready() || index < 0 || index >= len(g.labels) {
		return "", false
	}
	return g.labels[index], true
}

// Info returns a status snapshot.
func (g *Gateway) Info() Info {
	info := Info{
		State:   g.State().String(),
		Backend: g.cfg.Backend,
		Path:    g.cfg.ModelPath,
	}
	if g.Ready() {
		info.Backend = g.backend.Name()
		info.Classes = len(g.labels)
	}
	if err := g.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

// Infer runs the model over the image at path. The returned slice is in
// the order the model produced it.
func (g *Gateway) Infer(ctx context.Context, path string) ([]RawDetection, error) {
	if !g.Ready() {
		return nil, ErrModelUnavailable
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)
	// Close may have run while this call was queued
	if !g.Ready() {
		return nil, ErrModelUnavailable
	}

	if g.metrics != nil {
		g.metrics.InferenceInFlight(1)
		defer g.metrics.InferenceInFlight(-1)
	}

	start := time.Now()
	dets, err := g.backend.Detect(ctx, path)
	elapsed := time.Since(start)

	if g.metrics != nil {
		g.metrics.InferenceCompleted(g.backend.Name(), elapsed, len(dets), err)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryInference).
			Context("backend", g.backend.Name()).
			Timing("inference", elapsed).
			Build()
	}

	g.log.Debug("inference completed",
		logger.String("backend", g.backend.Name()),
		logger.Int("detections", len(dets)),
		logger.Duration("duration", elapsed))
	return dets, nil
}

// Close releases the backend. The gateway is unusable afterwards.
func (g *Gateway) Close() error {
	if !g.state.CompareAndSwap(int32(StateReady), int32(StateUninitialized)) {
		return nil
	}
	// wait for in-flight inferences
	if err := g.sem.Acquire(context.Background(), int64(g.cfg.MaxConcurrent)); err == nil {
		defer g.sem.Release(int64(g.cfg.MaxConcurrent))
	}
	return g.backend.Close()
}
