package detector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

type fakeBackend struct {
	dets     []RawDetection
	err      error
	labels   []string
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
	closed   atomic.Bool
	calls    atomic.Int32
}

func (f *fakeBackend) Detect(ctx context.Context, _ string) ([]RawDetection, error) {
	f.calls.Add(1)
	if f.closed.Load() {
		return nil, fmt.Errorf("detect on closed backend")
	}
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.dets, f.err
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeLabelBackend struct{ fakeBackend }

func (f *fakeLabelBackend) Labels() []string { return f.labels }

type recordingMetrics struct {
	mu        sync.Mutex
	loads     []error
	inferErrs []error
}

func (r *recordingMetrics) ModelLoaded(_ string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, err)
}

func (r *recordingMetrics) InferenceCompleted(_ string, _ time.Duration, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inferErrs = append(r.inferErrs, err)
}

func (r *recordingMetrics) InferenceInFlight(int) {}

func writeLabels(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newGateway(cfg Config, b Backend, opts ...Option) *Gateway {
	opts = append([]Option{WithLogger(logger.NewDiscardLogger())}, opts...)
	return NewGateway(cfg, func(context.Context) (Backend, error) { return b, nil }, opts...)
}

func TestGatewayLifecycle(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{dets: []RawDetection{{Box: [4]int{1, 2, 3, 4}, ClassIndex: 1, Confidence: 0.9}}}
	metrics := &recordingMetrics{}
	g := newGateway(Config{
		Backend:    "fake",
		ModelPath:  "best.onnx",
		LabelsPath: writeLabels(t, "data.yaml", "names: [crack, hotspot]\n"),
	}, backend, WithMetrics(metrics))

	assert.Equal(t, StateUninitialized, g.State())
	assert.False(t, g.Ready())
	_, err := g.Infer(t.Context(), "x.tif")
	require.ErrorIs(t, err, ErrModelUnavailable)

	require.NoError(t, g.Load(t.Context()))
	require.NoError(t, g.Load(t.Context()), "second load is a no-op")
	assert.Len(t, metrics.loads, 1)

	assert.Equal(t, StateReady, g.State())
	assert.Equal(t, []string{"crack", "hotspot"}, g.Labels())
	name, ok := g.ClassName(1)
	assert.True(t, ok)
	assert.Equal(t, "hotspot", name)
	_, ok = g.ClassName(2)
	assert.False(t, ok)
	_, ok = g.ClassName(-1)
	assert.False(t, ok)

	dets, err := g.Infer(t.Context(), "x.tif")
	require.NoError(t, err)
	assert.Equal(t, backend.dets, dets)

	info := g.Info()
	assert.Equal(t, Info{State: "ready", Backend: "fake", Path: "best.onnx", Classes: 2}, info)

	require.NoError(t, g.Close())
	assert.True(t, backend.closed.Load())
	_, err = g.Infer(t.Context(), "x.tif")
	require.ErrorIs(t, err, ErrModelUnavailable)
}

func TestGatewayLoadFailureIsDegradedNotFatal(t *testing.T) {
	t.Parallel()

	g := NewGateway(Config{Backend: "onnx", ModelPath: "missing.onnx", LabelsPath: writeLabels(t, "l.txt", "a\n")},
		func(context.Context) (Backend, error) { return nil, fmt.Errorf("open missing.onnx: no such file") },
		WithLogger(logger.NewDiscardLogger()))

	err := g.Load(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.PriorityCritical, ee.GetPriority())
	assert.Equal(t, StateFailed, g.State())
	assert.Equal(t, err, g.Err())

	info := g.Info()
	assert.Equal(t, "failed", info.State)
	assert.Contains(t, info.Error, "missing.onnx")

	_, err = g.Infer(t.Context(), "x.tif")
	require.ErrorIs(t, err, ErrModelUnavailable)
	require.NoError(t, g.Close())
}

func TestGatewayLabelSources(t *testing.T) {
	t.Parallel()

	t.Run("embedded labels used when no file configured", func(t *testing.T) {
		t.Parallel()
		b := &fakeLabelBackend{fakeBackend{labels: []string{"a", "b", "c"}}}
		g := newGateway(Config{Backend: "fake"}, b)
		require.NoError(t, g.Load(t.Context()))
		assert.Equal(t, []string{"a", "b", "c"}, g.Labels())
	})

	t.Run("configured file wins over embedded labels", func(t *testing.T) {
		t.Parallel()
		b := &fakeLabelBackend{fakeBackend{labels: []string{"a", "b", "c"}}}
		g := newGateway(Config{Backend: "fake", LabelsPath: writeLabels(t, "labels.txt", "x\ny\n")}, b)
		require.NoError(t, g.Load(t.Context()))
		assert.Equal(t, []string{"x", "y"}, g.Labels())
	})

	t.Run("no labels anywhere fails and closes backend", func(t *testing.T) {
		t.Parallel()
		b := &fakeBackend{}
		g := newGateway(Config{Backend: "fake"}, b)
		err := g.Load(t.Context())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
		assert.True(t, b.closed.Load())
	})

	t.Run("unreadable label file fails before backend is built", func(t *testing.T) {
		t.Parallel()
		built := false
		g := NewGateway(Config{Backend: "fake", LabelsPath: filepath.Join(t.TempDir(), "none.yaml")},
			func(context.Context) (Backend, error) { built = true; return &fakeBackend{}, nil },
			WithLogger(logger.NewDiscardLogger()))
		require.Error(t, g.Load(t.Context()))
		assert.False(t, built)
	})
}

func TestGatewayInferenceErrorIsCategorized(t *testing.T) {
	t.Parallel()

	metrics := &recordingMetrics{}
	g := newGateway(Config{Backend: "fake", LabelsPath: writeLabels(t, "l.txt", "a\n")},
		&fakeBackend{err: fmt.Errorf("tensor shape mismatch")}, WithMetrics(metrics))
	require.NoError(t, g.Load(t.Context()))

	_, err := g.Infer(t.Context(), "x.tif")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryInference))
	assert.NotErrorIs(t, err, ErrModelUnavailable)
	require.Len(t, metrics.inferErrs, 1)
	assert.Error(t, metrics.inferErrs[0])
}

func TestGatewayBoundsConcurrency(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{delay: 20 * time.Millisecond}
	g := newGateway(Config{Backend: "fake", MaxConcurrent: 2, LabelsPath: writeLabels(t, "l.txt", "a\n")}, backend)
	require.NoError(t, g.Load(t.Context()))

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, err := g.Infer(context.Background(), "x.tif")
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(2), backend.peak.Load())
}

func TestGatewayInferHonoursContextWhileWaiting(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{delay: 200 * time.Millisecond}
	g := newGateway(Config{Backend: "fake", MaxConcurrent: 1, LabelsPath: writeLabels(t, "l.txt", "a\n")}, backend)
	require.NoError(t, g.Load(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Infer(context.Background(), "slow.tif")
	}()
	require.Eventually(t, func() bool { return backend.inflight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Infer(ctx, "queued.tif")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	<-done
}

func TestGatewayCloseWhileInferenceQueued(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{delay: 100 * time.Millisecond}
	g := newGateway(Config{Backend: "fake", MaxConcurrent: 1, LabelsPath: writeLabels(t, "l.txt", "a\n")}, backend)
	require.NoError(t, g.Load(t.Context()))

	var wg sync.WaitGroup
	wg.Go(func() {
		_, err := g.Infer(context.Background(), "running.tif")
		assert.NoError(t, err)
	})
	require.Eventually(t, func() bool { return backend.inflight.Load() == 1 }, time.Second, time.Millisecond)

	queued := make(chan error, 1)
	wg.Go(func() {
		_, err := g.Infer(context.Background(), "queued.tif")
		queued <- err
	})
	time.Sleep(20 * time.Millisecond)

	wg.Go(func() { assert.NoError(t, g.Close()) })
	wg.Wait()

	require.ErrorIs(t, <-queued, ErrModelUnavailable)
	assert.Equal(t, int32(1), backend.calls.Load())
	assert.True(t, backend.closed.Load())
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
