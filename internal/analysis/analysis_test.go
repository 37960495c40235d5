package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
	"github.com/hotspot-detector/geodetect/internal/raster"
	"github.com/hotspot-detector/geodetect/internal/raster/geotiff"
	"github.com/hotspot-detector/geodetect/internal/raster/geotiff/geotifftest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var classNames = []string{"hotspot", "diode", "soiling"}

type fakeModel struct {
	dets  []detector.RawDetection
	err   error
	calls atomic.Int32
}

func (f *fakeModel) Infer(context.Context, string) ([]detector.RawDetection, error) {
	f.calls.Add(1)
	return f.dets, f.err
}

func (f *fakeModel) ClassName(i int) (string, bool) {
	if i < 0 || i >= len(classNames) {
		return "", false
	}
	return classNames[i], true
}

type fakeOpener struct {
	transform raster.Affine
	err       error
	opened    atomic.Int32
	closed    atomic.Int32
}

func (f *fakeOpener) Open(string) (raster.Dataset, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened.Add(1)
	return raster.NewDataset(f.transform, raster.Metadata{Width: 100, Height: 100, Bands: 3}, func() error {
		f.closed.Add(1)
		return nil
	}), nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeRecorder) AnalysisCompleted(outcome string, _ time.Duration, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

// utm is a north-up 0.5 m grid anchored at (500000, 7400000).
var utm = raster.Affine{A: 0.5, C: 500000, E: -0.5, F: 7400000}

func newPipeline(m Model, o raster.Opener, opts ...Option) *Pipeline {
	return New(m, o, append([]Option{WithLogger(logger.NewDiscardLogger())}, opts...)...)
}

func TestAnalyzeZeroDetectionsIsSuccess(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{transform: utm}
	res, err := newPipeline(&fakeModel{}, opener).Analyze(t.Context(), "/tmp/req/a.tif", "")
	require.NoError(t, err)

	assert.Equal(t, 0, res.Total)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Equal(t, "a.tif", res.Filename)
	assert.Equal(t, int32(1), opener.closed.Load())

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deteccoes":[],"total_deteccoes":0,"arquivo_analisado":"a.tif"}`, string(data))
}

func TestAnalyzePreservesOrderAndCount(t *testing.T) {
	t.Parallel()

	model := &fakeModel{dets: []detector.RawDetection{
		{Box: [4]int{10, 10, 20, 20}, ClassIndex: 2, Confidence: 0.31},
		{Box: [4]int{0, 0, 4, 2}, ClassIndex: 0, Confidence: 0.97},
		{Box: [4]int{50, 60, 51, 61}, ClassIndex: 1, Confidence: 0.5},
		{Box: [4]int{10, 10, 20, 20}, ClassIndex: 2, Confidence: 0.31},
	}}
	res, err := newPipeline(model, &fakeOpener{transform: utm}).Analyze(t.Context(), "x.tif", "voo 3.tif")
	require.NoError(t, err)

	require.Len(t, res.Records, len(model.dets))
	assert.Equal(t, len(model.dets), res.Total)
	assert.Equal(t, "voo 3.tif", res.Filename)
	for i, d := range model.dets {
		assert.Equal(t, d.Box, res.Records[i].BBox, "record %d", i)
		assert.Equal(t, classNames[d.ClassIndex], res.Records[i].FaultType)
	}

	// float centre of (0,0,4,2) is (2,1)
	assert.InDelta(t, 500001.0, res.Records[1].Longitude, 1e-9)
	assert.InDelta(t, 7399999.5, res.Records[1].Latitude, 1e-9)
	assert.Equal(t, "97.00%", res.Records[1].Confidence)

	// centre of (50,60,51,61) is (50.5,60.5), no integer truncation
	assert.InDelta(t, 500025.25, res.Records[2].Longitude, 1e-9)
	assert.InDelta(t, 7399969.75, res.Records[2].Latitude, 1e-9)
}

func TestAnalyzeDegenerateBoxMatchesDirectTransform(t *testing.T) {
	t.Parallel()

	tr := raster.Affine{A: 0.0001, B: 0.00002, C: -47.9, D: -0.00001, E: -0.0001, F: -15.8}
	model := &fakeModel{dets: []detector.RawDetection{{Box: [4]int{37, 91, 37, 91}, ClassIndex: 0, Confidence: 0.6}}}

	res, err := newPipeline(model, &fakeOpener{transform: tr}).Analyze(t.Context(), "x.tif", "")
	require.NoError(t, err)

	lon, lat := tr.Apply(37, 91)
	assert.Equal(t, lon, res.Records[0].Longitude)
	assert.Equal(t, lat, res.Records[0].Latitude)
}

func TestAnalyzeOriginScenario(t *testing.T) {
	t.Parallel()

	const lon0, lat0 = -47.8825, -15.7942
	tr := raster.Affine{A: 0.00001, C: lon0, E: -0.00001, F: lat0}
	model := &fakeModel{dets: []detector.RawDetection{{Box: [4]int{0, 0, 0, 0}, ClassIndex: 2, Confidence: 0.5}}}

	res, err := newPipeline(model, &fakeOpener{transform: tr}).Analyze(t.Context(), "x.tif", "")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, Record{
		FaultType:  classNames[2],
		Confidence: "50.00%",
		Latitude:   lat0,
		Longitude:  lon0,
		BBox:       [4]int{0, 0, 0, 0},
	}, res.Records[0])
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	t.Parallel()

	model := &fakeModel{dets: []detector.RawDetection{
		{Box: [4]int{1, 2, 3, 4}, ClassIndex: 1, Confidence: 0.8734},
		{Box: [4]int{5, 6, 7, 8}, ClassIndex: 0, Confidence: 0.25},
	}}
	p := newPipeline(model, &fakeOpener{transform: utm})

	first, err := p.Analyze(t.Context(), "x.tif", "x.tif")
	require.NoError(t, err)
	second, err := p.Analyze(t.Context(), "x.tif", "x.tif")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnalyzeBadClassIndexFailsWholeAnalysis(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{transform: utm}
	model := &fakeModel{dets: []detector.RawDetection{
		{Box: [4]int{1, 1, 2, 2}, ClassIndex: 0, Confidence: 0.9},
		{Box: [4]int{1, 1, 2, 2}, ClassIndex: 7, Confidence: 0.9},
	}}
	res, err := newPipeline(model, opener).Analyze(t.Context(), "x.tif", "")

	require.Error(t, err)
	assert.Nil(t, res, "partial results are discarded")
	assert.Equal(t, KindInference, KindOf(err))
	assert.Contains(t, err.Error(), "class index 7")
	assert.Equal(t, int32(1), opener.closed.Load(), "raster closed on failure")
}

func TestAnalyzeFailureKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		model      *fakeModel
		opener     *fakeOpener
		want       Kind
		category   errors.ErrorCategory
	}{
		{
			name:     "model unavailable",
			model:    &fakeModel{err: detector.ErrModelUnavailable},
			opener:   &fakeOpener{transform: utm},
			want:     KindModelUnavailable,
			category: errors.CategoryState,
		},
		{
			name:     "inference error",
			model:    &fakeModel{err: fmt.Errorf("session run failed")},
			opener:   &fakeOpener{transform: utm},
			want:     KindInference,
			category: errors.CategoryInference,
		},
		{
			name:     "unreadable raster",
			model:    &fakeModel{dets: []detector.RawDetection{{Box: [4]int{1, 1, 2, 2}}}},
			opener:   &fakeOpener{err: fmt.Errorf("%w: no georeferencing tags", raster.ErrUnreadableRaster)},
			want:     KindUnreadableRaster,
			category: errors.CategoryRaster,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics := &outcomeRecorder{}
			res, err := newPipeline(tt.model, tt.opener, WithMetrics(metrics)).Analyze(t.Context(), "x.tif", "")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.want, KindOf(err))
			assert.True(t, inheritsCategory(err, tt.category))
			assert.Zero(t, tt.opener.opened.Load())
			assert.Equal(t, []string{tt.want.String()}, metrics.outcomes)
		})
	}
}

func inheritsCategory(err error, want errors.ErrorCategory) bool {
	var ce errors.CategorizedError
	return errors.As(err, &ce) && ce.ErrorCategory() == want
}

func TestUnreadableRasterKeepsCause(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{err: fmt.Errorf("%w: bad magic", raster.ErrUnreadableRaster)}
	_, err := newPipeline(&fakeModel{}, opener).Analyze(t.Context(), "x.tif", "")
	require.ErrorIs(t, err, raster.ErrUnreadableRaster)
}

func TestFormatConfidence(t *testing.T) {
	t.Parallel()

	for in, want := range map[float64]string{
		0.8734: "87.34%",
		0.873:  "87.30%",
		1.0:    "100.00%",
		0.0:    "0.00%",
		0.5:    "50.00%",
		0.2555: "25.55%",
	} {
		assert.Equal(t, want, FormatConfidence(in), "confidence %v", in)
	}
}

func TestCenter(t *testing.T) {
	t.Parallel()

	x, y := Center([4]int{0, 0, 1, 1})
	assert.InDelta(t, 0.5, x, 0)
	assert.InDelta(t, 0.5, y, 0)

	x, y = Center([4]int{10, 20, 10, 20})
	assert.InDelta(t, 10.0, x, 0)
	assert.InDelta(t, 20.0, y, 0)
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindInference, Detail: "bad class", Err: fmt.Errorf("boom")}
	assert.Equal(t, "inference_error: bad class: boom", err.Error())
	assert.Equal(t, "unreadable_raster: boom", (&Error{Kind: KindUnreadableRaster, Err: fmt.Errorf("boom")}).Error())
	assert.Equal(t, "model_unavailable: x", (&Error{Kind: KindModelUnavailable, Detail: "x"}).Error())
	assert.Equal(t, Kind(0), KindOf(fmt.Errorf("plain")))
	assert.Equal(t, "kind(42)", Kind(42).String())

	wrapped := fmt.Errorf("request: %w", err)
	assert.Equal(t, KindInference, KindOf(wrapped))
}

type gatewayBackend struct{ dets []detector.RawDetection }

func (g gatewayBackend) Detect(context.Context, string) ([]detector.RawDetection, error) {
	return g.dets, nil
}
func (gatewayBackend) Name() string { return "fixed" }
func (gatewayBackend) Close() error { return nil }
func (gatewayBackend) Labels() []string {
	return classNames
}

func TestAnalyzeWithGatewayAndGeoTIFF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ortho.tif")
	require.NoError(t, geotifftest.WriteFile(path, geotifftest.NorthUp(200, 100, 500000, 7400000, 0.5, 31983)))

	gw := detector.NewGateway(detector.Config{Backend: "fixed"},
		func(context.Context) (detector.Backend, error) {
			return gatewayBackend{dets: []detector.RawDetection{
				{Box: [4]int{0, 0, 0, 0}, ClassIndex: 1, Confidence: 0.5},
				{Box: [4]int{100, 50, 120, 70}, ClassIndex: 0, Confidence: 0.8734},
			}}, nil
		},
		detector.WithLogger(logger.NewDiscardLogger()))

	opener, err := raster.NewOpener(geotiff.Name)
	require.NoError(t, err)
	p := newPipeline(gw, opener)

	_, err = p.Analyze(t.Context(), path, "")
	require.Equal(t, KindModelUnavailable, KindOf(err), "before load")

	require.NoError(t, gw.Load(t.Context()))
	res, err := p.Analyze(t.Context(), path, "ortho.tif")
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	assert.Equal(t, "diode", res.Records[0].FaultType)
	assert.InDelta(t, 500000.0, res.Records[0].Longitude, 1e-9)
	assert.InDelta(t, 7400000.0, res.Records[0].Latitude, 1e-9)

	assert.Equal(t, "hotspot", res.Records[1].FaultType)
	assert.Equal(t, "87.34%", res.Records[1].Confidence)
	assert.InDelta(t, 500055.0, res.Records[1].Longitude, 1e-9)
	assert.InDelta(t, 7399970.0, res.Records[1].Latitude, 1e-9)
}
