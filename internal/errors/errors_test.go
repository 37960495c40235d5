package errors

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu       sync.Mutex
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
}

func TestFastPathKeepsExplicitValues(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(os.ErrNotExist).
		Component("raster").
		Category(CategoryRaster).
		Priority("urgent").
		Context("operation", "open_raster").
		Build()

	assert.Equal(t, "raster", ee.GetComponent())
	assert.Equal(t, CategoryRaster, ee.Category)
	assert.Equal(t, PriorityMedium, ee.GetPriority(), "unknown priority falls back to medium")
	assert.Equal(t, "open_raster", ee.GetContext()["operation"])
	assert.ErrorIs(t, ee, os.ErrNotExist)
}

func TestCategoryInheritedFromWrappedError(t *testing.T) {
	SetTelemetryReporter(nil)

	inner := New(fmt.Errorf("bad tiff header")).Category(CategoryRaster).Build()
	outer := New(fmt.Errorf("analysis failed: %w", inner)).Build()

	assert.Equal(t, CategoryRaster, outer.Category)
	assert.True(t, IsCategory(outer, CategoryRaster))
}

func TestReportingPathDetectsAndReports(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("failed to load model file")).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.True(t, ee.IsReported())
	assert.Equal(t, CategoryModelLoad, ee.Category)
}

func TestDetectCategoryByComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		component string
		want      ErrorCategory
	}{
		{"detector.onnx", CategoryInference},
		{"detector.remote", CategoryNetwork},
		{"raster", CategoryRaster},
		{"asset", CategoryUpload},
		{"api", CategoryHTTP},
		{"configuration", CategoryConfiguration},
		{"unknown", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectCategory(fmt.Errorf("something went wrong"), tt.component))
		})
	}
}

func TestLookupComponentPrefersLongestPattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "detector.onnx",
		lookupComponent("github.com/hotspot-detector/geodetect/internal/detector/onnx.(*Backend).Infer"))
	assert.Equal(t, "detector",
		lookupComponent("github.com/hotspot-detector/geodetect/internal/detector.(*Gateway).Infer"))
	assert.Equal(t, ComponentUnknown, lookupComponent("main.main"))
}

func TestContextHelpersAnonymize(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("x")).
		FileContext("/home/alice/uploads/field.tif", 5*1024*1024).
		NetworkContext("https://detector.internal/predict", 30*time.Second).
		ModelContext("/models/best.onnx", "onnx").
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "absolute-path", ctx["file_type"])
	assert.Equal(t, "tif", ctx["file_extension"])
	assert.Equal(t, "medium", ctx["file_size_category"])
	assert.Equal(t, "https-endpoint", ctx["url_category"])
	assert.InDelta(t, 30.0, ctx["timeout_seconds"], 0)
	assert.Equal(t, "onnx", ctx["model_format"])
	assert.Equal(t, "onnx", ctx["model_backend"])
}

func TestScrubMessageForPrivacy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		absent  []string
		present []string
	}{
		{
			name: "url query removed",
			in:   "Error at https://api.example.com?api_key=secret123&token=abc",
			want: "Error at https://api.example.com?[REDACTED]",
		},
		{
			name:    "bare api key",
			in:      "Config error: api_key=secret123 is invalid",
			absent:  []string{"secret123"},
			present: []string{"[API_KEY_REDACTED]"},
		},
		{
			name:   "tokens",
			in:     "Auth failed with token=abc123 and auth=xyz789",
			absent: []string{"abc123", "xyz789"},
		},
		{
			name: "absolute path keeps basename",
			in:   "open /tmp/geodetect/req-1234/field.tif: no such file",
			want: "open [PATH]/field.tif: no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := scrubMessageForPrivacy(tt.in)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
			for _, s := range tt.present {
				assert.Contains(t, got, s)
			}
		})
	}
}

func TestGenerateErrorTitle(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("boom")).
		Component("detector").
		Category(CategoryInference).
		Context("operation", "run_session").
		Build()

	assert.Equal(t, "Detector Inference Error Run Session", generateErrorTitle(ee))
}
