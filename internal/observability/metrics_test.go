package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently
// since every call owns a private registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.Detector)
			assert.NotNil(t, m.Analysis)
			assert.NotNil(t, m.Assets)
			assert.NotNil(t, m.HTTP)
		})
	}
	wg.Wait()
}

func TestHandlerExposesComponentMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Detector.ModelLoaded("onnx", time.Second, nil)
	m.Analysis.AnalysisCompleted("success", time.Second, 2)
	m.Assets.AssetStored(1024)
	m.HTTP.RecordHTTPRequest("GET", "/", 200, 0.001)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	for _, name := range []string{
		"detector_model_loaded",
		"analysis_total",
		"analysis_records_total",
		"asset_uploads_stored_total",
		"http_requests_total",
		"go_goroutines",
	} {
		assert.Contains(t, string(body), name)
	}
}
