package remote

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotspot-detector/geodetect/internal/detector"
	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

const endpoint = "http://inference.local/detect"

func newMocked(t *testing.T) (*Backend, *httpmock.MockTransport, string) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	b, err := New(Config{URL: endpoint, Timeout: 5 * time.Second, Transport: transport})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	path := filepath.Join(t.TempDir(), "ortho.tif")
	require.NoError(t, os.WriteFile(path, []byte("II*\x00raster-bytes"), 0o600))
	return b, transport, path
}

func TestDetectPostsFileAndParsesBoxes(t *testing.T) {
	t.Parallel()

	b, transport, path := newMocked(t)
	transport.RegisterResponder(http.MethodPost, endpoint, func(req *http.Request) (*http.Response, error) {
		file, header, err := req.FormFile("file")
		if err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"no file"}`), nil
		}
		defer func() { _ = file.Close() }()
		data, _ := io.ReadAll(file)
		if header.Filename != "ortho.tif" || string(data) != "II*\x00raster-bytes" {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"wrong upload"}`), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"detections": []map[string]any{
				{"bbox": []float64{10.7, 20.2, 30.9, 40.1}, "class_index": 2, "confidence": 0.5},
				{"bbox": []float64{50, 60, 5, 6}, "class_index": 0, "confidence": 0.91},
			},
		})
	})

	dets, err := b.Detect(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, []detector.RawDetection{
		{Box: [4]int{10, 20, 30, 40}, ClassIndex: 2, Confidence: 0.5},
		{Box: [4]int{5, 6, 50, 60}, ClassIndex: 0, Confidence: 0.91},
	}, dets)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestDetectForwardsTraceID(t *testing.T) {
	t.Parallel()

	b, transport, path := newMocked(t)
	transport.RegisterResponder(http.MethodPost, endpoint, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("X-Request-ID") != "trace-42" {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"missing request id"}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"detections":[]}`), nil
	})

	ctx := logger.WithTraceID(t.Context(), "trace-42")
	_, err := b.Detect(ctx, path)
	require.NoError(t, err)
}

func TestDetectEmptyResult(t *testing.T) {
	t.Parallel()

	b, transport, path := newMocked(t)
	transport.RegisterResponder(http.MethodPost, endpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"detections":[]}`))

	dets, err := b.Detect(t.Context(), path)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDetectErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
		category  errors.ErrorCategory
		contains  string
	}{
		{
			name:      "server error with json message",
			responder: httpmock.NewStringResponder(http.StatusServiceUnavailable, `{"error":"model warming up"}`),
			category:  errors.CategoryHTTP,
			contains:  "model warming up",
		},
		{
			name:      "server error with text body",
			responder: httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"),
			category:  errors.CategoryHTTP,
			contains:  "upstream down",
		},
		{
			name:      "transport failure",
			responder: httpmock.NewErrorResponder(io.ErrUnexpectedEOF),
			category:  errors.CategoryNetwork,
		},
		{
			name:      "bad bbox",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"detections":[{"bbox":[1,2,3],"class_index":0,"confidence":0.4}]}`),
			contains:  "bbox",
		},
		{
			name:      "missing class",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"detections":[{"bbox":[1,2,3,4],"confidence":0.4}]}`),
			contains:  "class_index",
		},
		{
			name:      "confidence out of range",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"detections":[{"bbox":[1,2,3,4],"class_index":0,"confidence":87}]}`),
			contains:  "confidence",
		},
		{
			name:      "not json",
			responder: httpmock.NewStringResponder(http.StatusOK, `<html>`),
			contains:  "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, transport, path := newMocked(t)
			transport.RegisterResponder(http.MethodPost, endpoint, tt.responder)

			_, err := b.Detect(t.Context(), path)
			require.Error(t, err)
			if tt.category != "" {
				assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
			}
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestDetectMissingFile(t *testing.T) {
	t.Parallel()

	b, transport, _ := newMocked(t)
	_, err := b.Detect(context.Background(), filepath.Join(t.TempDir(), "gone.tif"))
	require.Error(t, err)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)
}
