package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func TestInputSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		dims     ort.Shape
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "static", dims: ort.NewShape(1, 3, 640, 640), want: 640},
		{name: "static ignores fallback", dims: ort.NewShape(1, 3, 1024, 1024), fallback: 640, want: 1024},
		{name: "dynamic uses fallback", dims: ort.NewShape(-1, 3, -1, -1), fallback: 640, want: 640},
		{name: "dynamic without fallback", dims: ort.NewShape(1, 3, -1, -1), wantErr: true},
		{name: "nhwc", dims: ort.NewShape(1, 640, 640, 3), wantErr: true},
		{name: "non-square", dims: ort.NewShape(1, 3, 480, 640), wantErr: true},
		{name: "rank", dims: ort.NewShape(3, 640, 640), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := inputSize(tt.dims, tt.fallback)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFailsWithoutModel(t *testing.T) {
	if !ort.IsInitialized() {
		t.Skip("ONNX Runtime shared library not initialized in this environment")
	}
	_, err := New(Config{ModelPath: t.TempDir() + "/missing.onnx"})
	require.Error(t, err)
}
