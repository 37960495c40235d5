package tflite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotspot-detector/geodetect/internal/errors"
)

func TestNewMissingModel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ModelPath: filepath.Join(t.TempDir(), "best_float32.tflite")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

func TestNewRejectsGarbageModel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.tflite")
	require.NoError(t, os.WriteFile(path, []byte("not a flatbuffer"), 0o600))

	_, err := New(Config{ModelPath: path})
	require.Error(t, err)
}
