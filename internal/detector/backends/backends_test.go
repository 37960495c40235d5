package backends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/detector/remote"
)

func TestGatewayConfig(t *testing.T) {
	t.Parallel()

	m := &conf.ModelSettings{Backend: conf.BackendONNX, Path: "best.onnx", Labels: "data.yaml", MaxConcurrent: 2}
	assert.Equal(t, "best.onnx", GatewayConfig(m).ModelPath)
	assert.Equal(t, 2, GatewayConfig(m).MaxConcurrent)

	m = &conf.ModelSettings{Backend: conf.BackendRemote, RemoteURL: "http://infer:9000/detect"}
	assert.Equal(t, "http://infer:9000/detect", GatewayConfig(m).ModelPath)
}

func TestFactoryRemote(t *testing.T) {
	t.Parallel()

	b, err := Factory(&conf.ModelSettings{
		Backend:   conf.BackendRemote,
		RemoteURL: "http://infer:9000/detect",
		Timeout:   time.Second,
	})(t.Context())
	require.NoError(t, err)
	assert.Equal(t, remote.Name, b.Name())
	require.NoError(t, b.Close())
}

func TestFactoryErrorsReturnNilBackend(t *testing.T) {
	t.Parallel()

	b, err := Factory(&conf.ModelSettings{Backend: conf.BackendRemote})(t.Context())
	require.Error(t, err)
	assert.Nil(t, b)

	b, err = Factory(&conf.ModelSettings{Backend: "pytorch"})(t.Context())
	require.Error(t, err)
	assert.Nil(t, b)
}
