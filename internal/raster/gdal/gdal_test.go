//go:build gdal

package gdal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotspot-detector/geodetect/internal/raster"
	"github.com/hotspot-detector/geodetect/internal/raster/geotiff/geotifftest"
)

func TestOpenMatchesGeoTIFFTransform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ortho.tif")
	require.NoError(t, geotifftest.WriteFile(path, geotifftest.NorthUp(32, 16, 500000, 7400000, 0.5, 31983)))

	ds, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	assert.Equal(t, raster.Affine{A: 0.5, C: 500000, E: -0.5, F: 7400000}, ds.Transform())
	assert.Equal(t, 32, ds.Metadata().Width)
	assert.Equal(t, 3, ds.Metadata().Bands)
	assert.Equal(t, "EPSG:31983", ds.Metadata().CRS)
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.tif"))
	require.ErrorIs(t, err, raster.ErrUnreadableRaster)
}
