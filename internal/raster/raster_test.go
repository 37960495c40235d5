package raster

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotspot-detector/geodetect/internal/errors"
)

func TestAffineApply(t *testing.T) {
	t.Parallel()

	// 0.5 m pixels, north-up, origin at (500000, 7400000)
	tr := Affine{A: 0.5, B: 0, C: 500000, D: 0, E: -0.5, F: 7400000}

	lon, lat := tr.Apply(0, 0)
	assert.InDelta(t, 500000.0, lon, 1e-9)
	assert.InDelta(t, 7400000.0, lat, 1e-9)

	lon, lat = tr.Apply(100, 40)
	assert.InDelta(t, 500050.0, lon, 1e-9)
	assert.InDelta(t, 7399980.0, lat, 1e-9)

	rotated := Affine{A: 1, B: 2, C: 3, D: 4, E: 5, F: 6}
	lon, lat = rotated.Apply(10, 20)
	assert.InDelta(t, 1*10+2*20+3.0, lon, 1e-12)
	assert.InDelta(t, 4*10+5*20+6.0, lat, 1e-12)
}

func TestAffineGDALOrder(t *testing.T) {
	t.Parallel()

	gt := [6]float64{-47.9, 0.0001, 0, -15.8, 0, -0.0001}
	tr := FromGDAL(gt)
	assert.Equal(t, Affine{A: 0.0001, B: 0, C: -47.9, D: 0, E: -0.0001, F: -15.8}, tr)
	assert.Equal(t, gt, tr.GDAL())
}

func TestAffineValid(t *testing.T) {
	t.Parallel()

	assert.True(t, Affine{A: 1, E: -1}.Valid())
	assert.False(t, Affine{}.Valid(), "singular")
	assert.False(t, Affine{A: 1, E: -1, C: math.NaN()}.Valid())
	assert.False(t, Affine{A: math.Inf(1), E: -1}.Valid())
}

var registerTestReaders sync.Once

func TestNewOpenerWrapsReaderErrors(t *testing.T) {
	registerTestReaders.Do(func() {
		Register("test-failing", func(path string) (Dataset, error) {
			return nil, fmt.Errorf("bad magic in %s", path)
		})
		Register("test-ok", func(string) (Dataset, error) {
			return NewDataset(Affine{A: 1, E: -1, F: 10}, Metadata{Width: 4, Height: 4, Bands: 1}, nil), nil
		})
	})

	opener, err := NewOpener("test-failing")
	require.NoError(t, err)
	_, err = opener.Open("/tmp/x.tif")
	require.ErrorIs(t, err, ErrUnreadableRaster)
	assert.True(t, errors.IsCategory(err, errors.CategoryRaster))

	opener, err = NewOpener("test-ok")
	require.NoError(t, err)
	ds, err := opener.Open("x.tif")
	require.NoError(t, err)
	lon, lat := ds.PixelToGeo(2, 3)
	assert.InDelta(t, 2.0, lon, 0)
	assert.InDelta(t, 7.0, lat, 0)
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())

	assert.Contains(t, Readers(), "test-ok")
	assert.Panics(t, func() { Register("test-ok", nil) })
}

func TestNewOpenerUnknownReader(t *testing.T) {
	t.Parallel()

	_, err := NewOpener("does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDatasetCloseOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	ds := NewDataset(Affine{A: 1, E: 1}, Metadata{}, func() error {
		calls++
		return fmt.Errorf("close failed")
	})
	require.Error(t, ds.Close())
	require.Error(t, ds.Close())
	assert.Equal(t, 1, calls)
}
