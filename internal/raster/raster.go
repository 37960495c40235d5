// Package raster opens georeferenced rasters and maps pixel coordinates to
// geographic coordinates through the raster's affine transform.
//
// Readers register themselves by name, the way image decoders do:
//
//	import _ "github.com/hotspot-detector/geodetect/internal/raster/geotiff"
//
//	opener, err := raster.NewOpener("geotiff")
//	ds, err := opener.Open(path)
//	defer ds.Close()
//	lon, lat := ds.PixelToGeo(x, y)
package raster

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/hotspot-detector/geodetect/internal/errors"
)

// ErrUnreadableRaster is returned for files that are not valid georeferenced rasters.
var ErrUnreadableRaster = errors.NewStd("unreadable or non-georeferenced raster")

// Affine is the six-coefficient pixel to world mapping
//
//	lon = A*x + B*y + C
//	lat = D*x + E*y + F
type Affine struct {
	A, B, C, D, E, F float64
}

// Apply maps pixel (x, y) to (lon, lat).
func (t Affine) Apply(x, y float64) (lon, lat float64) {
	return t.A*x + t.B*y + t.C, t.D*x + t.E*y + t.F
}

// FromGDAL converts a GDAL geotransform (c, a, b, f, d, e) to an Affine.
func FromGDAL(gt [6]float64) Affine {
	return Affine{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}

// GDAL returns the transform in GDAL geotransform order.
func (t Affine) GDAL() [6]float64 {
	return [6]float64{t.C, t.A, t.B, t.F, t.D, t.E}
}

// Valid reports whether the transform is finite and invertible.
func (t Affine) Valid() bool {
	for _, v := range [...]float64{t.A, t.B, t.C, t.D, t.E, t.F} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return t.A*t.E-t.B*t.D != 0
}

// Metadata describes a raster.
type Metadata struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Bands        int    `json:"bands"`
	CRS          string `json:"crs,omitempty"` // "EPSG:<code>" when known
	PixelIsPoint bool   `json:"pixel_is_point"`
}

// Dataset is an open georeferenced raster. It is owned by one analysis and
// must be closed when that analysis ends.
type Dataset interface {
	PixelToGeo(x, y float64) (lon, lat float64)
	Transform() Affine
	Metadata() Metadata
	Close() error
}

// Opener opens datasets.
type Opener interface {
	Open(path string) (Dataset, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Dataset, error)

// Open implements Opener.
func (f OpenerFunc) Open(path string) (Dataset, error) { return f(path) }

var (
	readersMu sync.RWMutex
	readers   = make(map[string]OpenerFunc)
)

// Register makes a reader available by name. It panics on duplicates, like image.RegisterFormat users expect.
func Register(name string, open OpenerFunc) {
	readersMu.Lock()
	defer readersMu.Unlock()
	if _, dup := readers[name]; dup {
		panic("raster: Register called twice for reader " + name)
	}
	readers[name] = open
}

// Readers lists registered reader names.
func Readers() []string {
	readersMu.RLock()
	defer readersMu.RUnlock()
	names := make([]string, 0, len(readers))
	for name := range readers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewOpener returns the named reader. Every error it opens with wraps ErrUnreadableRaster.
func NewOpener(name string) (Opener, error) {
	readersMu.RLock()
	open, ok := readers[name]
	readersMu.RUnlock()
	if !ok {
		return nil, errors.Newf("raster reader %q is not available (compiled readers: %v)", name, Readers()).
			Component("raster").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return OpenerFunc(func(path string) (Dataset, error) {
		ds, err := open(path)
		if err != nil {
			if !errors.Is(err, ErrUnreadableRaster) {
				err = fmt.Errorf("%w: %w", ErrUnreadableRaster, err)
			}
			return nil, errors.New(err).
				Component("raster").
				Category(errors.CategoryRaster).
				Context("reader", name).
				Build()
		}
		return ds, nil
	}), nil
}

// dataset is the Dataset returned by NewDataset.
type dataset struct {
	transform Affine
	meta      Metadata
	closeFn   func() error
	once      sync.Once
	closeErr  error
}

// NewDataset builds a Dataset from an already-read transform. closeFn may be nil.
func NewDataset(t Affine, meta Metadata, closeFn func() error) Dataset {
	return &dataset{transform: t, meta: meta, closeFn: closeFn}
}

func (d *dataset) PixelToGeo(x, y float64) (lon, lat float64) { return d.transform.Apply(x, y) }
func (d *dataset) Transform() Affine                          { return d.transform }
func (d *dataset) Metadata() Metadata                         { return d.meta }

// Close releases the underlying reader once.
func (d *dataset) Close() error {
	d.once.Do(func() {
		if d.closeFn != nil {
			d.closeErr = d.closeFn()
		}
	})
	return d.closeErr
}
