//go:build gdal

package gdal

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/hotspot-detector/geodetect/internal/raster"
)

// Name is the reader name registered with the raster package.
const Name = "gdal"

func init() {
	godal.RegisterAll()
	raster.Register(Name, Open)
}

// Open reads the geotransform and structure of any GDAL-readable raster.
// The dataset is closed before returning; only the transform is kept.
func Open(path string) (raster.Dataset, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", raster.ErrUnreadableRaster, err)
	}
	defer func() { _ = ds.Close() }()

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("%w: no geotransform: %w", raster.ErrUnreadableRaster, err)
	}
	t := raster.FromGDAL(gt)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: degenerate geotransform %v", raster.ErrUnreadableRaster, gt)
	}

	st := ds.Structure()
	meta := raster.Metadata{
		Width:  st.SizeX,
		Height: st.SizeY,
		Bands:  st.NBands,
		CRS:    crsOf(ds),
	}
	if md := ds.Metadata("AREA_OR_POINT"); strings.EqualFold(md, "Point") {
		meta.PixelIsPoint = true
	}

	return raster.NewDataset(t, meta, nil), nil
}

func crsOf(ds *godal.Dataset) string {
	sr := ds.SpatialRef()
	if sr == nil {
		return ""
	}
	defer sr.Close()
	if name, code := sr.AuthorityName(""), sr.AuthorityCode(""); name != "" && code != "" {
		return name + ":" + code
	}
	return ""
}
