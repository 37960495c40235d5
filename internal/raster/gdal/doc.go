// Package gdal registers a GDAL-backed raster reader when built with
// "-tags gdal". It reads every format GDAL supports, not only GeoTIFF.
// Without the tag the package is empty and the "gdal" reader is not
// available.
package gdal
