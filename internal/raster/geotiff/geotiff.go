// Package geotiff reads the georeferencing of GeoTIFF files without cgo.
//
// Only the first image file directory is inspected. Pixel data is never
// decoded here; the detector backends read pixels themselves.
package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/raster"
)

// Name is the reader name registered with the raster package.
const Name = "geotiff"

func init() {
	raster.Register(Name, Open)
}

// TIFF tags used for georeferencing.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagSamplesPerPixel     = 277
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
)

// GeoKey ids.
const (
	keyModelType       = 1024
	keyRasterType      = 1025
	keyGeographicType  = 2048
	keyProjectedCSType = 3072

	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsPoint  = 2
	userDefined         = 32767
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeIFD       = 13
	typeLong8     = 16
	typeSLong8    = 17
	typeIFD8      = 18
)

// maxTagBytes caps a single tag's payload so a corrupt count cannot force a huge allocation.
const maxTagBytes = 16 << 20

var typeSizes = map[uint16]uint64{
	typeByte: 1, typeASCII: 1, typeSByte: 1, typeUndefined: 1,
	typeShort: 2, typeSShort: 2,
	typeLong: 4, typeSLong: 4, typeFloat: 4, typeIFD: 4,
	typeRational: 8, typeSRational: 8, typeDouble: 8,
	typeLong8: 8, typeSLong8: 8, typeIFD8: 8,
}

// Open reads the georeferencing of the GeoTIFF at path.
func Open(path string) (raster.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", raster.ErrUnreadableRaster, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", raster.ErrUnreadableRaster, err)
	}

	t, meta, err := Decode(f, info.Size())
	if err != nil {
		return nil, err
	}
	return raster.NewDataset(t, meta, nil), nil
}

// Decode reads the transform and metadata from a TIFF of the given size.
func Decode(r io.ReaderAt, size int64) (raster.Affine, raster.Metadata, error) {
	d := &decoder{r: r, size: size}
	if err := d.readHeader(); err != nil {
		return raster.Affine{}, raster.Metadata{}, unreadable("%v", err)
	}
	if err := d.readIFD(); err != nil {
		return raster.Affine{}, raster.Metadata{}, unreadable("%v", err)
	}
	return d.georeference()
}

func unreadable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", raster.ErrUnreadableRaster, fmt.Sprintf(format, args...))
}

type field struct {
	typ   uint16
	count uint64
	raw   []byte
}

type decoder struct {
	r         io.ReaderAt
	size      int64
	order     binary.ByteOrder
	bigTIFF   bool
	ifdOffset uint64
	fields    map[uint16]field
}

func (d *decoder) readAt(n int, off uint64) ([]byte, error) {
	if off > uint64(d.size) || uint64(n) > uint64(d.size)-off {
		return nil, fmt.Errorf("offset %d+%d beyond end of file (%d bytes)", off, n, d.size)
	}
	buf := make([]byte, n)
	if _, err := d.r.ReadAt(buf, int64(off)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *decoder) readHeader() error {
	hdr, err := d.readAt(8, 0)
	if err != nil {
		return fmt.Errorf("short header: %w", err)
	}
	switch string(hdr[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return errors.NewStd("not a TIFF file")
	}

	switch magic := d.order.Uint16(hdr[2:4]); magic {
	case 42:
		d.ifdOffset = uint64(d.order.Uint32(hdr[4:8]))
	case 43:
		d.bigTIFF = true
		if d.order.Uint16(hdr[4:6]) != 8 {
			return errors.NewStd("unsupported BigTIFF offset size")
		}
		ext, err := d.readAt(8, 8)
		if err != nil {
			return fmt.Errorf("short BigTIFF header: %w", err)
		}
		d.ifdOffset = d.order.Uint64(ext)
	default:
		return fmt.Errorf("bad TIFF magic %d", magic)
	}
	if d.ifdOffset == 0 {
		return errors.NewStd("TIFF has no image directory")
	}
	return nil
}

func (d *decoder) readIFD() error {
	countSize, entrySize, inline := 2, 12, 4
	if d.bigTIFF {
		countSize, entrySize, inline = 8, 20, 8
	}

	cb, err := d.readAt(countSize, d.ifdOffset)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}
	var n uint64
	if d.bigTIFF {
		n = d.order.Uint64(cb)
	} else {
		n = uint64(d.order.Uint16(cb))
	}
	if n == 0 || n > uint64(d.size)/uint64(entrySize) {
		return fmt.Errorf("implausible directory entry count %d", n)
	}

	entries, err := d.readAt(int(n)*entrySize, d.ifdOffset+uint64(countSize))
	if err != nil {
		return fmt.Errorf("reading directory entries: %w", err)
	}

	d.fields = make(map[uint16]field, n)
	for i := range int(n) {
		e := entries[i*entrySize : (i+1)*entrySize]
		tag := d.order.Uint16(e[0:2])
		typ := d.order.Uint16(e[2:4])

		var count uint64
		var valueBytes []byte
		if d.bigTIFF {
			count = d.order.Uint64(e[4:12])
			valueBytes = e[12:20]
		} else {
			count = uint64(d.order.Uint32(e[4:8]))
			valueBytes = e[8:12]
		}

		if !wanted(tag) {
			continue
		}
		elem, ok := typeSizes[typ]
		if !ok {
			return fmt.Errorf("tag %d has unknown type %d", tag, typ)
		}
		if count > maxTagBytes/elem {
			return fmt.Errorf("tag %d payload too large", tag)
		}
		total := count * elem

		var raw []byte
		if total <= uint64(inline) {
			raw = valueBytes[:total]
		} else {
			var off uint64
			if d.bigTIFF {
				off = d.order.Uint64(valueBytes)
			} else {
				off = uint64(d.order.Uint32(valueBytes))
			}
			raw, err = d.readAt(int(total), off)
			if err != nil {
				return fmt.Errorf("reading tag %d: %w", tag, err)
			}
		}
		d.fields[tag] = field{typ: typ, count: count, raw: raw}
	}
	return nil
}

func wanted(tag uint16) bool {
	switch tag {
	case tagImageWidth, tagImageLength, tagSamplesPerPixel,
		tagModelPixelScale, tagModelTiepoint, tagModelTransformation, tagGeoKeyDirectory:
		return true
	}
	return false
}

// uints decodes an integer-typed field.
func (d *decoder) uints(tag uint16) ([]uint64, bool) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, false
	}
	out := make([]uint64, 0, f.count)
	for i := range int(f.count) {
		switch f.typ {
		case typeByte, typeUndefined:
			out = append(out, uint64(f.raw[i]))
		case typeShort:
			out = append(out, uint64(d.order.Uint16(f.raw[i*2:])))
		case typeLong, typeIFD:
			out = append(out, uint64(d.order.Uint32(f.raw[i*4:])))
		case typeLong8, typeIFD8:
			out = append(out, d.order.Uint64(f.raw[i*8:]))
		default:
			return nil, false
		}
	}
	return out, true
}

// doubles decodes a floating-point field.
func (d *decoder) doubles(tag uint16) ([]float64, bool) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, f.count)
	for i := range int(f.count) {
		switch f.typ {
		case typeDouble:
			out = append(out, math.Float64frombits(d.order.Uint64(f.raw[i*8:])))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(d.order.Uint32(f.raw[i*4:]))))
		default:
			return nil, false
		}
	}
	return out, true
}

type geoKeys struct {
	modelType    uint64
	pixelIsPoint bool
	crs          string
}

// readGeoKeys parses the SHORT-valued keys of the GeoKeyDirectory.
func (d *decoder) readGeoKeys() geoKeys {
	var gk geoKeys
	dir, ok := d.uints(tagGeoKeyDirectory)
	if !ok || len(dir) < 4 {
		return gk
	}
	n := int(dir[3])
	values := make(map[uint64]uint64, n)
	for i := range n {
		base := 4 + i*4
		if base+3 >= len(dir) {
			break
		}
		// location 0 means the value is stored inline
		if dir[base+1] == 0 {
			values[dir[base]] = dir[base+3]
		}
	}

	gk.modelType = values[keyModelType]
	gk.pixelIsPoint = values[keyRasterType] == rasterPixelIsPoint

	var code uint64
	switch gk.modelType {
	case modelTypeProjected:
		code = values[keyProjectedCSType]
	case modelTypeGeographic:
		code = values[keyGeographicType]
	default:
		code = values[keyProjectedCSType]
		if code == 0 {
			code = values[keyGeographicType]
		}
	}
	if code > 0 && code < userDefined {
		gk.crs = fmt.Sprintf("EPSG:%d", code)
	}
	return gk
}

func (d *decoder) georeference() (raster.Affine, raster.Metadata, error) {
	var meta raster.Metadata

	w, okW := d.uints(tagImageWidth)
	h, okH := d.uints(tagImageLength)
	if !okW || !okH || len(w) == 0 || len(h) == 0 || w[0] == 0 || h[0] == 0 {
		return raster.Affine{}, meta, unreadable("missing image dimensions")
	}
	meta.Width, meta.Height = int(w[0]), int(h[0])
	meta.Bands = 1
	if spp, ok := d.uints(tagSamplesPerPixel); ok && len(spp) > 0 && spp[0] > 0 {
		meta.Bands = int(spp[0])
	}

	gk := d.readGeoKeys()
	meta.CRS = gk.crs
	meta.PixelIsPoint = gk.pixelIsPoint

	var t raster.Affine
	if m, ok := d.doubles(tagModelTransformation); ok && len(m) >= 16 {
		t = raster.Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
	} else {
		tp, okTP := d.doubles(tagModelTiepoint)
		scale, okS := d.doubles(tagModelPixelScale)
		if !okTP || !okS || len(tp) < 6 || len(scale) < 2 {
			return raster.Affine{}, meta, unreadable("no georeferencing tags")
		}
		i, j, x, y := tp[0], tp[1], tp[3], tp[4]
		sx, sy := scale[0], scale[1]
		t = raster.Affine{A: sx, C: x - i*sx, E: -sy, F: y + j*sy}
	}

	if gk.pixelIsPoint {
		// point-registered rasters reference pixel centres; shift to the area corner
		t.C -= 0.5*t.A + 0.5*t.B
		t.F -= 0.5*t.D + 0.5*t.E
	}

	if !t.Valid() {
		return raster.Affine{}, meta, unreadable("degenerate geotransform %v", t.GDAL())
	}
	return t, meta, nil
}
