// Package geotifftest writes small uncompressed GeoTIFFs for tests.
//
// The files carry real strip data, so image decoders can read the pixels as
// well as the georeferencing.
package geotifftest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"slices"
)

// Options describes the file to write. Zero values give an 8x8 grey,
// little-endian, classic TIFF with no georeferencing.
type Options struct {
	Width, Height int
	RGB           bool
	BigEndian     bool
	BigTIFF       bool

	// Pixels holds Width*Height*samples bytes. Nil fills a gradient.
	Pixels []byte

	Tiepoint            []float64 // I, J, K, X, Y, Z
	PixelScale          []float64 // ScaleX, ScaleY, ScaleZ
	ModelTransformation []float64 // 16 values, row-major

	EPSG         int
	Geographic   bool
	PixelIsPoint bool
}

// NorthUp returns options for a north-up raster whose upper-left corner is at
// (originX, originY) with square pixels of the given size.
func NorthUp(width, height int, originX, originY, pixelSize float64, epsg int) Options {
	return Options{
		Width:      width,
		Height:     height,
		RGB:        true,
		Tiepoint:   []float64{0, 0, 0, originX, originY, 0},
		PixelScale: []float64{pixelSize, pixelSize, 0},
		EPSG:       epsg,
		Geographic: epsg == 4326,
	}
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte
}

const (
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
	typeLong8  = 16
)

// Encode renders the file.
func Encode(opts Options) []byte {
	if opts.Width == 0 {
		opts.Width = 8
	}
	if opts.Height == 0 {
		opts.Height = 8
	}
	var order binary.ByteOrder = binary.LittleEndian
	if opts.BigEndian {
		order = binary.BigEndian
	}

	samples := 1
	photometric := uint16(1)
	if opts.RGB {
		samples, photometric = 3, 2
	}
	pixels := opts.Pixels
	if pixels == nil {
		pixels = make([]byte, opts.Width*opts.Height*samples)
		for i := range pixels {
			pixels[i] = byte(i % 251)
		}
	}

	shorts := func(v ...uint16) []byte {
		b := make([]byte, 2*len(v))
		for i, x := range v {
			order.PutUint16(b[2*i:], x)
		}
		return b
	}
	longs := func(v ...uint32) []byte {
		b := make([]byte, 4*len(v))
		for i, x := range v {
			order.PutUint32(b[4*i:], x)
		}
		return b
	}
	doubles := func(v ...float64) []byte {
		b := make([]byte, 8*len(v))
		for i, x := range v {
			order.PutUint64(b[8*i:], math.Float64bits(x))
		}
		return b
	}

	bits := make([]uint16, samples)
	for i := range bits {
		bits[i] = 8
	}

	entries := []entry{
		{256, typeLong, 1, longs(uint32(opts.Width))},
		{257, typeLong, 1, longs(uint32(opts.Height))},
		{258, typeShort, uint64(samples), shorts(bits...)},
		{259, typeShort, 1, shorts(1)},
		{262, typeShort, 1, shorts(photometric)},
		{273, typeLong, 1, longs(0)}, // patched below
		{277, typeShort, 1, shorts(uint16(samples))},
		{278, typeLong, 1, longs(uint32(opts.Height))},
		{279, typeLong, 1, longs(uint32(len(pixels)))},
		{284, typeShort, 1, shorts(1)},
	}
	if opts.PixelScale != nil {
		entries = append(entries, entry{33550, typeDouble, uint64(len(opts.PixelScale)), doubles(opts.PixelScale...)})
	}
	if opts.Tiepoint != nil {
		entries = append(entries, entry{33922, typeDouble, uint64(len(opts.Tiepoint)), doubles(opts.Tiepoint...)})
	}
	if opts.ModelTransformation != nil {
		entries = append(entries, entry{34264, typeDouble, uint64(len(opts.ModelTransformation)), doubles(opts.ModelTransformation...)})
	}
	if keys := geoKeys(opts); keys != nil {
		entries = append(entries, entry{34735, typeShort, uint64(len(keys)), shorts(keys...)})
	}
	slices.SortFunc(entries, func(a, b entry) int { return int(a.tag) - int(b.tag) })

	headerSize, countSize, entrySize, nextSize, inline := 8, 2, 12, 4, 4
	if opts.BigTIFF {
		headerSize, countSize, entrySize, nextSize, inline = 16, 8, 20, 8, 8
	}

	// layout: header, directory, out-of-line values, pixels
	offset := headerSize + countSize + len(entries)*entrySize + nextSize
	offsets := make([]int, len(entries))
	for i, e := range entries {
		if len(e.data) > inline {
			offset += offset % 2
			offsets[i] = offset
			offset += len(e.data)
		}
	}
	offset += offset % 2
	pixelOffset := offset

	for i := range entries {
		if entries[i].tag == 273 {
			if opts.BigTIFF {
				b := make([]byte, 8)
				order.PutUint64(b, uint64(pixelOffset))
				entries[i] = entry{273, typeLong8, 1, b}
			} else {
				entries[i].data = longs(uint32(pixelOffset))
			}
		}
	}

	var buf bytes.Buffer
	put16 := func(v uint16) { _ = binary.Write(&buf, order, v) }
	put32 := func(v uint32) { _ = binary.Write(&buf, order, v) }
	put64 := func(v uint64) { _ = binary.Write(&buf, order, v) }

	if opts.BigEndian {
		buf.WriteString("MM")
	} else {
		buf.WriteString("II")
	}
	if opts.BigTIFF {
		put16(43)
		put16(8)
		put16(0)
		put64(uint64(headerSize))
		put64(uint64(len(entries)))
	} else {
		put16(42)
		put32(uint32(headerSize))
		put16(uint16(len(entries)))
	}

	for i, e := range entries {
		put16(e.tag)
		put16(e.typ)
		value := make([]byte, inline)
		if len(e.data) > inline {
			if opts.BigTIFF {
				order.PutUint64(value, uint64(offsets[i]))
			} else {
				order.PutUint32(value, uint32(offsets[i]))
			}
		} else {
			copy(value, e.data)
		}
		if opts.BigTIFF {
			put64(e.count)
		} else {
			put32(uint32(e.count))
		}
		buf.Write(value)
	}
	buf.Write(make([]byte, nextSize))

	for i, e := range entries {
		if offsets[i] == 0 {
			continue
		}
		buf.Write(make([]byte, offsets[i]-buf.Len()))
		buf.Write(e.data)
	}
	buf.Write(make([]byte, pixelOffset-buf.Len()))
	buf.Write(pixels)

	return buf.Bytes()
}

func geoKeys(opts Options) []uint16 {
	if opts.EPSG == 0 && !opts.PixelIsPoint && opts.Tiepoint == nil && opts.ModelTransformation == nil {
		return nil
	}
	modelType, crsKey := uint16(1), uint16(3072)
	if opts.Geographic {
		modelType, crsKey = 2, 2048
	}
	rasterType := uint16(1)
	if opts.PixelIsPoint {
		rasterType = 2
	}

	keys := [][4]uint16{
		{1024, 0, 1, modelType},
		{1025, 0, 1, rasterType},
	}
	if opts.EPSG != 0 {
		keys = append(keys, [4]uint16{crsKey, 0, 1, uint16(opts.EPSG)})
	}

	out := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		out = append(out, k[:]...)
	}
	return out
}

// WriteFile encodes opts to path.
func WriteFile(path string, opts Options) error {
	return os.WriteFile(path, Encode(opts), 0o600)
}
