// Package geotiff writes single-strip, uncompressed RGB GeoTIFFs.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"sort"
)

// TIFF field types
const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeDouble   = 12
)

// Baseline and GeoTIFF tag IDs
const (
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagImageDescription          = 270
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagXResolution               = 282
	TagYResolution               = 283
	TagResolutionUnit            = 296
	TagSoftware                  = 305

	TagModelPixelScale  = 33550
	TagModelTiepoint    = 33922
	TagGeoKeyDirectory  = 34735
	TagGeoDoubleParams  = 34736
	TagGeoASCIIParams   = 34737
	EPSGWebMercator     = 3857
	geoKeyModelType     = 1024
	geoKeyRasterType    = 1025
	geoKeyProjectedType = 3072
)

var order = binary.LittleEndian

// Georef places the raster's top-left corner at (OriginX, OriginY) in
// EPSG:3857 meters. Pixel sizes are meters per pixel.
type Georef struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// Options are the optional parts of an encoded file
type Options struct {
	Georef      *Georef
	Description string
	Software    string
}

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// Encode writes m as an 8-bit RGB TIFF, georeferenced when opts.Georef is
// set. Alpha is dropped.
func Encode(w io.Writer, m image.Image, opts Options) error {
	b := m.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("cannot encode empty image %dx%d", width, height)
	}

	pixels := make([]byte, 0, width*height*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := m.At(x, y).RGBA()
			pixels = append(pixels, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}

	fields := []field{
		longField(TagImageWidth, uint32(width)),
		longField(TagImageLength, uint32(height)),
		shortsField(TagBitsPerSample, 8, 8, 8),
		shortsField(TagCompression, 1),
		shortsField(TagPhotometricInterpretation, 2),
		longField(TagStripOffsets, 0),
		shortsField(TagSamplesPerPixel, 3),
		longField(TagRowsPerStrip, uint32(height)),
		longField(TagStripByteCounts, uint32(len(pixels))),
		rationalField(TagXResolution, 72, 1),
		rationalField(TagYResolution, 72, 1),
		shortsField(TagResolutionUnit, 2),
	}
	if opts.Description != "" {
		fields = append(fields, asciiField(TagImageDescription, opts.Description))
	}
	if opts.Software != "" {
		fields = append(fields, asciiField(TagSoftware, opts.Software))
	}
	if g := opts.Georef; g != nil {
		fields = append(fields,
			doublesField(TagModelPixelScale, g.PixelWidth, math.Abs(g.PixelHeight), 0),
			doublesField(TagModelTiepoint, 0, 0, 0, g.OriginX, g.OriginY, 0),
			shortsField(TagGeoKeyDirectory,
				1, 1, 0, 3,
				geoKeyModelType, 0, 1, 1, // projected
				geoKeyRasterType, 0, 1, 1, // pixel is area
				geoKeyProjectedType, 0, 1, EPSGWebMercator,
			),
		)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	// Layout: header, IFD, out-of-line values, pixel strip
	const headerSize = 8
	ifdSize := 2 + 12*len(fields) + 4
	var extra bytes.Buffer
	offsets := make([]uint32, len(fields))
	for i, f := range fields {
		if len(f.value) <= 4 {
			continue
		}
		offsets[i] = uint32(headerSize + ifdSize + extra.Len())
		extra.Write(f.value)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	stripOffset := uint32(headerSize + ifdSize + extra.Len())

	var out bytes.Buffer
	out.Grow(int(stripOffset) + len(pixels))
	out.Write([]byte{'I', 'I', 42, 0})
	binary.Write(&out, order, uint32(headerSize))

	binary.Write(&out, order, uint16(len(fields)))
	for i, f := range fields {
		binary.Write(&out, order, f.tag)
		binary.Write(&out, order, f.typ)
		binary.Write(&out, order, f.count)

		var slot [4]byte
		switch {
		case f.tag == TagStripOffsets:
			order.PutUint32(slot[:], stripOffset)
		case len(f.value) > 4:
			order.PutUint32(slot[:], offsets[i])
		default:
			copy(slot[:], f.value)
		}
		out.Write(slot[:])
	}
	binary.Write(&out, order, uint32(0)) // no next IFD

	out.Write(extra.Bytes())
	out.Write(pixels)

	_, err := out.WriteTo(w)
	return err
}

func shortsField(tag uint16, vs ...uint16) field {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		order.PutUint16(b[2*i:], v)
	}
	return field{tag: tag, typ: typeShort, count: uint32(len(vs)), value: b}
}

func longField(tag uint16, v uint32) field {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return field{tag: tag, typ: typeLong, count: 1, value: b}
}

func rationalField(tag uint16, num, den uint32) field {
	b := make([]byte, 8)
	order.PutUint32(b, num)
	order.PutUint32(b[4:], den)
	return field{tag: tag, typ: typeRational, count: 1, value: b}
}

func doublesField(tag uint16, vs ...float64) field {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		order.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return field{tag: tag, typ: typeDouble, count: uint32(len(vs)), value: b}
}

func asciiField(tag uint16, s string) field {
	b := append([]byte(s), 0)
	return field{tag: tag, typ: typeASCII, count: uint32(len(b)), value: b}
}
