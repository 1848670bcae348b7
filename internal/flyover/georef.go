package flyover

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"

	"recon-flyover/internal/utils/naming"
	"recon-flyover/pkg/geotiff"
)

// ErrNoGeoreference means the sequence has no tile-aligned nadir frame
var ErrNoGeoreference = errors.New("no tile-aligned nadir frame to georeference")

// WriteNadirGeoTIFF writes the raw nadir tile into dir as an EPSG:3857
// GeoTIFF and returns its path. Only frames from slippy tile sources can be
// placed, since a static map image has no fixed tile footprint.
func WriteNadirGeoTIFF(seq *Sequence, dir string) (string, error) {
	if seq == nil || seq.Len() == 0 {
		return "", ErrSequenceEmpty
	}

	var nadir *Frame
	for i := range seq.Frames {
		f := &seq.Frames[i]
		if f.Viewpoint.Nadir && f.Tiled && f.RawPath != "" {
			nadir = f
			break
		}
	}
	if nadir == nil {
		return "", ErrNoGeoreference
	}

	img, err := imaging.Open(nadir.RawPath)
	if err != nil {
		return "", fmt.Errorf("failed to load nadir frame: %w", err)
	}

	originX, originY, size := nadir.Tile.MercatorBounds()
	b := img.Bounds()

	var buf bytes.Buffer
	err = geotiff.Encode(&buf, img, geotiff.Options{
		Georef: &geotiff.Georef{
			OriginX:     originX,
			OriginY:     originY,
			PixelWidth:  size / float64(b.Dx()),
			PixelHeight: size / float64(b.Dy()),
		},
		Description: fmt.Sprintf("%s nadir, tile %s via %s", seq.POI, nadir.Tile, nadir.Source),
		Software:    "recon-flyover",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode GeoTIFF: %w", err)
	}

	path := filepath.Join(dir, naming.GeoTIFFFile)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}
