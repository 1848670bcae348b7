package geo

import (
	"fmt"
	"math"
	"strings"
)

// MaxZoom is the deepest slippy-map level accepted by ToTile
const MaxZoom = 23

// EarthRadius is the WGS84 semi-major axis used by EPSG:3857, in meters
const EarthRadius = 6378137.0

// TileAddress identifies a Web Mercator tile (XYZ scheme, Y from the north edge)
type TileAddress struct {
	Zoom int `json:"z"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// ToTile converts a coordinate to the tile containing it at the given zoom.
// Latitudes beyond the Mercator limit are clamped to the edge rows.
func ToTile(c Coordinate, zoom int) TileAddress {
	if zoom < 0 {
		zoom = 0
	}
	if zoom > MaxZoom {
		zoom = MaxZoom
	}

	n := math.Exp2(float64(zoom))
	latRad := degToRad(c.Latitude)

	x := int(math.Floor((c.Longitude + 180.0) / 360.0 * n))
	y := int(math.Floor((1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * n))

	maxTile := int(n) - 1
	return TileAddress{
		Zoom: zoom,
		X:    clamp(x, 0, maxTile),
		Y:    clamp(y, 0, maxTile),
	}
}

// Quadkey returns the Bing-style quadkey for the tile
func (t TileAddress) Quadkey() string {
	var quadkey strings.Builder
	for i := t.Zoom; i > 0; i-- {
		digit := 0
		mask := 1 << (i - 1)
		if (t.X & mask) != 0 {
			digit++
		}
		if (t.Y & mask) != 0 {
			digit += 2
		}
		quadkey.WriteByte(byte('0' + digit))
	}
	return quadkey.String()
}

// Center returns the coordinate at the middle of the tile
func (t TileAddress) Center() Coordinate {
	n := math.Exp2(float64(t.Zoom))
	lon := (float64(t.X)+0.5)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*(float64(t.Y)+0.5)/n)))
	return Coordinate{Latitude: latRad * 180.0 / math.Pi, Longitude: lon}
}

// MercatorBounds returns the tile's top-left corner and edge length in
// EPSG:3857 meters
func (t TileAddress) MercatorBounds() (originX, originY, size float64) {
	world := 2 * math.Pi * EarthRadius
	size = world / math.Exp2(float64(t.Zoom))
	originX = float64(t.X)*size - world/2
	originY = world/2 - float64(t.Y)*size
	return originX, originY, size
}

func (t TileAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
