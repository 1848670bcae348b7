package naming

import (
	"fmt"
	"math"
	"strings"

	"recon-flyover/internal/geo"
)

// SanitizeCoordinate formats a coordinate for use in filenames (removes minus sign, uses N/S/E/W)
// Replaces decimal point with 'p' for Windows compatibility
func SanitizeCoordinate(coord float64, isLat bool) string {
	dir := "E"
	if isLat {
		if coord < 0 {
			dir = "S"
		} else {
			dir = "N"
		}
	} else if coord < 0 {
		dir = "W"
	}
	coordStr := fmt.Sprintf("%.4f", math.Abs(coord))
	coordStr = strings.Replace(coordStr, ".", "p", 1)
	return coordStr + dir
}

// CoordinateTag returns a filename-safe tag for a point, e.g. 53p9889N_10p0661W
func CoordinateTag(c geo.Coordinate) string {
	return SanitizeCoordinate(c.Latitude, true) + "_" + SanitizeCoordinate(c.Longitude, false)
}
