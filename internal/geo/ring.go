package geo

import (
	"errors"
	"fmt"
	"math"
)

// KmPerDegree is the flat-earth approximation used for ring offsets
const KmPerDegree = 111.32

var (
	ErrInvalidFrameCount = errors.New("frame count must be at least 1")
	ErrInvalidRadius     = errors.New("radius must be positive and finite")
)

// Viewpoint is a virtual camera position. Ring viewpoints carry a 1-based
// index and a compass bearing; the single nadir viewpoint sits over the center.
type Viewpoint struct {
	Index      int        `json:"index"`
	Bearing    float64    `json:"bearing"`
	Nadir      bool       `json:"nadir"`
	Coordinate Coordinate `json:"coordinate"`
}

// Label returns the frame identifier used in file names ("1", "2", ... or "center")
func (v Viewpoint) Label() string {
	if v.Nadir {
		return "center"
	}
	return fmt.Sprintf("%d", v.Index)
}

// BearingLabel returns the bearing as shown to users ("060" or "overhead")
func (v Viewpoint) BearingLabel() string {
	if v.Nadir {
		return "overhead"
	}
	return fmt.Sprintf("%03.0f", v.Bearing)
}

// GenerateRing places frameCount viewpoints evenly on a circle of radiusKm
// around center, starting due north, then appends the nadir viewpoint.
// Ring points past a pole are clamped to it and longitudes wrap across the
// antimeridian, so every viewpoint is a valid Coordinate.
func GenerateRing(center Coordinate, radiusKm float64, frameCount int) ([]Viewpoint, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if frameCount < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameCount, frameCount)
	}
	if !(radiusKm > 0) || math.IsInf(radiusKm, 1) {
		return nil, fmt.Errorf("%w: %f", ErrInvalidRadius, radiusKm)
	}

	cosLat := math.Cos(degToRad(center.Latitude))
	viewpoints := make([]Viewpoint, 0, frameCount+1)

	for i := 0; i < frameCount; i++ {
		bearing := float64(i) * 360.0 / float64(frameCount)
		rad := degToRad(bearing)

		latOffset := radiusKm * math.Cos(rad) / KmPerDegree
		lonOffset := radiusKm * math.Sin(rad) / (KmPerDegree * cosLat)

		viewpoints = append(viewpoints, Viewpoint{
			Index:   i + 1,
			Bearing: bearing,
			Coordinate: Coordinate{
				Latitude:  math.Max(-90, math.Min(90, center.Latitude+latOffset)),
				Longitude: wrapLongitude(center.Longitude + lonOffset),
			},
		})
	}

	viewpoints = append(viewpoints, Viewpoint{
		Index:      frameCount + 1,
		Nadir:      true,
		Coordinate: center,
	})

	return viewpoints, nil
}

// wrapLongitude folds lon into [-180, 180]
func wrapLongitude(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
