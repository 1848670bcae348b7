package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"recon-flyover/internal/geo"
)

// Output file names inside a mission directory
const (
	ViewerFile   = "drone_simulation.html"
	MetadataFile = "flyover_metadata.json"
	VideoFile    = "flyover.avi"
	GIFFile      = "flyover.gif"
	GeoTIFFFile  = "center_nadir.tif"
)

// ErrOutsideRoot is returned when a mission directory would escape its root
var ErrOutsideRoot = errors.New("output directory escapes output root")

// Slug lower-cases a POI name, turns whitespace into underscores and keeps
// only [a-z0-9_-]. Names with nothing usable become "poi".
func Slug(poi string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(poi)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "poi"
	}
	return b.String()
}

// OutputDir returns the mission directory,
// {root}/drone_simulation_{slug}_{missionID}. Each mission gets its own.
func OutputDir(root, poi, missionID string) (string, error) {
	name := "drone_simulation_" + Slug(poi)
	if missionID != "" {
		name += "_" + Slug(missionID)
	}
	dir := filepath.Join(root, name)

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel != name {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	return dir, nil
}

// RawFrameName returns the raw frame file name for a viewpoint
// Format: frame_{index|center}_satellite.jpg
func RawFrameName(vp geo.Viewpoint) string {
	return fmt.Sprintf("frame_%s_satellite.jpg", vp.Label())
}

// MissionName returns the flight plan name, Recon_{POI with underscores}
func MissionName(poi string) string {
	return "Recon_" + strings.ReplaceAll(strings.TrimSpace(poi), " ", "_")
}

// LocationID returns the game-side location identifier for a POI
func LocationID(poi string) string {
	return "achill_" + Slug(poi)
}
