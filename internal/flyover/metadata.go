package flyover

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"recon-flyover/internal/geo"
	"recon-flyover/internal/utils/naming"
)

// FrameMetadata describes one frame in flyover_metadata.json
type FrameMetadata struct {
	Index          string         `json:"index"`
	Bearing        string         `json:"bearing"`
	Coordinate     geo.Coordinate `json:"coordinate"`
	Zoom           int            `json:"zoom"`
	Tile           string         `json:"tile"`
	Source         string         `json:"source"`
	Cached         bool           `json:"cached"`
	RawPath        string         `json:"raw_path"`
	EnhancedPath   string         `json:"enhanced_path"`
	ImagePath      string         `json:"image_path"`
	EnhanceStatus  string         `json:"enhance_status"`
	AnnotateStatus string         `json:"annotate_status"`
}

// Metadata is the machine-readable summary written next to the viewer
type Metadata struct {
	POI              string          `json:"poi_name"`
	Location         string          `json:"location,omitempty"`
	Center           geo.Coordinate  `json:"center_coordinates"`
	CenterTag        string          `json:"center_tag"`
	SuccessfulFrames int             `json:"successful_frames"`
	HasNadir         bool            `json:"has_nadir"`
	Sources          []string        `json:"image_sources"`
	Frames           []FrameMetadata `json:"frames"`
	CreatedAt        time.Time       `json:"creation_date"`
}

// BuildMetadata summarises a sequence with paths relative to dir
func BuildMetadata(seq *Sequence, dir string) Metadata {
	md := Metadata{
		POI:              seq.POI,
		Location:         seq.Location,
		Center:           seq.Center,
		CenterTag:        naming.CoordinateTag(seq.Center),
		SuccessfulFrames: seq.Len(),
		HasNadir:         seq.HasNadir(),
		Sources:          seq.Sources(),
		CreatedAt:        seq.CreatedAt,
	}
	for _, f := range seq.Frames {
		md.Frames = append(md.Frames, FrameMetadata{
			Index:          f.Viewpoint.Label(),
			Bearing:        f.Viewpoint.BearingLabel(),
			Coordinate:     f.Viewpoint.Coordinate,
			Zoom:           f.Zoom,
			Tile:           f.Tile.String(),
			Source:         f.Source,
			Cached:         f.Cached,
			RawPath:        relativePath(dir, f.RawPath),
			EnhancedPath:   relativePath(dir, f.EnhancedPath),
			ImagePath:      relativePath(dir, f.ImagePath()),
			EnhanceStatus:  string(f.EnhanceStatus),
			AnnotateStatus: string(f.AnnotateStatus),
		})
	}
	return md
}

// WriteMetadata writes flyover_metadata.json into dir and returns its path
func WriteMetadata(seq *Sequence, dir string) (string, error) {
	if seq == nil || seq.Len() == 0 {
		return "", ErrSequenceEmpty
	}

	data, err := json.MarshalIndent(BuildMetadata(seq, dir), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	path := filepath.Join(dir, naming.MetadataFile)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
