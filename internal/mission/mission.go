package mission

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"recon-flyover/internal/flyover"
	"recon-flyover/internal/geo"
	"recon-flyover/internal/utils/naming"
)

// Status represents the lifecycle state of a mission
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the mission has finished
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// FrameSummary is one frame of a completed mission
type FrameSummary struct {
	Index     string `json:"index"`
	Bearing   string `json:"bearing"`
	ImagePath string `json:"image_path"`
	Source    string `json:"source,omitempty"`
}

// Result is the outcome of one recon request
type Result struct {
	ID           string         `json:"mission_id"`
	Status       Status         `json:"status"`
	POI          string         `json:"poi"`
	Location     string         `json:"location,omitempty"`
	LocationID   string         `json:"location_id"`
	Coordinate   geo.Coordinate `json:"coordinate"`
	Geocoder     string         `json:"geocoder,omitempty"`
	Fallback     bool           `json:"geocode_fallback"`
	Frames       []FrameSummary `json:"frames"`
	ViewerPath   string         `json:"viewer_path,omitempty"`
	MetadataPath string         `json:"metadata_path,omitempty"`
	VideoPath    string         `json:"video_path,omitempty"`
	GeoTIFFPath  string         `json:"geotiff_path,omitempty"`
	OutputDir    string         `json:"output_dir,omitempty"`
	Plan         *Plan          `json:"plan,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// NewID returns a fresh mission identifier
func NewID() string {
	return uuid.NewString()
}

// NewResult creates a pending result for a POI
func NewResult(id, poi, location string) *Result {
	if id == "" {
		id = NewID()
	}
	return &Result{
		ID:         id,
		Status:     StatusPending,
		POI:        poi,
		Location:   location,
		LocationID: naming.LocationID(poi),
		Frames:     []FrameSummary{},
		CreatedAt:  time.Now().UTC(),
	}
}

// MarkRunning marks the mission as started
func (r *Result) MarkRunning() {
	r.Status = StatusRunning
}

// MarkCompleted records the assembled flyover
func (r *Result) MarkCompleted(seq *flyover.Sequence, viewerPath string) {
	now := time.Now().UTC()
	r.Status = StatusSuccess
	r.CompletedAt = &now
	r.ViewerPath = viewerPath
	r.Frames = Summarize(seq)
}

// MarkFailed records a fatal error
func (r *Result) MarkFailed(err error) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.CompletedAt = &now
	r.ViewerPath = ""
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the mission took, or zero while it runs
func (r *Result) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.CreatedAt)
}

// Summarize converts assembled frames into result entries
func Summarize(seq *flyover.Sequence) []FrameSummary {
	if seq == nil {
		return []FrameSummary{}
	}
	return lo.Map(seq.Frames, func(f flyover.Frame, _ int) FrameSummary {
		return FrameSummary{
			Index:     f.Viewpoint.Label(),
			Bearing:   bearing(f.Viewpoint),
			ImagePath: f.ImagePath(),
			Source:    f.Source,
		}
	})
}

// bearing renders the bearing in degrees without padding, or "overhead"
func bearing(vp geo.Viewpoint) string {
	if vp.Nadir {
		return "overhead"
	}
	return strconv.FormatFloat(vp.Bearing, 'f', -1, 64)
}
