package flyover

import (
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
)

// ErrSequenceEmpty means no viewpoint produced a usable frame
var ErrSequenceEmpty = errors.New("flyover sequence is empty")

// Frame is one viewpoint's trip through fetch, enhance and annotate
type Frame struct {
	Viewpoint      geo.Viewpoint
	Zoom           int
	Tile           geo.TileAddress
	Source         string
	Cached         bool
	Tiled          bool
	RawPath        string
	EnhancedPath   string
	AnnotatedPath  string
	EnhanceStatus  common.StepStatus
	AnnotateStatus common.StepStatus
	Err            error
}

// Completed reports whether the frame reached the end of its chain.
// Degraded enhance or annotate steps still leave a usable image.
func (f Frame) Completed() bool {
	if f.RawPath == "" || f.AnnotatedPath == "" {
		return false
	}
	return f.AnnotateStatus == common.StepSuccess || f.AnnotateStatus == common.StepDegraded
}

// Degraded reports whether any step fell back to its input
func (f Frame) Degraded() bool {
	return f.EnhanceStatus == common.StepDegraded || f.AnnotateStatus == common.StepDegraded
}

// ImagePath is the image shown for this frame
func (f Frame) ImagePath() string {
	return f.AnnotatedPath
}

// Sequence is the ordered result of a flyover run. Ring frames come first by
// ascending index, the nadir frame last.
type Sequence struct {
	POI       string
	Location  string
	Center    geo.Coordinate
	Frames    []Frame
	CreatedAt time.Time
}

// Assemble keeps the completed frames and orders them for playback
func Assemble(frames []Frame, poi string, center geo.Coordinate) (*Sequence, error) {
	kept := lo.Filter(frames, func(f Frame, _ int) bool {
		return f.Completed()
	})
	if len(kept) == 0 {
		return nil, ErrSequenceEmpty
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i].Viewpoint, kept[j].Viewpoint
		if a.Nadir != b.Nadir {
			return !a.Nadir
		}
		return a.Index < b.Index
	})

	return &Sequence{
		POI:       poi,
		Center:    center,
		Frames:    kept,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Len returns the number of frames
func (s *Sequence) Len() int {
	return len(s.Frames)
}

// HasNadir reports whether the overhead frame survived
func (s *Sequence) HasNadir() bool {
	return lo.ContainsBy(s.Frames, func(f Frame) bool {
		return f.Viewpoint.Nadir
	})
}

// Sources returns the distinct imagery sources used, in frame order
func (s *Sequence) Sources() []string {
	return lo.Uniq(lo.Map(s.Frames, func(f Frame, _ int) string {
		return f.Source
	}))
}

// ImagePaths returns the displayed image of every frame in order
func (s *Sequence) ImagePaths() []string {
	return lo.Map(s.Frames, func(f Frame, _ int) string {
		return f.ImagePath()
	})
}
