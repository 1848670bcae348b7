package hud

import (
	"fmt"
	"image"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
)

// DefaultQuality is the JPEG quality of annotated frames
const DefaultQuality = 98

// Metadata is the per-frame information rendered into the overlay
type Metadata struct {
	Viewpoint geo.Viewpoint
	POI       string
	Location  string
	Timestamp time.Time
}

// Fields returns the template values for the layout's {placeholders}
func (m Metadata) Fields() map[string]string {
	vp := m.Viewpoint

	frame := "CTR"
	bearing := "000"
	if !vp.Nadir {
		frame = fmt.Sprintf("%02d", vp.Index)
		bearing = fmt.Sprintf("%03.0f", vp.Bearing)
	}

	target := strings.ToUpper(m.POI)
	if m.Location != "" {
		target += " - " + strings.ToUpper(m.Location)
	}

	return map[string]string{
		"frame":   frame,
		"bearing": bearing,
		"lat6":    fmt.Sprintf("%.6f", vp.Coordinate.Latitude),
		"lon6":    fmt.Sprintf("%.6f", vp.Coordinate.Longitude),
		"lat4":    fmt.Sprintf("%.4f", vp.Coordinate.Latitude),
		"lon4":    fmt.Sprintf("%.4f", vp.Coordinate.Longitude),
		"time":    m.Timestamp.UTC().Format("15:04:05"),
		"poi":     strings.ToUpper(m.POI),
		"target":  target,
	}
}

// expand substitutes {key} placeholders in each line
func expand(lines []string, fields map[string]string) []string {
	if len(lines) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", fields[k])
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = r.Replace(line)
	}
	return out
}

// Compositor draws the HUD layout over enhanced frames
type Compositor struct {
	layout  Layout
	quality int
	now     func() time.Time
}

// New creates a compositor for the given layout
func New(layout Layout) *Compositor {
	return &Compositor{
		layout:  layout,
		quality: DefaultQuality,
		now:     time.Now,
	}
}

// SetClock overrides the wall clock used when Metadata has no timestamp
func (c *Compositor) SetClock(now func() time.Time) {
	c.now = now
}

// Layout returns the compositor's layout table
func (c *Compositor) Layout() Layout {
	return c.layout
}

// OutputPath returns the annotated derivative path for a frame
func OutputPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_hud.jpg"
}

// Annotate renders the overlay onto the image at path and writes
// <path>_hud.jpg. Any failure degrades to the input image.
func (c *Compositor) Annotate(path string, md Metadata) (res common.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[HUD] Warning: render panic for %s: %v", path, r)
			res = common.Degrade(path, fmt.Errorf("render panic: %v", r))
		}
	}()

	src, err := imaging.Open(path)
	if err != nil {
		log.Printf("[HUD] Warning: failed to decode %s: %v", path, err)
		return common.Degrade(path, fmt.Errorf("failed to decode image: %w", err))
	}

	if md.Timestamp.IsZero() {
		md.Timestamp = c.now()
	}

	out, err := c.Render(src, md)
	if err != nil {
		log.Printf("[HUD] Warning: failed to render %s: %v", path, err)
		return common.Degrade(path, err)
	}

	dest := OutputPath(path)
	if err := common.SaveJPEG(dest, out, c.quality); err != nil {
		log.Printf("[HUD] Warning: failed to save %s: %v", dest, err)
		return common.Degrade(path, err)
	}

	return common.StepResult{Path: dest, Status: common.StepSuccess}
}

// Render draws the layout over a copy of src
func (c *Compositor) Render(src image.Image, md Metadata) (image.Image, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	faces := newFaces()
	defer faces.Close()

	dc := gg.NewContextForImage(src)
	placed := c.layout.Resolve(b.Dx(), b.Dy(), md.Fields(), faces.Measure)
	for _, p := range placed {
		drawPanel(dc, faces, p)
	}
	return dc.Image(), nil
}
