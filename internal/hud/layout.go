package hud

import (
	"image/color"
	"math"
)

// Palette
var (
	Green = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	Amber = color.NRGBA{R: 255, G: 191, B: 0, A: 255}
	Red   = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	Cyan  = color.NRGBA{R: 0, G: 255, B: 255, A: 255}

	panelFill  = color.NRGBA{R: 0, G: 0, B: 0, A: 200}
	labelFill  = color.NRGBA{R: 0, G: 0, B: 0, A: 180}
	headerFill = color.NRGBA{R: 0, G: 50, B: 0, A: 180}
)

// Kind selects how a panel is drawn
type Kind int

const (
	KindText Kind = iota
	KindReticle
	KindBrackets
)

// Anchor is the image reference point a panel offset is measured from
type Anchor int

const (
	TopLeft Anchor = iota
	TopRight
	BottomLeft
	BottomRight
	BottomCenter
	Center
)

// FontSize selects one of the loaded faces
type FontSize int

const (
	Small FontSize = iota
	Medium
)

// Size sentinels for Panel.W / Panel.H
const (
	Auto    = 0  // fit the text content
	Stretch = -1 // span the image minus the offset on both sides
)

// Reticle describes the center targeting mark
type Reticle struct {
	Radius      float64
	RadiusWidth float64
	CrossHalf   float64
	CrossWidth  float64
	RingStep    float64
	RingMax     float64
	RingWidth   float64
	Color       color.Color
	RingColor   color.Color
}

// Brackets describes the four L-shaped corner marks
type Brackets struct {
	Arm   float64
	Width float64
	Color color.Color
}

// Panel is one entry of the layout table. X and Y are offsets from the
// anchor edges toward the image interior. Lines are templates whose
// {placeholders} are filled from frame metadata.
type Panel struct {
	Name   string
	Kind   Kind
	Anchor Anchor
	X, Y   float64
	W, H   float64

	Fill        color.Color
	Border      color.Color
	BorderWidth float64

	Header       string
	HeaderColor  color.Color
	HeaderFill   color.Color
	HeaderHeight float64

	Lines      []string
	TextColor  color.Color
	Font       FontSize
	PadX, PadY float64
	LineHeight float64

	Reticle  *Reticle
	Brackets *Brackets
}

// Layout is an ordered list of panels; later panels draw on top
type Layout []Panel

// DefaultLayout is the standard drone HUD
func DefaultLayout() Layout {
	return Layout{
		{
			Name:   "reticle",
			Kind:   KindReticle,
			Anchor: Center,
			W:      200,
			H:      200,
			Reticle: &Reticle{
				Radius:      60,
				RadiusWidth: 3,
				CrossHalf:   80,
				CrossWidth:  4,
				RingStep:    20,
				RingMax:     100,
				RingWidth:   1,
				Color:       Red,
				RingColor:   Green,
			},
		},
		{
			Name:     "brackets",
			Kind:     KindBrackets,
			Anchor:   TopLeft,
			X:        50,
			Y:        50,
			W:        Stretch,
			H:        Stretch,
			Brackets: &Brackets{Arm: 40, Width: 4, Color: Green},
		},
		{
			Name:         "telemetry",
			Kind:         KindText,
			Anchor:       TopLeft,
			X:            20,
			Y:            120,
			W:            280,
			H:            400,
			Fill:         panelFill,
			Border:       Green,
			BorderWidth:  2,
			Header:       "MISSION DATA",
			HeaderColor:  Amber,
			HeaderFill:   headerFill,
			HeaderHeight: 33,
			Lines: []string{
				"FRAME: {frame}",
				"BEARING: {bearing}°",
				"LAT: {lat6}",
				"LON: {lon6}",
				"ALT: 120m AGL",
				"SPD: 5.2 m/s",
				"HDG: 045° MAG",
				"GPS: LOCKED",
				"BATT: 78%",
				"TEMP: 12°C",
			},
			TextColor:  Green,
			Font:       Small,
			PadX:       15,
			PadY:       45,
			LineHeight: 20,
		},
		{
			Name:   "mission_status",
			Kind:   KindText,
			Anchor: TopRight,
			X:      20,
			Y:      120,
			Fill:   labelFill,
			Lines: []string{
				"RECON MISSION ACTIVE",
				"TARGET: {poi}",
				"STATUS: OPERATIONAL",
				"MODE: AUTO SURVEY",
			},
			TextColor:  Amber,
			Font:       Small,
			PadX:       10,
			PadY:       10,
			LineHeight: 22,
		},
		{
			Name:        "status_bar",
			Kind:        KindText,
			Anchor:      BottomLeft,
			X:           20,
			Y:           70,
			W:           Stretch,
			H:           30,
			Fill:        panelFill,
			Border:      Green,
			BorderWidth: 2,
		},
		{
			Name:       "status_coords",
			Kind:       KindText,
			Anchor:     BottomLeft,
			X:          30,
			Y:          70,
			H:          30,
			Lines:      []string{"COORDS: {lat4}, {lon4}"},
			TextColor:  Cyan,
			Font:       Small,
			PadY:       10,
			LineHeight: 20,
		},
		{
			Name:       "status_clock",
			Kind:       KindText,
			Anchor:     BottomRight,
			X:          30,
			Y:          70,
			H:          30,
			Lines:      []string{"TIME: {time} UTC"},
			TextColor:  Green,
			Font:       Small,
			PadY:       10,
			LineHeight: 20,
		},
		{
			Name:       "target",
			Kind:       KindText,
			Anchor:     BottomCenter,
			Y:          30,
			H:          30,
			Fill:       labelFill,
			Lines:      []string{"{target}"},
			TextColor:  Cyan,
			Font:       Medium,
			PadX:       10,
			PadY:       5,
			LineHeight: 24,
		},
	}
}

// Rect is a resolved panel rectangle in image pixels
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) MaxX() float64 { return r.X + r.W }
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Overlaps reports whether two rectangles share any interior area
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.MaxX() && o.X < r.MaxX() && r.Y < o.MaxY() && o.Y < r.MaxY()
}

// Measurer reports the rendered size of a string in the given font
type Measurer func(size FontSize, s string) (w, h float64)

// Placed is a panel resolved against an image size
type Placed struct {
	Panel Panel
	Rect  Rect
	Lines []string
}

// Resolve positions every panel for a w x h image with the given text
func (l Layout) Resolve(w, h int, fields map[string]string, measure Measurer) []Placed {
	placed := make([]Placed, 0, len(l))
	for _, p := range l {
		lines := expand(p.Lines, fields)
		placed = append(placed, Placed{
			Panel: p,
			Rect:  p.rect(float64(w), float64(h), lines, measure),
			Lines: lines,
		})
	}
	return placed
}

func (p Panel) rect(imgW, imgH float64, lines []string, measure Measurer) Rect {
	width, height := p.W, p.H

	if width == Stretch {
		width = imgW - 2*p.X
	}
	if height == Stretch {
		height = imgH - 2*p.Y
	}
	if width == Auto || height == Auto {
		var textW float64
		for _, line := range lines {
			lw, _ := measure(p.Font, line)
			textW = math.Max(textW, lw)
		}
		if width == Auto {
			width = textW + 2*p.PadX
		}
		if height == Auto {
			height = float64(len(lines))*p.LineHeight + 2*p.PadY
		}
	}

	var x, y float64
	switch p.Anchor {
	case TopLeft:
		x, y = p.X, p.Y
	case TopRight:
		x, y = imgW-p.X-width, p.Y
	case BottomLeft:
		x, y = p.X, imgH-p.Y-height
	case BottomRight:
		x, y = imgW-p.X-width, imgH-p.Y-height
	case BottomCenter:
		x, y = math.Floor(imgW/2-width/2), imgH-p.Y-height
	case Center:
		x, y = math.Floor(imgW/2)-width/2+p.X, math.Floor(imgH/2)-height/2+p.Y
	}

	return Rect{X: x, Y: y, W: width, H: height}
}
