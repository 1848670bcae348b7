package hud

import (
	"log"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
)

var fontSizes = map[FontSize]float64{
	Small:  15,
	Medium: 20,
}

var (
	parseOnce  sync.Once
	parsedFont *opentype.Font
)

func loadFont() *opentype.Font {
	parseOnce.Do(func() {
		f, err := opentype.Parse(gomonobold.TTF)
		if err != nil {
			log.Printf("[HUD] Warning: failed to parse font, using basic face: %v", err)
			return
		}
		parsedFont = f
	})
	return parsedFont
}

// faceSet holds one face per size. Faces carry glyph caches and are not
// safe for concurrent use, so every render gets its own set.
type faceSet map[FontSize]font.Face

func newFaces() faceSet {
	faces := make(faceSet, len(fontSizes))
	f := loadFont()
	for size, points := range fontSizes {
		if f != nil {
			face, err := opentype.NewFace(f, &opentype.FaceOptions{
				Size:    points,
				DPI:     72,
				Hinting: font.HintingFull,
			})
			if err == nil {
				faces[size] = face
				continue
			}
			log.Printf("[HUD] Warning: failed to create font face: %v", err)
		}
		faces[size] = basicfont.Face7x13
	}
	return faces
}

func (fs faceSet) face(size FontSize) font.Face {
	if f, ok := fs[size]; ok {
		return f
	}
	return basicfont.Face7x13
}

// Measure implements Measurer
func (fs faceSet) Measure(size FontSize, s string) (float64, float64) {
	face := fs.face(size)
	w := font.MeasureString(face, s)
	return float64(w) / 64, float64(face.Metrics().Height) / 64
}

func (fs faceSet) Close() {
	for _, f := range fs {
		if f != basicfont.Face7x13 {
			f.Close()
		}
	}
}

func drawPanel(dc *gg.Context, faces faceSet, p Placed) {
	switch p.Panel.Kind {
	case KindReticle:
		drawReticle(dc, p)
	case KindBrackets:
		drawBrackets(dc, p)
	default:
		drawText(dc, faces, p)
	}
}

func drawReticle(dc *gg.Context, p Placed) {
	spec := p.Panel.Reticle
	if spec == nil {
		return
	}
	cx := p.Rect.X + p.Rect.W/2
	cy := p.Rect.Y + p.Rect.H/2

	// Range rings go underneath the targeting mark
	if spec.RingStep > 0 {
		dc.SetColor(spec.RingColor)
		dc.SetLineWidth(spec.RingWidth)
		for r := spec.RingStep; r <= spec.RingMax; r += spec.RingStep {
			dc.DrawCircle(cx, cy, r)
			dc.Stroke()
		}
	}

	dc.SetColor(spec.Color)
	dc.SetLineWidth(spec.RadiusWidth)
	dc.DrawCircle(cx, cy, spec.Radius)
	dc.Stroke()

	dc.SetLineWidth(spec.CrossWidth)
	dc.DrawLine(cx-spec.CrossHalf, cy, cx+spec.CrossHalf, cy)
	dc.Stroke()
	dc.DrawLine(cx, cy-spec.CrossHalf, cx, cy+spec.CrossHalf)
	dc.Stroke()
}

func drawBrackets(dc *gg.Context, p Placed) {
	spec := p.Panel.Brackets
	if spec == nil {
		return
	}
	r := p.Rect
	arm := spec.Arm

	corners := [][2]float64{
		{r.X, r.Y},
		{r.MaxX() - arm, r.Y},
		{r.X, r.MaxY() - arm},
		{r.MaxX() - arm, r.MaxY() - arm},
	}

	dc.SetColor(spec.Color)
	dc.SetLineWidth(spec.Width)
	for _, c := range corners {
		dc.DrawLine(c[0], c[1], c[0]+arm, c[1])
		dc.Stroke()
		dc.DrawLine(c[0], c[1], c[0], c[1]+arm)
		dc.Stroke()
	}
}

func drawText(dc *gg.Context, faces faceSet, p Placed) {
	panel := p.Panel
	r := p.Rect

	if panel.Fill != nil {
		dc.SetColor(panel.Fill)
		dc.DrawRectangle(r.X, r.Y, r.W, r.H)
		dc.Fill()
	}
	if panel.Border != nil && panel.BorderWidth > 0 {
		dc.SetColor(panel.Border)
		dc.SetLineWidth(panel.BorderWidth)
		dc.DrawRectangle(r.X, r.Y, r.W, r.H)
		dc.Stroke()
	}

	if panel.Header != "" {
		if panel.HeaderFill != nil {
			dc.SetColor(panel.HeaderFill)
			dc.DrawRectangle(r.X+2, r.Y+2, r.W-4, panel.HeaderHeight)
			dc.Fill()
		}
		dc.SetFontFace(faces.face(Medium))
		dc.SetColor(panel.HeaderColor)
		dc.DrawStringAnchored(panel.Header, r.X+10, r.Y+8, 0, 1)
	}

	if len(p.Lines) == 0 {
		return
	}
	dc.SetFontFace(faces.face(panel.Font))
	dc.SetColor(panel.TextColor)
	for i, line := range p.Lines {
		y := r.Y + panel.PadY + float64(i)*panel.LineHeight
		dc.DrawStringAnchored(line, r.X+panel.PadX, y, 0, 1)
	}
}
