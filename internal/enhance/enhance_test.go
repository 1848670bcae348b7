package enhance

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-flyover/internal/common"
)

func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
}

func TestEnhanceWritesDerivative(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "frame_1_satellite.jpg")
	writeTestJPEG(t, raw, 256, 256)

	res := New(DefaultOptions()).Enhance(raw)
	require.Equal(t, common.StepSuccess, res.Status, "err: %v", res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, filepath.Join(filepath.Dir(raw), "frame_1_satellite_enhanced.jpg"), res.Path)

	out, err := imaging.Open(res.Path)
	require.NoError(t, err)
	assert.Equal(t, 800, out.Bounds().Dx())
	assert.Equal(t, 800, out.Bounds().Dy())
	assert.NoFileExists(t, res.Path+".part")
}

func TestEnhanceIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	writeTestJPEG(t, a, 300, 200)
	writeTestJPEG(t, b, 300, 200)

	e := New(DefaultOptions())
	ra, rb := e.Enhance(a), e.Enhance(b)
	require.True(t, ra.OK())
	require.True(t, rb.OK())

	da, err := os.ReadFile(ra.Path)
	require.NoError(t, err)
	db, err := os.ReadFile(rb.Path)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestEnhanceAcceptsPNGPayloadWithJPGName(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "frame_2_satellite.jpg")
	img := imaging.New(64, 64, color.NRGBA{R: 10, G: 120, B: 30, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(filepath.Dir(raw), "tmp.png")))
	require.NoError(t, os.Rename(filepath.Join(filepath.Dir(raw), "tmp.png"), raw))

	res := New(DefaultOptions()).Enhance(raw)
	assert.Equal(t, common.StepSuccess, res.Status)
}

func TestEnhanceDegradesOnUndecodableInput(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "frame_3_satellite.jpg")
	require.NoError(t, os.WriteFile(raw, []byte("not an image at all"), 0644))

	res := New(DefaultOptions()).Enhance(raw)
	assert.Equal(t, common.StepDegraded, res.Status)
	assert.Equal(t, raw, res.Path)
	assert.Error(t, res.Err)
	assert.NoFileExists(t, OutputPath(raw))
}

func TestEnhanceDegradesOnMissingFile(t *testing.T) {
	res := New(DefaultOptions()).Enhance(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Equal(t, common.StepDegraded, res.Status)
}

func TestNeutralFactorsOnlyResize(t *testing.T) {
	src := imaging.New(10, 10, color.NRGBA{R: 90, G: 140, B: 200, A: 255})
	out := New(Options{Contrast: 1, Sharpness: 1, Saturation: 1, Width: 10, Height: 10}).Apply(src)

	c := out.NRGBAAt(5, 5)
	assert.InDelta(t, 90, int(c.R), 1)
	assert.InDelta(t, 140, int(c.G), 1)
	assert.InDelta(t, 200, int(c.B), 1)
}

func TestSaturationPushesAwayFromGray(t *testing.T) {
	src := imaging.New(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	out := saturate(imaging.Clone(src), 1.1)

	c := out.NRGBAAt(0, 0)
	assert.Greater(t, int(c.R), 200)
	assert.Less(t, int(c.B), 50)
}

func TestContrastOnFlatImageIsIdentity(t *testing.T) {
	src := imaging.New(4, 4, color.NRGBA{R: 77, G: 77, B: 77, A: 255})
	out := contrast(imaging.Clone(src), 1.2)
	assert.Equal(t, uint8(77), out.NRGBAAt(1, 1).R)
}

func TestBlendClamps(t *testing.T) {
	assert.Equal(t, uint8(255), blend(100, 250, 2))
	assert.Equal(t, uint8(0), blend(200, 10, 3))
	assert.Equal(t, uint8(128), blend(128, 128, 1.3))
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "out/frame_center_satellite_enhanced.jpg", OutputPath("out/frame_center_satellite.jpg"))
}
