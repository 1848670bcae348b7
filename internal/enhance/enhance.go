package enhance

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"recon-flyover/internal/common"
)

// Options controls the enhancement chain. Factors follow the usual image
// enhancement convention: 1.0 leaves the image unchanged, values above 1
// strengthen the effect.
type Options struct {
	Contrast   float64
	Sharpness  float64
	Saturation float64
	Width      int
	Height     int
	Quality    int
}

// DefaultOptions returns the standard frame enhancement settings
func DefaultOptions() Options {
	return Options{
		Contrast:   1.2,
		Sharpness:  1.3,
		Saturation: 1.1,
		Width:      800,
		Height:     800,
		Quality:    95,
	}
}

// Enhancer applies contrast, sharpness and saturation boosts, then resamples
// to a fixed size with a Lanczos filter
type Enhancer struct {
	opts Options
}

// New creates an enhancer
func New(opts Options) *Enhancer {
	return &Enhancer{opts: opts}
}

// OutputPath returns the enhanced derivative path for a raw frame
func OutputPath(rawPath string) string {
	return strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "_enhanced.jpg"
}

// Enhance reads rawPath and writes the enhanced JPEG next to it.
// Any failure degrades to the raw image.
func (e *Enhancer) Enhance(rawPath string) common.StepResult {
	src, err := imaging.Open(rawPath)
	if err != nil {
		log.Printf("[Enhance] Warning: failed to decode %s: %v", rawPath, err)
		return common.Degrade(rawPath, fmt.Errorf("failed to decode image: %w", err))
	}

	out := e.Apply(src)
	dest := OutputPath(rawPath)
	if err := common.SaveJPEG(dest, out, e.opts.Quality); err != nil {
		log.Printf("[Enhance] Warning: failed to save %s: %v", dest, err)
		return common.Degrade(rawPath, err)
	}

	return common.StepResult{Path: dest, Status: common.StepSuccess}
}

// Apply runs the enhancement chain in memory
func (e *Enhancer) Apply(src image.Image) *image.NRGBA {
	img := imaging.Clone(src)
	img = contrast(img, e.opts.Contrast)
	img = sharpen(img, e.opts.Sharpness)
	img = saturate(img, e.opts.Saturation)
	return imaging.Resize(img, e.opts.Width, e.opts.Height, imaging.Lanczos)
}

// contrast scales each channel away from the mean luminance of the image
func contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	if factor == 1 {
		return img
	}
	mean := meanLuma(img)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: blend(mean, float64(c.R), factor),
			G: blend(mean, float64(c.G), factor),
			B: blend(mean, float64(c.B), factor),
			A: c.A,
		}
	})
}

// sharpen blends the image with a smoothed copy. Factors above 1 push pixels
// away from their local average.
func sharpen(img *image.NRGBA, factor float64) *image.NRGBA {
	if factor == 1 {
		return img
	}
	smooth := imaging.Convolve3x3(img, [9]float64{
		1, 1, 1,
		1, 5, 1,
		1, 1, 1,
	}, &imaging.ConvolveOptions{Normalize: true})

	out := image.NewNRGBA(img.Bounds())
	for i := 0; i+3 < len(img.Pix); i += 4 {
		out.Pix[i+0] = blend(float64(smooth.Pix[i+0]), float64(img.Pix[i+0]), factor)
		out.Pix[i+1] = blend(float64(smooth.Pix[i+1]), float64(img.Pix[i+1]), factor)
		out.Pix[i+2] = blend(float64(smooth.Pix[i+2]), float64(img.Pix[i+2]), factor)
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// saturate blends each pixel with its own grayscale value
func saturate(img *image.NRGBA, factor float64) *image.NRGBA {
	if factor == 1 {
		return img
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		gray := luma(c.R, c.G, c.B)
		return color.NRGBA{
			R: blend(gray, float64(c.R), factor),
			G: blend(gray, float64(c.G), factor),
			B: blend(gray, float64(c.B), factor),
			A: c.A,
		}
	})
}

// blend computes base + factor*(v-base), clamped to a byte
func blend(base, v, factor float64) uint8 {
	x := base + factor*(v-base)
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x + 0.5)
}

func luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func meanLuma(img *image.NRGBA) float64 {
	n := len(img.Pix) / 4
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+3 < len(img.Pix); i += 4 {
		sum += luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
	}
	return sum / float64(n)
}
