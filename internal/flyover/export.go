package flyover

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/icza/mjpeg"

	"recon-flyover/internal/utils/naming"
)

// Video formats
const (
	FormatAVI = "avi"
	FormatGIF = "gif"
)

// aviFPS is the container frame rate; slow playback repeats frames
const aviFPS = 2

// ExportOptions controls flyover video export
type ExportOptions struct {
	Format     string  `json:"format" yaml:"format"`
	Width      int     `json:"width" yaml:"width"`
	Height     int     `json:"height" yaml:"height"`
	FrameDelay float64 `json:"frameDelay" yaml:"frame_delay"` // seconds per frame
	Quality    int     `json:"quality" yaml:"quality"`
}

// DefaultExportOptions matches the viewer's playback cadence
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:     FormatAVI,
		Width:      800,
		Height:     800,
		FrameDelay: PlaybackInterval / 1000.0,
		Quality:    90,
	}
}

// ExportVideo writes the sequence as flyover.avi (Motion JPEG) or flyover.gif
// into dir and returns the file path
func ExportVideo(seq *Sequence, dir string, opts ExportOptions) (string, error) {
	if seq == nil || seq.Len() == 0 {
		return "", ErrSequenceEmpty
	}

	frames := make([]image.Image, 0, seq.Len())
	for _, path := range seq.ImagePaths() {
		img, err := imaging.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to load frame %s: %w", filepath.Base(path), err)
		}
		// Degraded frames may be raw tiles of another size
		if b := img.Bounds(); b.Dx() != opts.Width || b.Dy() != opts.Height {
			img = imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
		}
		frames = append(frames, img)
	}

	switch opts.Format {
	case FormatGIF:
		path := filepath.Join(dir, naming.GIFFile)
		return path, exportGIF(frames, path, opts)
	case FormatAVI, "":
		path := filepath.Join(dir, naming.VideoFile)
		return path, exportMotionJPEG(frames, path, opts)
	default:
		return "", fmt.Errorf("unsupported video format: %s", opts.Format)
	}
}

// exportMotionJPEG creates an AVI file with Motion JPEG codec
func exportMotionJPEG(frames []image.Image, outputPath string, opts ExportOptions) error {
	repeats := int(math.Round(opts.FrameDelay * aviFPS))
	if repeats < 1 {
		repeats = 1
	}

	writer, err := mjpeg.New(outputPath, int32(opts.Width), int32(opts.Height), aviFPS)
	if err != nil {
		return fmt.Errorf("failed to create video writer: %w", err)
	}

	for i, frame := range frames {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: opts.Quality}); err != nil {
			writer.Close()
			return fmt.Errorf("failed to encode frame %d as JPEG: %w", i, err)
		}
		for r := 0; r < repeats; r++ {
			if err := writer.AddFrame(buf.Bytes()); err != nil {
				writer.Close()
				return fmt.Errorf("failed to add frame %d: %w", i, err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize video: %w", err)
	}

	log.Printf("[FlyoverExport] MJPEG video exported: %s", outputPath)
	return nil
}

// exportGIF creates an animated GIF
func exportGIF(frames []image.Image, outputPath string, opts ExportOptions) error {
	// Delay in 100ths of a second
	delay := int(opts.FrameDelay * 100)
	if delay < 1 {
		delay = 1
	}

	paletted := make([]*image.Paletted, 0, len(frames))
	delays := make([]int, 0, len(frames))
	for _, frame := range frames {
		bounds := frame.Bounds()
		img := image.NewPaletted(bounds, palette.Plan9)
		draw.FloydSteinberg.Draw(img, bounds, frame, bounds.Min)
		paletted = append(paletted, img)
		delays = append(delays, delay)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	err = gif.EncodeAll(f, &gif.GIF{
		Image: paletted,
		Delay: delays,
		Config: image.Config{
			Width:  opts.Width,
			Height: opts.Height,
		},
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to encode GIF: %w", err)
	}

	log.Printf("[FlyoverExport] GIF exported: %s", outputPath)
	return nil
}
