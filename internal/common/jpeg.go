package common

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// SaveJPEG encodes img to a temp file next to dest and renames it into place,
// so readers never observe a partially written frame
func SaveJPEG(dest string, img image.Image, quality int) error {
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close output file: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename output file: %w", err)
	}
	return nil
}
