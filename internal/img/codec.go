package img

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	_ "golang.org/x/image/webp" // WebP decoding
)

// Open decodes the image at path, applying EXIF orientation. Any failure is
// returned as an *UnreadableImageError.
func Open(fs afero.Fs, path string) (image.Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, &UnreadableImageError{Path: path, Err: fmt.Errorf("open: %w", err)}
	}
	defer f.Close()

	src, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &UnreadableImageError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return src, nil
}

// Save encodes img to path in the format implied by its extension. A
// partially written file is removed when encoding fails.
func Save(fs afero.Fs, path string, img image.Image) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if err := imaging.Encode(f, img, format); err != nil {
		_ = f.Close()
		_ = fs.Remove(path)
		return fmt.Errorf("encode: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = fs.Remove(path)
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
