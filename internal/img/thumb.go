// internal/img/thumb.go
package img

import (
	"image"
)

// Thumbnail is the result of applying one resize spec to a source image.
type Thumbnail struct {
	Image        image.Image
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// Apply runs spec against src. A spec that yields no image, including a
// custom function that panics, returns a *ResizeProducedNothingError.
func Apply(name string, spec ResizeSpec, b Backend, src image.Image) (thumb *Thumbnail, err error) {
	defer func() {
		if r := recover(); r != nil {
			thumb = nil
			err = &ResizeProducedNothingError{Resize: name, Cause: r}
		}
	}()

	if _, ok := spec.(Parametric); ok && b == nil {
		return nil, &MissingDependencyError{}
	}

	out := spec.Resize(b, src)
	if isNilImage(out) {
		return nil, &ResizeProducedNothingError{Resize: name}
	}

	srcBounds := src.Bounds()
	bounds := out.Bounds()
	if bounds.Empty() {
		return nil, &ResizeProducedNothingError{Resize: name, Cause: "empty image"}
	}

	return &Thumbnail{
		Image:        out,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		SourceWidth:  srcBounds.Dx(),
		SourceHeight: srcBounds.Dy(),
	}, nil
}

// isNilImage catches both a nil interface and a typed nil pointer such as
// (*image.NRGBA)(nil).
func isNilImage(m image.Image) bool {
	if m == nil {
		return true
	}
	switch v := m.(type) {
	case *image.NRGBA:
		return v == nil
	case *image.RGBA:
		return v == nil
	case *image.Gray:
		return v == nil
	case *image.YCbCr:
		return v == nil
	case *image.Paletted:
		return v == nil
	}
	return false
}
