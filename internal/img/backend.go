package img

import (
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Backend names accepted by NewBackend.
const (
	BackendImaging = "imaging"
	BackendNfnt    = "nfnt"
	BackendNone    = "none"
)

// Backend is the resampling engine used by parametric resize specs.
type Backend interface {
	// Name returns the backend name for logging
	Name() string

	// Resize scales src to exactly width x height.
	Resize(src image.Image, width, height int) image.Image

	// Fill crops src around its centre to the target aspect ratio and scales
	// it to exactly width x height.
	Fill(src image.Image, width, height int) image.Image
}

// NewBackend returns the backend registered under name. BackendNone yields a
// nil Backend, which only custom specs can run with. An empty name selects
// the imaging backend.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendImaging:
		return ImagingBackend{}, nil
	case BackendNfnt:
		return NfntBackend{}, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, &MissingDependencyError{Backend: name}
	}
}

// ImagingBackend resamples with github.com/disintegration/imaging.
type ImagingBackend struct{}

func (ImagingBackend) Name() string { return BackendImaging }

func (ImagingBackend) Resize(src image.Image, width, height int) image.Image {
	return imaging.Resize(src, width, height, imaging.Lanczos)
}

func (ImagingBackend) Fill(src image.Image, width, height int) image.Image {
	return imaging.Fill(src, width, height, imaging.Center, imaging.CatmullRom)
}

// NfntBackend resamples with github.com/nfnt/resize. It has no cropping of
// its own, so Fill crops with imaging before scaling.
type NfntBackend struct{}

func (NfntBackend) Name() string { return BackendNfnt }

func (NfntBackend) Resize(src image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
}

func (NfntBackend) Fill(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	cropW, cropH := srcW, srcH
	if srcW*height > srcH*width {
		cropW = max(1, srcH*width/height)
	} else {
		cropH = max(1, srcW*height/width)
	}

	cropped := imaging.CropCenter(src, cropW, cropH)
	return resize.Resize(uint(width), uint(height), cropped, resize.Bicubic)
}
