package img

import "fmt"

// InvalidSpecError reports a raw resize spec that matches none of the
// accepted shapes or carries a non-positive dimension.
type InvalidSpecError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidSpecError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid resize spec %#v: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid resize spec %q (%#v): %s", e.Name, e.Value, e.Reason)
}

// MissingDependencyError reports that a parametric spec needs a resampling
// backend and none is available.
type MissingDependencyError struct {
	Backend string
}

func (e *MissingDependencyError) Error() string {
	if e.Backend == "" || e.Backend == BackendNone {
		return "no image backend configured: parametric resize specs need one"
	}
	return fmt.Sprintf("image backend %q is not available", e.Backend)
}

// UnreadableImageError wraps the failure to open or decode one input file.
type UnreadableImageError struct {
	Path string
	Err  error
}

func (e *UnreadableImageError) Error() string {
	return fmt.Sprintf("unreadable image %s: %v", e.Path, e.Err)
}

func (e *UnreadableImageError) Unwrap() error { return e.Err }

// ResizeProducedNothingError reports a resize that returned no image, for
// instance a custom callback returning nil.
type ResizeProducedNothingError struct {
	Resize string
	Cause  any
}

func (e *ResizeProducedNothingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("resize %q produced no image: %v", e.Resize, e.Cause)
	}
	return fmt.Sprintf("resize %q produced no image", e.Resize)
}
