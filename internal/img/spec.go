package img

import (
	"errors"
	"fmt"
	"image"
	"math"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// ResizeFunc is a custom resize operation. It takes full responsibility for
// producing the thumbnail; returning nil signals a failed resize.
type ResizeFunc func(image.Image) image.Image

// ResizeSpec is a compiled resize operation: either Parametric or Custom.
type ResizeSpec interface {
	// Resize applies the operation to src. Parametric specs need a non-nil
	// backend; Custom specs ignore it.
	Resize(b Backend, src image.Image) image.Image
	// String returns the resize_spec form used in output path templates.
	String() string

	isResizeSpec()
}

// Parametric is a size-driven resize. A zero Width or Height means the side
// is unset and the source's own dimension is used.
type Parametric struct {
	Width      int
	Height     int
	KeepAspect bool
}

func (Parametric) isResizeSpec() {}

// Resize implements ResizeSpec.
//
//   - KeepAspect with both sides set: crop-fill to exactly Width x Height.
//   - KeepAspect with one side set: fit inside the box, never upscaling.
//   - Otherwise: resize to exactly (Width or W) x (Height or H), deforming.
func (p Parametric) Resize(b Backend, src image.Image) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil
	}

	if p.KeepAspect {
		if p.Width > 0 && p.Height > 0 {
			return b.Fill(src, p.Width, p.Height)
		}
		w, h := FitDimensions(srcW, srcH, orDefault(p.Width, srcW), orDefault(p.Height, srcH))
		return b.Resize(src, w, h)
	}

	return b.Resize(src, orDefault(p.Width, srcW), orDefault(p.Height, srcH))
}

func (p Parametric) String() string {
	sep := "x"
	if p.KeepAspect {
		sep = "c"
	}
	return dimString(p.Width) + sep + dimString(p.Height)
}

func (p Parametric) validate(name string, raw any) error {
	if p.Width < 0 || p.Height < 0 {
		return &InvalidSpecError{Name: name, Value: raw, Reason: "dimensions should be strictly positive integers"}
	}
	return nil
}

// Custom delegates resizing to a caller supplied function.
type Custom struct {
	// Name is used as the resize_spec string; defaults to the function name.
	Name string
	Func ResizeFunc
}

func (Custom) isResizeSpec() {}

// Resize implements ResizeSpec. The backend is ignored.
func (c Custom) Resize(_ Backend, src image.Image) image.Image {
	return c.Func(src)
}

func (c Custom) String() string {
	if c.Name != "" {
		return c.Name
	}
	return funcName(c.Func)
}

// Compile normalizes one raw resize spec. Accepted shapes:
//
//	s                 square s x s, deforming
//	[s]               same as s
//	[s, keep]         square, aspect preserved when keep is true
//	[w, h]            deforming; w or h may be nil or "auto"
//	[w, h, keep]      as above with aspect preservation
//	"WxH", "WcH"      string form, "?" for an unset side
//	ResizeFunc        custom operation
//
// Integers may be any Go integer kind or an integral float64.
func Compile(name string, raw any) (ResizeSpec, error) {
	invalid := func(reason string) error {
		return &InvalidSpecError{Name: name, Value: raw, Reason: reason}
	}

	switch v := raw.(type) {
	case nil:
		return nil, invalid("empty spec")
	case bool:
		return nil, invalid("bool is not a valid spec type")
	case Parametric:
		if err := v.validate(name, raw); err != nil {
			return nil, err
		}
		return v, nil
	case Custom:
		if v.Func == nil {
			return nil, invalid("custom spec without a function")
		}
		return v, nil
	case ResizeFunc:
		if v == nil {
			return nil, invalid("nil resize function")
		}
		return Custom{Func: v}, nil
	case func(image.Image) image.Image:
		if v == nil {
			return nil, invalid("nil resize function")
		}
		return Custom{Func: v}, nil
	case string:
		return parseString(name, raw, v)
	}

	if s, ok := asInt(raw); ok {
		return square(name, raw, s, false)
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		elems := make([]any, rv.Len())
		for i := range elems {
			elems[i] = rv.Index(i).Interface()
		}
		return fromTuple(name, raw, elems)
	}

	return nil, invalid(fmt.Sprintf("%T is not a valid spec type", raw))
}

// CompileAll compiles every named spec. All invalid specs are reported
// together so a misconfiguration is visible in one run.
func CompileAll(raw map[string]any) (map[string]ResizeSpec, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make(map[string]ResizeSpec, len(raw))
	var errs []error
	for _, name := range names {
		spec, err := Compile(name, raw[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs[name] = spec
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}

// NeedsBackend reports whether any spec is parametric.
func NeedsBackend(specs map[string]ResizeSpec) bool {
	for _, spec := range specs {
		if _, ok := spec.(Parametric); ok {
			return true
		}
	}
	return false
}

// FitDimensions returns the size of a srcW x srcH image scaled down to fit in
// a boxW x boxH box while keeping its aspect ratio. The constrained side
// matches the box exactly, the other side is floored. Images already inside
// the box keep their size.
func FitDimensions(srcW, srcH, boxW, boxH int) (int, int) {
	if srcW <= boxW && srcH <= boxH {
		return srcW, srcH
	}
	if boxW*srcH <= boxH*srcW {
		return boxW, max(1, srcH*boxW/srcW)
	}
	return max(1, srcW*boxH/srcH), boxH
}

func fromTuple(name string, raw any, elems []any) (ResizeSpec, error) {
	invalid := &InvalidSpecError{Name: name, Value: raw, Reason: "incorrect spec format"}

	switch len(elems) {
	case 1:
		if s, ok := asInt(elems[0]); ok {
			return square(name, raw, s, false)
		}
	case 2:
		if s, ok := asInt(elems[0]); ok {
			if keep, ok := elems[1].(bool); ok {
				return square(name, raw, s, keep)
			}
		}
		return dimensions(name, raw, elems[0], elems[1], false)
	case 3:
		keep, ok := elems[2].(bool)
		if !ok {
			return nil, invalid
		}
		return dimensions(name, raw, elems[0], elems[1], keep)
	}
	return nil, invalid
}

func square(name string, raw any, s int, keep bool) (ResizeSpec, error) {
	if s <= 0 {
		return nil, &InvalidSpecError{Name: name, Value: raw, Reason: "dimensions should be strictly positive integers"}
	}
	return Parametric{Width: s, Height: s, KeepAspect: keep}, nil
}

func dimensions(name string, raw any, w, h any, keep bool) (ResizeSpec, error) {
	width, err := asDimension(name, raw, w)
	if err != nil {
		return nil, err
	}
	height, err := asDimension(name, raw, h)
	if err != nil {
		return nil, err
	}
	return Parametric{Width: width, Height: height, KeepAspect: keep}, nil
}

// asDimension maps nil and "auto" to 0 (unset) and rejects explicit values
// that are not strictly positive.
func asDimension(name string, raw any, v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(s), "auto") {
		return 0, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, &InvalidSpecError{Name: name, Value: raw, Reason: "incorrect spec format"}
	}
	if n <= 0 {
		return 0, &InvalidSpecError{Name: name, Value: raw, Reason: "dimensions should be strictly positive integers"}
	}
	return n, nil
}

var specStringPattern = regexp.MustCompile(`^(\d+|\?)([xc])(\d+|\?)$`)

func parseString(name string, raw any, s string) (ResizeSpec, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return square(name, raw, n, false)
	}

	m := specStringPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, &InvalidSpecError{Name: name, Value: raw, Reason: "unrecognized spec string, expected WxH or WcH"}
	}
	w, err := parseDimString(name, raw, m[1])
	if err != nil {
		return nil, err
	}
	h, err := parseDimString(name, raw, m[3])
	if err != nil {
		return nil, err
	}
	return Parametric{Width: w, Height: h, KeepAspect: m[2] == "c"}, nil
}

func parseDimString(name string, raw any, s string) (int, error) {
	if s == "?" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &InvalidSpecError{Name: name, Value: raw, Reason: "dimensions should be strictly positive integers"}
	}
	return n, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return integral(float64(n))
	case float64:
		return integral(n)
	}
	return 0, false
}

func integral(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func dimString(n int) string {
	if n <= 0 {
		return "?"
	}
	return strconv.Itoa(n)
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}

func funcName(fn ResizeFunc) string {
	if fn == nil {
		return "<nil>"
	}
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return fmt.Sprintf("%p", fn)
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
