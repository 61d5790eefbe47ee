package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Fields recognized in output path templates.
const (
	FieldResize     = "resize"
	FieldResizeSpec = "resize_spec"
)

var knownFields = map[string]bool{
	FieldResize:     true,
	FieldResizeSpec: true,
	"parts":         true,
	"drive":         true,
	"root":          true,
	"anchor":        true,
	"parents":       true,
	"parent":        true,
	"name":          true,
	"suffix":        true,
	"suffixes":      true,
	"stem":          true,
}

// TemplateError reports a malformed output path template.
type TemplateError struct {
	Template string
	Pos      int
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("output template %q at %d: %s", e.Template, e.Pos, e.Reason)
}

// Values are substituted into a Template.
type Values struct {
	Path       PathFields
	Resize     string
	ResizeSpec string
}

// Template is a parsed output path template using str.format field syntax:
// {field}, {field[0]} and {{ }} for literal braces.
type Template struct {
	raw      string
	segments []segment
}

type segment struct {
	text    string
	field   string
	index   int
	indexed bool
}

// ParseTemplate parses s and checks every field name up front.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{raw: s}
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			t.segments = append(t.segments, segment{text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				text.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, &TemplateError{Template: s, Pos: i, Reason: "unmatched '{'"}
			}
			seg, err := parseField(s, i, s[i+1:i+1+end])
			if err != nil {
				return nil, err
			}
			flush()
			t.segments = append(t.segments, seg)
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				text.WriteByte('}')
				i++
				continue
			}
			return nil, &TemplateError{Template: s, Pos: i, Reason: "single '}' encountered"}
		default:
			text.WriteByte(s[i])
		}
	}
	flush()
	return t, nil
}

func parseField(tmpl string, pos int, inner string) (segment, error) {
	fail := func(reason string) (segment, error) {
		return segment{}, &TemplateError{Template: tmpl, Pos: pos, Reason: reason}
	}

	if strings.ContainsAny(inner, "{:!") {
		return fail(fmt.Sprintf("unsupported field %q: conversions and format specs are not allowed", inner))
	}

	name := inner
	seg := segment{}
	if open := strings.IndexByte(inner, '['); open >= 0 {
		if !strings.HasSuffix(inner, "]") {
			return fail(fmt.Sprintf("malformed index in %q", inner))
		}
		idx, err := strconv.Atoi(inner[open+1 : len(inner)-1])
		if err != nil || idx < 0 {
			return fail(fmt.Sprintf("index in %q must be a non-negative integer", inner))
		}
		name = inner[:open]
		seg.index = idx
		seg.indexed = true
	}

	if name == "" {
		return fail("positional fields are not supported")
	}
	if !knownFields[name] {
		return fail(fmt.Sprintf("unknown field %q", name))
	}
	seg.field = name
	return seg, nil
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Execute renders the template. The only runtime failure is an index past the
// end of a field.
func (t *Template) Execute(v Values) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.field == "" {
			b.WriteString(seg.text)
			continue
		}
		s, err := v.lookup(seg)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func (v Values) lookup(seg segment) (string, error) {
	p := v.Path

	var seq []string
	switch seg.field {
	case "parts":
		if !seg.indexed {
			return p.Path, nil
		}
		seq = p.Parts
	case "parents":
		if !seg.indexed {
			return p.Parent, nil
		}
		seq = p.Parents
	case "suffixes":
		if !seg.indexed {
			return strings.Join(p.Suffixes, ""), nil
		}
		seq = p.Suffixes
	default:
		scalar := v.scalar(seg.field)
		if !seg.indexed {
			return scalar, nil
		}
		seq = strings.Split(scalar, "")
	}

	if seg.index >= len(seq) {
		return "", fmt.Errorf("field %s[%d]: index out of range", seg.field, seg.index)
	}
	return seq[seg.index], nil
}

func (v Values) scalar(field string) string {
	p := v.Path
	switch field {
	case FieldResize:
		return v.Resize
	case FieldResizeSpec:
		return v.ResizeSpec
	case "drive":
		return p.Drive
	case "root":
		return p.Root
	case "anchor":
		return p.Anchor
	case "parent":
		return p.Parent
	case "name":
		return p.Name
	case "suffix":
		return p.Suffix
	case "stem":
		return p.Stem
	}
	return ""
}
