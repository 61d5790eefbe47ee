package plan

import (
	"path/filepath"
	"strings"
)

// PathFields are the path-derived values available to output templates.
// They follow the attribute names of a Python pathlib path.
type PathFields struct {
	Path     string
	Parts    []string
	Drive    string
	Root     string
	Anchor   string
	Parents  []string
	Parent   string
	Name     string
	Suffix   string
	Suffixes []string
	Stem     string
}

// FieldsOf splits path into its template fields.
func FieldsOf(path string) PathFields {
	path = filepath.Clean(path)
	sep := string(filepath.Separator)

	drive := filepath.VolumeName(path)
	rest := path[len(drive):]
	root := ""
	if strings.HasPrefix(rest, sep) {
		root = sep
	}
	anchor := drive + root

	var components []string
	for _, c := range strings.Split(rest, sep) {
		if c != "" && c != "." {
			components = append(components, c)
		}
	}

	f := PathFields{
		Path:   path,
		Drive:  drive,
		Root:   root,
		Anchor: anchor,
		Parent: parentOf(anchor, components),
	}

	if anchor != "" {
		f.Parts = append(f.Parts, anchor)
	}
	f.Parts = append(f.Parts, components...)

	for i := len(components) - 1; i >= 1; i-- {
		f.Parents = append(f.Parents, anchor+filepath.Join(components[:i]...))
	}
	if len(components) > 0 {
		if anchor != "" {
			f.Parents = append(f.Parents, anchor)
		} else {
			f.Parents = append(f.Parents, ".")
		}
		f.Name = components[len(components)-1]
	}

	f.Suffix = suffixOf(f.Name)
	f.Suffixes = suffixesOf(f.Name)
	f.Stem = strings.TrimSuffix(f.Name, f.Suffix)
	return f
}

func parentOf(anchor string, components []string) string {
	if len(components) <= 1 {
		if anchor != "" {
			return anchor
		}
		return "."
	}
	return anchor + filepath.Join(components[:len(components)-1]...)
}

// suffixOf returns the final extension. Names starting with a dot and names
// ending with one have no suffix of their own.
func suffixOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i > 0 && i < len(name)-1 {
		return name[i:]
	}
	return ""
}

func suffixesOf(name string) []string {
	if strings.HasSuffix(name, ".") {
		return nil
	}
	parts := strings.Split(strings.TrimLeft(name, "."), ".")
	if len(parts) < 2 {
		return nil
	}
	suffixes := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		suffixes = append(suffixes, "."+p)
	}
	return suffixes
}
