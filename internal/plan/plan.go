package plan

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/tendant/site-thumbnailer/internal/img"
)

// Source is the input file and resize name that produce one output.
type Source struct {
	Input  string
	Resize string
}

// Plan maps each output path to the Source that produces it.
type Plan map[string]Source

// Outputs returns the planned output paths in sorted order.
func (p Plan) Outputs() []string {
	outputs := make([]string, 0, len(p))
	for out := range p {
		outputs = append(outputs, out)
	}
	sort.Strings(outputs)
	return outputs
}

// ResolveRoots joins relative source paths under base, the site output
// directory. Absolute paths are kept as they are.
func ResolveRoots(base string, paths []string) []string {
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		if filepath.IsAbs(p) {
			roots = append(roots, filepath.Clean(p))
			continue
		}
		roots = append(roots, filepath.Join(base, p))
	}
	return roots
}

// Planner walks source roots and computes output paths.
type Planner struct {
	fs     afero.Fs
	logger *slog.Logger
}

func NewPlanner(fs afero.Fs, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{fs: fs, logger: logger}
}

// Build maps every (file, resize) pair under roots to its output path.
//
// Resize names are visited in sorted order, roots in the given order and
// files in walk order, so the result only depends on the file tree and the
// arguments. When two pairs format to the same output the later one wins.
// Entries whose input is itself a planned output are dropped: those are
// thumbnails left over from an earlier pass.
func (p *Planner) Build(specs map[string]img.ResizeSpec, roots []string, saveAs *Template) Plan {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	inputs := p.collect(roots)

	plan := make(Plan)
	for _, name := range names {
		specString := specs[name].String()
		for _, in := range inputs {
			out, err := saveAs.Execute(Values{Path: FieldsOf(in), Resize: name, ResizeSpec: specString})
			if err != nil {
				p.logger.Error("format output path failed", "input", in, "resize", name, "template", saveAs.String(), "err", err)
				continue
			}
			out = filepath.Clean(out)

			src := Source{Input: in, Resize: name}
			if prev, ok := plan[out]; ok && prev != src {
				p.logger.Warn("output planned more than once", "output", out, "input", in, "resize", name,
					"previous_input", prev.Input, "previous_resize", prev.Resize)
			}
			plan[out] = src
		}
	}

	var collisions []string
	for out, src := range plan {
		if _, ok := plan[src.Input]; ok {
			collisions = append(collisions, out)
		}
	}
	for _, out := range collisions {
		p.logger.Debug("dropping planned output of a generated file", "output", out, "input", plan[out].Input)
		delete(plan, out)
	}

	return plan
}

// collect lists the files under each root. A root that is a file is used
// as-is; a directory is walked recursively.
func (p *Planner) collect(roots []string) []string {
	var files []string
	for _, root := range roots {
		info, err := p.fs.Stat(root)
		if err != nil {
			p.logger.Warn("thumbnail path not found", "path", root, "err", err)
			continue
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		err = afero.Walk(p.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				p.logger.Warn("walk thumbnail path failed", "path", path, "err", err)
				return nil
			}
			if !info.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			p.logger.Warn("walk thumbnail path failed", "path", root, "err", err)
		}
	}
	return files
}
