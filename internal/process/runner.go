package process

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tendant/site-thumbnailer/internal/img"
	"github.com/tendant/site-thumbnailer/internal/plan"
)

// Settings configure one thumbnail pass.
type Settings struct {
	Enable       bool
	OutputPath   string
	Paths        []string
	SaveAs       string
	SkipExisting bool
	Resizes      map[string]any
}

// Report summarizes a pass.
type Report struct {
	PassID    string
	Disabled  bool
	StartedAt time.Time
	Duration  time.Duration
	Entries   []*Entry
}

// Count returns the number of entries that ended in state.
func (r *Report) Count(state EntryState) int {
	n := 0
	for _, e := range r.Entries {
		if e.State == state {
			n++
		}
	}
	return n
}

// Failed returns the number of entries in any failure state.
func (r *Report) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if e.State.Failed() {
			n++
		}
	}
	return n
}

// Observer receives the outcome of every entry and of every completed pass.
type Observer interface {
	ObserveEntry(passID string, e *Entry)
	ObservePass(r *Report)
}

// Runner materializes thumbnails. The backend is fixed for the Runner's
// lifetime; a nil backend only supports custom resize specs.
type Runner struct {
	fs         afero.Fs
	backend    img.Backend
	backendErr error
	logger     *slog.Logger
	observers  []Observer
}

func NewRunner(fs afero.Fs, backend img.Backend, logger *slog.Logger, observers ...Observer) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{fs: fs, backend: backend, logger: logger, observers: observers}
}

// NewRunnerFor resolves the backend by name. An unknown name leaves the
// Runner without a backend; passes with parametric specs then fail with the
// error naming the requested backend.
func NewRunnerFor(fs afero.Fs, backendName string, logger *slog.Logger, observers ...Observer) *Runner {
	r := NewRunner(fs, nil, logger, observers...)
	backend, err := img.NewBackend(backendName)
	if err != nil {
		r.logger.Warn("image backend unavailable", "backend", backendName, "err", err)
		r.backendErr = err
		return r
	}
	r.backend = backend
	return r
}

// Plan compiles the resize specs and computes the output plan. Spec,
// backend and template errors are returned before any file is read.
func (r *Runner) Plan(s Settings) (map[string]img.ResizeSpec, plan.Plan, error) {
	return r.prepare(r.logger, s)
}

func (r *Runner) prepare(logger *slog.Logger, s Settings) (map[string]img.ResizeSpec, plan.Plan, error) {
	specs, err := img.CompileAll(s.Resizes)
	if err != nil {
		return nil, nil, fmt.Errorf("compile resizes: %w", err)
	}
	if r.backend == nil && img.NeedsBackend(specs) {
		if r.backendErr != nil {
			return nil, nil, r.backendErr
		}
		return nil, nil, &img.MissingDependencyError{}
	}

	saveAs, err := plan.ParseTemplate(s.SaveAs)
	if err != nil {
		return nil, nil, err
	}

	roots := plan.ResolveRoots(s.OutputPath, s.Paths)
	p := plan.NewPlanner(r.fs, logger).Build(specs, roots, saveAs)
	return specs, p, nil
}

// Run executes one pass. Configuration errors abort the pass before any file
// is touched; per-file errors are logged and recorded on their entry. A
// cancelled context stops the pass between entries; observers still receive
// the partial report, which is returned together with the context error.
func (r *Runner) Run(ctx context.Context, s Settings) (*Report, error) {
	report := &Report{PassID: uuid.NewString(), StartedAt: time.Now()}
	logger := r.logger.With("pass_id", report.PassID)

	if !s.Enable {
		logger.Debug("thumbnail generation disabled")
		report.Disabled = true
		return report, nil
	}

	specs, p, err := r.prepare(logger, s)
	if err != nil {
		logger.Error("thumbnail pass aborted", "err", err)
		return nil, err
	}
	logger.Info("thumbnail pass starting", "planned", len(p), "resizes", len(specs), "backend", r.backendName(), "skip_existing", s.SkipExisting)

	for _, out := range p.Outputs() {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(report.StartedAt)
			logger.Warn("thumbnail pass interrupted", "done", len(report.Entries), "planned", len(p), "err", err)
			r.observePass(report)
			return report, err
		}

		e := r.materialize(logger, s, specs, out, p[out])
		report.Entries = append(report.Entries, e)
		for _, o := range r.observers {
			o.ObserveEntry(report.PassID, e)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	logger.Info("thumbnail pass complete",
		"written", report.Count(StateWritten),
		"skipped", report.Count(StateSkipped),
		"failed", report.Failed(),
		"duration_ms", report.Duration.Milliseconds())

	r.observePass(report)
	return report, nil
}

func (r *Runner) observePass(report *Report) {
	for _, o := range r.observers {
		o.ObservePass(report)
	}
}

func (r *Runner) materialize(logger *slog.Logger, s Settings, specs map[string]img.ResizeSpec, out string, src plan.Source) *Entry {
	e := NewEntry(out, src)
	log := logger.With("output", out, "input", src.Input, "resize", src.Resize)

	if s.SkipExisting {
		if exists, err := afero.Exists(r.fs, out); err == nil && exists {
			MarkSkipped(e)
			log.Debug("thumbnail already exists, skipped")
			return e
		}
	}

	if err := r.fs.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		MarkFailed(e, StateWriteFailed, fmt.Errorf("mkdir: %w", err))
		log.Error("create output directory failed", "err", err)
		return e
	}

	source, err := img.Open(r.fs, src.Input)
	if err != nil {
		MarkFailed(e, StateOpenFailed, err)
		log.Error("image could not be opened", "err", err)
		return e
	}
	MarkOpened(e)

	thumb, err := img.Apply(src.Resize, specs[src.Resize], r.backend, source)
	if err != nil {
		MarkFailed(e, StateResizeFailed, err)
		log.Error("thumbnail could not be created", "err", err)
		return e
	}
	MarkResized(e, thumb)

	if err := img.Save(r.fs, out, thumb.Image); err != nil {
		MarkFailed(e, StateWriteFailed, fmt.Errorf("save: %w", err))
		log.Error("thumbnail could not be saved", "err", err)
		return e
	}
	MarkWritten(e)
	log.Info("thumbnail created", "width", thumb.Width, "height", thumb.Height)
	return e
}

func (r *Runner) backendName() string {
	if r.backend == nil {
		return img.BackendNone
	}
	return r.backend.Name()
}
