package process

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"

	"github.com/tendant/site-thumbnailer/internal/img"
	"github.com/tendant/site-thumbnailer/internal/plan"
)

const testSaveAs = "{parent}/thumbnails/{stem}_{resize}{suffix}"

func TestRunScenario(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/photo.png", 800, 600)

	r := newRunner(t, fs)
	report, err := r.Run(context.Background(), testSettings(map[string]any{
		"square": "150c150",
		"wide":   []any{150, nil, true},
		"deform": []any{100, 100, false},
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Count(StateWritten) != 3 {
		t.Fatalf("expected 3 written entries, got %+v", report.Entries)
	}

	checks := map[string][2]int{
		"output/images/thumbnails/photo_square.png": {150, 150},
		"output/images/thumbnails/photo_wide.png":   {150, 112},
		"output/images/thumbnails/photo_deform.png": {100, 100},
	}
	for path, want := range checks {
		got := readImage(t, fs, path)
		if got.Bounds().Dx() != want[0] || got.Bounds().Dy() != want[1] {
			t.Fatalf("%s is %dx%d, want %dx%d", path, got.Bounds().Dx(), got.Bounds().Dy(), want[0], want[1])
		}
	}
}

func TestRunRecordsEntryDimensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/photo.png", 800, 600)

	report, err := newRunner(t, fs).Run(context.Background(), testSettings(map[string]any{"wide": "150c?"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(report.Entries))
	}
	e := report.Entries[0]
	if e.Width != 150 || e.Height != 112 || e.SourceWidth != 800 || e.SourceHeight != 600 {
		t.Fatalf("unexpected dimensions: %+v", e)
	}
	if report.PassID == "" {
		t.Fatalf("report has no pass id")
	}
}

func TestRunCorruptFileDoesNotStopPass(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/good.png", 40, 30)
	if err := afero.WriteFile(fs, filepath.FromSlash("output/images/broken.png"), nil, 0o644); err != nil {
		t.Fatalf("write broken file: %v", err)
	}

	report, err := newRunner(t, fs).Run(context.Background(), testSettings(map[string]any{"small": 10}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var broken *Entry
	for _, e := range report.Entries {
		if filepath.Base(e.Input) == "broken.png" {
			broken = e
		}
	}
	if broken == nil || broken.State != StateOpenFailed {
		t.Fatalf("broken input should fail to open: %+v", broken)
	}
	var unreadable *img.UnreadableImageError
	if !errors.As(broken.Err(), &unreadable) {
		t.Fatalf("expected UnreadableImageError, got %v", broken.Err())
	}

	if ok, _ := afero.Exists(fs, filepath.FromSlash("output/images/thumbnails/good_small.png")); !ok {
		t.Fatalf("good image was not processed")
	}
	if ok, _ := afero.Exists(fs, filepath.FromSlash("output/images/thumbnails/broken_small.png")); ok {
		t.Fatalf("no output should be written for a broken input")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)
	writeImage(t, fs, "output/images/sub/b.png", 30, 90)

	s := testSettings(map[string]any{"t": "20c20", "w": "32x?"})
	s.SkipExisting = false

	r := newRunner(t, fs)
	first, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	snapshot := map[string][]byte{}
	for _, e := range first.Entries {
		data, err := afero.ReadFile(fs, e.Output)
		if err != nil {
			t.Fatalf("read %s: %v", e.Output, err)
		}
		snapshot[e.Output] = data
	}

	second, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(second.Entries) != len(first.Entries) {
		t.Fatalf("second pass planned %d outputs, first planned %d", len(second.Entries), len(first.Entries))
	}
	for _, e := range second.Entries {
		data, err := afero.ReadFile(fs, e.Output)
		if err != nil {
			t.Fatalf("read %s: %v", e.Output, err)
		}
		if !bytes.Equal(data, snapshot[e.Output]) {
			t.Fatalf("%s changed between passes", e.Output)
		}
	}
}

func TestRunWithSkipExistingChangesNothingOnRerun(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)
	writeImage(t, fs, "output/images/sub/b.png", 30, 90)

	s := testSettings(map[string]any{"t": "20c20"})
	r := newRunner(t, fs)

	first, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Count(StateWritten) != len(first.Entries) || len(first.Entries) != 2 {
		t.Fatalf("first pass should write every output: %+v", first.Entries)
	}
	snapshot := map[string][]byte{}
	for _, e := range first.Entries {
		data, err := afero.ReadFile(fs, e.Output)
		if err != nil {
			t.Fatalf("read %s: %v", e.Output, err)
		}
		snapshot[e.Output] = data
	}

	second, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Count(StateSkipped) != len(second.Entries) || second.Count(StateWritten) != 0 {
		t.Fatalf("second pass should skip every output: %+v", second.Entries)
	}
	if len(second.Entries) != len(first.Entries) {
		t.Fatalf("second pass planned %d outputs, first planned %d", len(second.Entries), len(first.Entries))
	}
	for _, e := range second.Entries {
		before, ok := snapshot[e.Output]
		if !ok {
			t.Fatalf("second pass planned %s, which the first pass did not", e.Output)
		}
		data, err := afero.ReadFile(fs, e.Output)
		if err != nil {
			t.Fatalf("read %s: %v", e.Output, err)
		}
		if !bytes.Equal(data, before) {
			t.Fatalf("%s changed between passes", e.Output)
		}
	}
}

func TestRunSkipsExistingOutputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)
	existing := filepath.FromSlash("output/images/thumbnails/a_t.png")
	if err := fs.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := afero.WriteFile(fs, existing, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write existing: %v", err)
	}

	report, err := newRunner(t, fs).Run(context.Background(), testSettings(map[string]any{"t": "20c20"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Count(StateSkipped) != 1 {
		t.Fatalf("expected the existing output to be skipped: %+v", report.Entries)
	}
	data, _ := afero.ReadFile(fs, existing)
	if string(data) != "keep" {
		t.Fatalf("existing output was overwritten")
	}
}

func TestRunMissingBackendFailsBeforeIO(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)

	r := NewRunner(fs, nil, discardLogger())
	_, err := r.Run(context.Background(), testSettings(map[string]any{"t": "20c20"}))

	var missing *img.MissingDependencyError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}
	if ok, _ := afero.DirExists(fs, filepath.FromSlash("output/images/thumbnails")); ok {
		t.Fatalf("no output directory should be created")
	}
}

func TestRunCustomSpecWithoutBackend(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)

	half := func(m image.Image) image.Image {
		return imaging.Resize(m, m.Bounds().Dx()/2, 0, imaging.NearestNeighbor)
	}
	r := NewRunner(fs, nil, discardLogger())
	report, err := r.Run(context.Background(), testSettings(map[string]any{"half": half}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Count(StateWritten) != 1 {
		t.Fatalf("custom spec should run without a backend: %+v", report.Entries)
	}
	got := readImage(t, fs, "output/images/thumbnails/a_half.png")
	if got.Bounds().Dx() != 32 || got.Bounds().Dy() != 24 {
		t.Fatalf("unexpected size %v", got.Bounds())
	}
}

func TestRunInvalidSpecProducesNoEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)

	report, err := newRunner(t, fs).Run(context.Background(), testSettings(map[string]any{
		"ok":  "20c20",
		"bad": "20y20",
	}))
	var invalid *img.InvalidSpecError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidSpecError, got %v", err)
	}
	if report != nil {
		t.Fatalf("no report expected for an invalid configuration")
	}
	if ok, _ := afero.DirExists(fs, filepath.FromSlash("output/images/thumbnails")); ok {
		t.Fatalf("no output should be produced")
	}
}

func TestRunNonPositiveDimensionsProduceNoEntries(t *testing.T) {
	tests := map[string]any{
		"zero width":    []any{0, 100},
		"negative size": -5,
		"zero in tuple": []any{100, 0, true},
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeImage(t, fs, "output/images/a.png", 64, 48)

			r := newRunner(t, fs)
			s := testSettings(map[string]any{"ok": "20c20", "bad": raw})

			if _, p, err := r.Plan(s); err == nil || len(p) != 0 {
				t.Fatalf("Plan should fail with no entries, got %v entries, err %v", len(p), err)
			}

			report, err := r.Run(context.Background(), s)
			var invalid *img.InvalidSpecError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidSpecError, got %v", err)
			}
			if report != nil {
				t.Fatalf("no report expected, got %+v", report)
			}
			if ok, _ := afero.DirExists(fs, filepath.FromSlash("output/images/thumbnails")); ok {
				t.Fatalf("no output should be produced")
			}
		})
	}
}

func TestRunUnknownBackendNamesIt(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)

	r := NewRunnerFor(fs, "imagng", discardLogger())
	_, err := r.Run(context.Background(), testSettings(map[string]any{"t": "20c20"}))

	var missing *img.MissingDependencyError
	if !errors.As(err, &missing) || missing.Backend != "imagng" {
		t.Fatalf("expected MissingDependencyError for imagng, got %v", err)
	}
	if !strings.Contains(err.Error(), `"imagng"`) {
		t.Fatalf("error should name the backend: %v", err)
	}

	half := func(m image.Image) image.Image {
		return imaging.Resize(m, m.Bounds().Dx()/2, 0, imaging.NearestNeighbor)
	}
	report, err := r.Run(context.Background(), testSettings(map[string]any{"half": half}))
	if err != nil || report.Count(StateWritten) != 1 {
		t.Fatalf("custom specs should still run: %v %+v", err, report)
	}
}

func TestNewRunnerForKnownBackend(t *testing.T) {
	r := NewRunnerFor(afero.NewMemMapFs(), img.BackendNfnt, discardLogger())
	if r.backendName() != img.BackendNfnt {
		t.Fatalf("backend = %s, want %s", r.backendName(), img.BackendNfnt)
	}
}

func TestRunInvalidTemplateFailsBeforeIO(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)

	s := testSettings(map[string]any{"t": "20c20"})
	s.SaveAs = "{parent}/{nope}"
	_, err := newRunner(t, fs).Run(context.Background(), s)

	var tmplErr *plan.TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("expected a template error, got %v", err)
	}
}

func TestRunCustomReturningNilSkipsEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)

	nothing := func(image.Image) image.Image { return nil }
	report, err := newRunner(t, fs).Run(context.Background(), testSettings(map[string]any{"nothing": nothing}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Entries) != 1 || report.Entries[0].State != StateResizeFailed {
		t.Fatalf("expected a resize failure: %+v", report.Entries)
	}
	var produced *img.ResizeProducedNothingError
	if !errors.As(report.Entries[0].Err(), &produced) {
		t.Fatalf("expected ResizeProducedNothingError, got %v", report.Entries[0].Err())
	}
	if ok, _ := afero.Exists(fs, filepath.FromSlash("output/images/thumbnails/a_nothing.png")); ok {
		t.Fatalf("nothing should be written for a nil result")
	}
}

func TestRunDisabled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 64, 48)

	s := testSettings(map[string]any{"t": "not a spec at all"})
	s.Enable = false
	report, err := newRunner(t, fs).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("disabled pass should not validate specs: %v", err)
	}
	if !report.Disabled || len(report.Entries) != 0 {
		t.Fatalf("unexpected report for disabled pass: %+v", report)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 16, 16)
	writeImage(t, fs, "output/images/b.png", 16, 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newRunner(t, fs).Run(ctx, testSettings(map[string]any{"t": 8}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil || len(report.Entries) != 0 {
		t.Fatalf("no entry should run after cancellation: %+v", report)
	}
}

func TestRunCancelledPassIsObserved(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 16, 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obs := &recordingObserver{}
	r := NewRunner(fs, mustBackend(t), discardLogger(), obs)
	report, err := r.Run(ctx, testSettings(map[string]any{"t": 8}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(obs.reports) != 1 || obs.reports[0] != report {
		t.Fatalf("partial report not observed: %+v", obs.reports)
	}
}

func TestRunNotifiesObservers(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 16, 16)
	writeImage(t, fs, "output/images/b.png", 16, 16)

	obs := &recordingObserver{}
	r := NewRunner(fs, mustBackend(t), discardLogger(), obs)
	report, err := r.Run(context.Background(), testSettings(map[string]any{"t": 8}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(obs.entries) != 2 {
		t.Fatalf("expected 2 observed entries, got %d", len(obs.entries))
	}
	for _, id := range obs.passIDs {
		if id != report.PassID {
			t.Fatalf("entry observed with pass id %q, want %q", id, report.PassID)
		}
	}
	if len(obs.reports) != 1 || obs.reports[0] != report {
		t.Fatalf("pass report not observed")
	}
}

func TestPlanDoesNotWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImage(t, fs, "output/images/a.png", 16, 16)

	specs, p, err := newRunner(t, fs).Plan(testSettings(map[string]any{"t": 8}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(specs) != 1 || len(p) != 1 {
		t.Fatalf("unexpected plan: %v %v", specs, p)
	}
	if ok, _ := afero.DirExists(fs, filepath.FromSlash("output/images/thumbnails")); ok {
		t.Fatalf("planning must not create outputs")
	}
}

type recordingObserver struct {
	passIDs []string
	entries []*Entry
	reports []*Report
}

func (o *recordingObserver) ObserveEntry(passID string, e *Entry) {
	o.passIDs = append(o.passIDs, passID)
	o.entries = append(o.entries, e)
}

func (o *recordingObserver) ObservePass(r *Report) { o.reports = append(o.reports, r) }

func testSettings(resizes map[string]any) Settings {
	return Settings{
		Enable:       true,
		OutputPath:   "output",
		Paths:        []string{"images"},
		SaveAs:       testSaveAs,
		SkipExisting: true,
		Resizes:      resizes,
	}
}

func newRunner(t *testing.T, fs afero.Fs) *Runner {
	t.Helper()
	return NewRunner(fs, mustBackend(t), discardLogger())
}

func mustBackend(t *testing.T) img.Backend {
	t.Helper()
	b, err := img.NewBackend(img.BackendImaging)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeImage(t *testing.T, fs afero.Fs, path string, w, h int) {
	t.Helper()
	path = filepath.FromSlash(path)

	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, m, imaging.PNG); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readImage(t *testing.T, fs afero.Fs, path string) image.Image {
	t.Helper()
	m, err := img.Open(fs, filepath.FromSlash(path))
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return m
}
