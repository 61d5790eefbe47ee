// Package watch reruns thumbnail passes when source images change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PassFunc runs one pass and returns the output paths it planned. Changes to
// those paths do not trigger another pass.
type PassFunc func(ctx context.Context) ([]string, error)

// Watcher serializes passes: one runs at a time and events that arrive while
// it runs are coalesced into a single follow-up pass.
type Watcher struct {
	roots    []string
	debounce time.Duration
	pass     PassFunc
	logger   *slog.Logger

	outputs    map[string]struct{}
	outputDirs map[string]struct{}
}

func New(roots []string, debounce time.Duration, pass PassFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		clean = append(clean, filepath.Clean(r))
	}
	return &Watcher{roots: clean, debounce: debounce, pass: pass, logger: logger}
}

// Run performs an initial pass and then watches until ctx is done. An error
// from the initial pass is returned; later pass errors are only logged.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Error("close file watcher failed", "err", err)
		}
	}()

	n := w.addRoots(fw)
	w.logger.Info("watching thumbnail sources", "directories", n, "debounce", w.debounce)

	if err := w.runPass(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fw, event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "err", err)

		case <-timer.C:
			if err := w.runPass(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("thumbnail pass failed", "err", err)
			}
		}
	}
}

func (w *Watcher) runPass(ctx context.Context) error {
	outputs, err := w.pass(ctx)
	w.outputs = make(map[string]struct{}, len(outputs))
	w.outputDirs = make(map[string]struct{})
	for _, out := range outputs {
		out = filepath.Clean(out)
		w.outputs[out] = struct{}{}
		for dir := filepath.Dir(out); ; dir = filepath.Dir(dir) {
			w.outputDirs[dir] = struct{}{}
			if parent := filepath.Dir(dir); parent == dir {
				break
			}
		}
	}
	return err
}

// handleEvent reports whether event should trigger a pass.
func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	name := filepath.Clean(event.Name)
	if strings.HasPrefix(filepath.Base(name), ".") || !w.relevant(name) {
		return false
	}
	if event.Op == fsnotify.Chmod {
		return false
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			w.addTree(fw, name)
			_, generated := w.outputDirs[name]
			return !generated
		}
	}

	if _, generated := w.outputs[name]; generated {
		return false
	}
	w.logger.Debug("source changed", "path", name, "op", event.Op.String())
	return true
}

func (w *Watcher) relevant(name string) bool {
	for _, root := range w.roots {
		if name == root || strings.HasPrefix(name, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addRoots(fw *fsnotify.Watcher) int {
	n := 0
	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil {
			w.logger.Warn("thumbnail path not found", "path", root, "err", err)
			continue
		}
		if !info.IsDir() {
			if err := fw.Add(filepath.Dir(root)); err != nil {
				w.logger.Warn("watch path failed", "path", root, "err", err)
				continue
			}
			n++
			continue
		}
		n += w.addTree(fw, root)
	}
	return n
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) int {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			w.logger.Warn("watch directory failed", "path", path, "err", err)
			return nil
		}
		n++
		return nil
	})
	if err != nil {
		w.logger.Warn("walk watch directory failed", "path", dir, "err", err)
	}
	return n
}
