// internal/process/entry.go
package process

import (
	"github.com/tendant/site-thumbnailer/internal/img"
	"github.com/tendant/site-thumbnailer/internal/plan"
)

// EntryState represents where a planned thumbnail is in its lifecycle.
//
//	planned -> skipped
//	planned -> opened -> resized -> written
//	planned -> opened -> resize_failed
//	planned -> opened -> resized -> write_failed
//	planned -> open_failed
//	planned -> write_failed  (output directory could not be created)
type EntryState string

const (
	StatePlanned      EntryState = "planned"
	StateSkipped      EntryState = "skipped"
	StateOpened       EntryState = "opened"
	StateResized      EntryState = "resized"
	StateWritten      EntryState = "written"
	StateOpenFailed   EntryState = "open_failed"
	StateResizeFailed EntryState = "resize_failed"
	StateWriteFailed  EntryState = "write_failed"
)

// Terminal reports whether no further transition is possible.
func (s EntryState) Terminal() bool {
	switch s {
	case StateSkipped, StateWritten, StateOpenFailed, StateResizeFailed, StateWriteFailed:
		return true
	}
	return false
}

// Failed reports whether s is one of the failure states.
func (s EntryState) Failed() bool {
	return s == StateOpenFailed || s == StateResizeFailed || s == StateWriteFailed
}

// Entry tracks one planned output through a pass.
type Entry struct {
	Output string
	Input  string
	Resize string
	State  EntryState
	Error  string

	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int

	err error
}

func NewEntry(output string, src plan.Source) *Entry {
	return &Entry{
		Output: output,
		Input:  src.Input,
		Resize: src.Resize,
		State:  StatePlanned,
	}
}

// Err returns the error that failed the entry, if any.
func (e *Entry) Err() error { return e.err }

func MarkSkipped(e *Entry) { e.State = StateSkipped }
func MarkOpened(e *Entry)  { e.State = StateOpened }
func MarkWritten(e *Entry) { e.State = StateWritten }

func MarkResized(e *Entry, thumb *img.Thumbnail) {
	e.State = StateResized
	if thumb != nil {
		e.Width, e.Height = thumb.Width, thumb.Height
		e.SourceWidth, e.SourceHeight = thumb.SourceWidth, thumb.SourceHeight
	}
}

// MarkFailed moves e into the failure state and records err when non-nil.
func MarkFailed(e *Entry, state EntryState, err error) {
	e.State = state
	if err != nil {
		e.err = err
		e.Error = err.Error()
	}
}
