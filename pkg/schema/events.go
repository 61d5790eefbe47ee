// pkg/schema/events.go
package schema

type EntryOutcome string

const (
	OutcomeWritten      EntryOutcome = "written"
	OutcomeSkipped      EntryOutcome = "skipped"
	OutcomeOpenFailed   EntryOutcome = "open_failed"
	OutcomeResizeFailed EntryOutcome = "resize_failed"
	OutcomeWriteFailed  EntryOutcome = "write_failed"
)

type EntryResult struct {
	Output       string       `json:"output"`
	Input        string       `json:"input"`
	Resize       string       `json:"resize"`
	Outcome      EntryOutcome `json:"outcome"`
	Width        int          `json:"width,omitempty"`
	Height       int          `json:"height,omitempty"`
	SourceWidth  int          `json:"source_width,omitempty"`
	SourceHeight int          `json:"source_height,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// PassCompleted is published once per finished thumbnail pass.
type PassCompleted struct {
	PassID           string        `json:"pass_id"`
	TotalPlanned     int           `json:"total_planned"`
	TotalWritten     int           `json:"total_written"`
	TotalSkipped     int           `json:"total_skipped"`
	TotalFailed      int           `json:"total_failed"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Results          []EntryResult `json:"results,omitempty"`
	HappenedAt       int64         `json:"happened_at"`
}
