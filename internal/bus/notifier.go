package bus

import (
	"log/slog"

	"github.com/tendant/site-thumbnailer/internal/process"
	"github.com/tendant/site-thumbnailer/pkg/schema"
)

// JSONPublisher is satisfied by *Client.
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// Notifier publishes a schema.PassCompleted event after every pass.
type Notifier struct {
	pub     JSONPublisher
	subject string
	logger  *slog.Logger
}

func NewNotifier(pub JSONPublisher, subject string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, subject: subject, logger: logger}
}

func (n *Notifier) ObserveEntry(string, *process.Entry) {}

// ObservePass publishes the pass summary. Failures are logged only.
func (n *Notifier) ObservePass(r *process.Report) {
	evt := PassEvent(r)
	if err := n.pub.PublishJSON(n.subject, evt); err != nil {
		n.logger.Error("publish pass completed failed", "pass_id", r.PassID, "subject", n.subject, "err", err)
		return
	}
	n.logger.Debug("published pass completed", "pass_id", r.PassID, "subject", n.subject)
}

// PassEvent converts a report into its wire form.
func PassEvent(r *process.Report) schema.PassCompleted {
	evt := schema.PassCompleted{
		PassID:           r.PassID,
		TotalPlanned:     len(r.Entries),
		TotalWritten:     r.Count(process.StateWritten),
		TotalSkipped:     r.Count(process.StateSkipped),
		TotalFailed:      r.Failed(),
		ProcessingTimeMs: r.Duration.Milliseconds(),
		HappenedAt:       r.StartedAt.Add(r.Duration).Unix(),
	}
	for _, e := range r.Entries {
		evt.Results = append(evt.Results, schema.EntryResult{
			Output:       e.Output,
			Input:        e.Input,
			Resize:       e.Resize,
			Outcome:      schema.EntryOutcome(e.State),
			Width:        e.Width,
			Height:       e.Height,
			SourceWidth:  e.SourceWidth,
			SourceHeight: e.SourceHeight,
			Error:        e.Error,
		})
	}
	return evt
}
