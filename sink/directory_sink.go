package sink

import (
	"context"
	"fmt"
	"log/slog"

	"panel-lab/contract"
	"panel-lab/domain"
	"panel-lab/domain/event"
)

var _ contract.EventSink = DirectorySink{}

// DirectorySink reports the side effects this participant caused to the
// directory. Calls are made once: a failure is logged, never retried, and
// never holds the session back.
type DirectorySink struct {
	directory contract.Directory
	log       *slog.Logger
}

func NewDirectorySink(directory contract.Directory, log *slog.Logger) DirectorySink {
	return DirectorySink{directory: directory, log: log}
}

func (d DirectorySink) Consume(ctx context.Context, e event.DomainEvent) error {
	var err error
	switch evt := e.(type) {
	case event.HandChanged:
		if evt.Raised {
			err = d.directory.RaiseHand(ctx, evt.Panel)
		} else {
			err = d.directory.LowerHand(ctx, evt.Panel)
		}
	case event.ParticipantPromoted:
		err = d.directory.Promote(ctx, evt.Panel, evt.TargetID)
	case event.ParticipantKicked:
		err = d.directory.Kick(ctx, evt.Panel, evt.TargetID)
	case event.AllMuted:
		err = d.directory.MuteAll(ctx, evt.Panel)
	case event.PanelEnded:
		err = d.directory.EndPanel(ctx, evt.Panel)
	case event.SessionClosed:
		// Kicked and ended sessions were already reported by whoever caused them
		if evt.Reason == domain.ReasonLeft {
			err = d.directory.LeavePanel(ctx, evt.Panel)
		}
	default:
		return nil
	}
	if err != nil {
		d.log.Warn("Directory call failed", "event", fmt.Sprintf("%T", e), "panel", e.PanelID(), "error", err)
		return fmt.Errorf("directory sink: %w", err)
	}
	return nil
}
