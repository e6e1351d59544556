package sink

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/errors"
	"panel-lab/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const panel = domain.PanelID("panel-1")

func TestDirectorySink_Reports_Side_Effects(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockDirectory(ctrl)
	sink := NewDirectorySink(directory, logs.GetLoggerFromLevel(slog.LevelError))
	ctx := context.Background()
	at := time.Now()

	gomock.InOrder(
		directory.EXPECT().RaiseHand(ctx, panel).Return(nil),
		directory.EXPECT().LowerHand(ctx, panel).Return(nil),
		directory.EXPECT().Promote(ctx, panel, "alice").Return(nil),
		directory.EXPECT().Kick(ctx, panel, "bob").Return(nil),
		directory.EXPECT().MuteAll(ctx, panel).Return(nil),
		directory.EXPECT().EndPanel(ctx, panel).Return(nil),
		directory.EXPECT().LeavePanel(ctx, panel).Return(nil),
	)

	events := []event.DomainEvent{
		event.HandChanged{Panel: panel, ParticipantID: "alice", Raised: true, At: at},
		event.HandChanged{Panel: panel, ParticipantID: "alice", Raised: false, At: at},
		event.ParticipantPromoted{Panel: panel, ActorID: "host", TargetID: "alice", Role: domain.RoleSpeaker, At: at},
		event.ParticipantKicked{Panel: panel, ActorID: "host", TargetID: "bob", At: at},
		event.AllMuted{Panel: panel, ActorID: "host", At: at},
		event.PanelEnded{Panel: panel, ActorID: "host", At: at},
		event.SessionClosed{Panel: panel, SelfID: "alice", Reason: domain.ReasonLeft, At: at},
	}
	for _, e := range events {
		req.NoError(sink.Consume(ctx, e))
	}
}

func TestDirectorySink_Ignores_The_Rest(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	// No call expected
	directory := mocks.NewMockDirectory(ctrl)
	sink := NewDirectorySink(directory, logs.GetLoggerFromLevel(slog.LevelError))
	ctx := context.Background()

	events := []event.DomainEvent{
		event.SessionClosed{Panel: panel, Reason: domain.ReasonKicked},
		event.SessionClosed{Panel: panel, Reason: domain.ReasonEnded},
		event.ChatPosted{Panel: panel, Message: domain.Message{Content: "hello"}},
		event.RosterChanged{Panel: panel},
	}
	for _, e := range events {
		req.NoError(sink.Consume(ctx, e))
	}
}

func TestDirectorySink_Failure_Is_Returned_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockDirectory(ctrl)
	sink := NewDirectorySink(directory, logs.GetLoggerFromLevel(slog.LevelError))
	ctx := context.Background()

	directory.EXPECT().RaiseHand(ctx, panel).Return(errors.ErrDirectoryUnreachable).Times(1)

	err := sink.Consume(ctx, event.HandChanged{Panel: panel, ParticipantID: "alice", Raised: true})

	req.ErrorIs(err, errors.ErrDirectoryUnreachable)
}
