//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"panel-lab/domain"
	"panel-lab/domain/event"
	"panel-lab/media"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Directory is the account/session REST service.
// Every call is audit only; the in-memory roster stays the behavioural truth.
type Directory interface {
	ListPanels(ctx context.Context) ([]domain.PanelSummary, error)
	CreatePanel(ctx context.Context, req domain.CreatePanelRequest) (domain.PanelID, error)
	JoinPanel(ctx context.Context, id domain.PanelID) (domain.JoinTicket, error)
	LeavePanel(ctx context.Context, id domain.PanelID) error
	RaiseHand(ctx context.Context, id domain.PanelID) error
	LowerHand(ctx context.Context, id domain.PanelID) error
	MuteAll(ctx context.Context, id domain.PanelID) error
	Promote(ctx context.Context, id domain.PanelID, participantID string) error
	Kick(ctx context.Context, id domain.PanelID, participantID string) error
	EndPanel(ctx context.Context, id domain.PanelID) error
	Audit(ctx context.Context, id domain.PanelID) ([]domain.AuditEntry, error)
}

// Microphone opens the local capture device.
// The returned stream is stopped by its owner, which releases the device.
type Microphone interface {
	Acquire(ctx context.Context) (*media.Stream, error)
}

// AudioSink plays remote streams, one output per remote peer.
type AudioSink interface {
	Attach(peerID string, stream *media.Stream) error
	Detach(peerID string)
}

// Moderator rewrites chat before the hub relays it.
type Moderator interface {
	Censor(text string) (string, bool)
	Language(text string) string
}

type IOrchestrator interface {
	RegisterSinks(sink ...EventSink)
	Dispatch(cmd domain.Command) error
	Start(ctx context.Context) error
	Stop()
}
