package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"panel-lab/domain/event"
	"panel-lab/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	telemetry := make(chan event.Event, 10)

	var calls atomic.Int32
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			calls.Add(1)
			panic("boom")
		}).
		AnyTimes()

	sup := NewSupervisor(log).WithTelemetry(telemetry)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	// When the worker keeps panicking
	go sup.Add(workerMock).Run(ctx)

	// Then it is restarted and every restart is reported
	req.Eventually(func() bool { return calls.Load() >= 2 }, 900*time.Millisecond, 10*time.Millisecond)
	evt := <-telemetry
	req.Equal(event.RestartedAfterPanicType, evt.Type)
	req.Equal(event.WorkerRestartedAfterPanic{WorkerName: "MockWorker"}, evt.Payload)
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)

	workerMock := mocks.NewMockWorker(ctrl)

	// Given a worker running only once
	workerMock.EXPECT().
		Run(gomock.Any()).
		Return(nil).
		Times(1)

	sup := NewSupervisor(log)

	// Given a channel to notify when Run() terminated
	done := make(chan struct{})

	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then supervisor detected a success and stopped
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_StopCancelsDynamicWorkers(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)

	// Given a long running worker started before Run returns
	blocking := mocks.NewMockWorker(ctrl)
	blocking.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}).Times(1)

	sup := NewSupervisor(log)
	sup.Add(blocking)
	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	// When the supervisor is stopped
	req.Eventually(func() bool {
		sup.mu.Lock()
		defer sup.mu.Unlock()
		return sup.cancel != nil
	}, time.Second, 5*time.Millisecond)
	sup.Stop()

	// Then Run returns
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor did not stop")
	}
}
