package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"panel-lab/domain/event"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker samples the client's own process (memory, CPU, status)
// and reports it as telemetry. Audio capture and playback run as child
// processes, so a hub that starts lagging usually shows here first.
type HeartbeatWorker struct {
	log            *slog.Logger
	telemetryChan  chan event.Event
	metricInterval time.Duration
	pid            int32
}

func NewHeartbeatWorker(log *slog.Logger, telemetryChan chan event.Event, metricInterval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:            log,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w HeartbeatWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping heartbeat")
			return nil
		case <-ticker.C:
			stats, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			select {
			case w.telemetryChan <- event.Event{Type: event.HeartbeatType, CreatedAt: time.Now().UTC(), Payload: stats}:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (event.Heartbeat, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return event.Heartbeat{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return event.Heartbeat{}, err
	}
	status, err := p.Status()
	if err != nil {
		return event.Heartbeat{}, err
	}
	return event.Heartbeat{PID: p.Pid, RSS: memInfo.RSS, CPU: cpuPercent, Status: status}, nil
}
