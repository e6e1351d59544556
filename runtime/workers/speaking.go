package workers

import (
	"context"
	"log/slog"

	"panel-lab/audio"
	"panel-lab/media"
)

const speakingBuffer = 16

// SpeakingMonitor samples one stream and reports each change of its speaking
// state. It returns once the stream stops, so the supervisor never restarts it.
type SpeakingMonitor struct {
	log       *slog.Logger
	peerID    string
	stream    *media.Stream
	threshold int
	report    func(peerID string, stream *media.Stream, speaking bool)
}

func NewSpeakingMonitor(log *slog.Logger, peerID string, stream *media.Stream, threshold int,
	report func(peerID string, stream *media.Stream, speaking bool)) *SpeakingMonitor {
	return &SpeakingMonitor{log: log, peerID: peerID, stream: stream, threshold: threshold, report: report}
}

func (w SpeakingMonitor) Run(ctx context.Context) error {
	frames, release := w.stream.Subscribe(speakingBuffer)
	defer release()
	detector := audio.NewDetector(w.threshold, audio.DefaultSmoothing)
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				if detector.Speaking() {
					w.report(w.peerID, w.stream, false)
				}
				w.log.Debug("Speaking monitor done", "peer", w.peerID)
				return nil
			}
			if speaking, changed := detector.Sample(f); changed {
				w.report(w.peerID, w.stream, speaking)
			}
		}
	}
}
