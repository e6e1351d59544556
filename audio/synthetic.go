package audio

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"panel-lab/contract"
	"panel-lab/media"

	"github.com/google/uuid"
)

var (
	_ contract.Microphone = (*ToneMicrophone)(nil)
	_ contract.AudioSink  = (*DiscardSink)(nil)
)

// ToneMicrophone produces a sine wave in real time. It stands in for a capture
// device on machines without one.
type ToneMicrophone struct {
	Frequency float64
	Amplitude float64
}

func NewToneMicrophone(frequency, amplitude float64) *ToneMicrophone {
	return &ToneMicrophone{Frequency: frequency, Amplitude: amplitude}
}

func (m *ToneMicrophone) Acquire(_ context.Context) (*media.Stream, error) {
	done := make(chan struct{})
	var once sync.Once
	stream := media.NewStream("tone-"+uuid.NewString(), func() {
		once.Do(func() { close(done) })
	})
	go func() {
		ticker := time.NewTicker(media.FrameDurationMs * time.Millisecond)
		defer ticker.Stop()
		var n int
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				stream.Publish(Tone(m.Frequency, m.Amplitude, n))
				n += media.FrameSamples
			}
		}
	}()
	return stream, nil
}

// Tone returns one frame of a sine wave starting at sample offset.
func Tone(frequency, amplitude float64, offset int) media.Frame {
	f := make(media.Frame, media.FrameSamples)
	for i := range f {
		t := float64(offset+i) / media.SampleRate
		f[i] = int16(amplitude * math.MaxInt16 * math.Sin(2*math.Pi*frequency*t))
	}
	return f
}

// DiscardSink accepts remote streams without playing them.
type DiscardSink struct {
	mu       sync.Mutex
	attached map[string]*media.Stream
}

func NewDiscardSink() *DiscardSink {
	return &DiscardSink{attached: make(map[string]*media.Stream)}
}

func (s *DiscardSink) Attach(peerID string, stream *media.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[peerID] = stream
	return nil
}

func (s *DiscardSink) Detach(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, peerID)
}

func (s *DiscardSink) Attached() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]string, 0, len(s.attached))
	for id := range s.attached {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}
