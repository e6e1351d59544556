// Package media holds the audio primitives shared by the transport and the
// audio pipeline: PCM frames, fan-out streams and the wire codec.
package media

import (
	"sync"
)

const (
	SampleRate      = 8000
	FrameDurationMs = 20
	FrameSamples    = SampleRate * FrameDurationMs / 1000
)

// Frame is 20ms of mono signed 16-bit PCM.
type Frame []int16

// Stream fans PCM frames out to any number of subscribers.
// A disabled stream drops published frames, which is how a local track is muted
// without tearing down the calls that carry it.
type Stream struct {
	id string

	mu      sync.Mutex
	enabled bool
	stopped bool
	nextSub int
	subs    map[int]chan Frame
	onStop  func()
}

// NewStream creates an enabled stream. onStop, when set, runs once when the
// stream is stopped, typically to release the capture device.
func NewStream(id string, onStop func()) *Stream {
	return &Stream{
		id:      id,
		enabled: true,
		subs:    make(map[int]chan Frame),
		onStop:  onStop,
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Stream) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Publish hands a frame to every subscriber without blocking the producer.
// A slow subscriber loses frames rather than stalling capture.
func (s *Stream) Publish(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || !s.enabled {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

// Subscribe returns a frame channel and a function releasing it.
// The channel is closed on release or when the stream stops.
func (s *Stream) Subscribe(buffer int) (<-chan Frame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Frame, buffer)
	if s.stopped {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Stop ends the stream for good. It is safe to call more than once.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	onStop := s.onStop
	s.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}
