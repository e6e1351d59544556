package audio_test

import (
	"testing"

	"panel-lab/audio"
	"panel-lab/media"

	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	remote string
}

func (c *fakeCall) RemoteID() string             { return c.remote }
func (c *fakeCall) Answer(_ *media.Stream) error { return nil }
func (c *fakeCall) Close() error                 { return nil }

func TestDetector_SilenceIsNotSpeaking(t *testing.T) {
	req := require.New(t)

	// Given a detector with the default threshold
	d := audio.NewDetector(audio.DefaultThreshold, audio.DefaultSmoothing)

	// When only silent frames are sampled
	for i := 0; i < 20; i++ {
		speaking, changed := d.Sample(make(media.Frame, media.FrameSamples))
		req.False(speaking)
		req.False(changed)
	}

	// Then nothing is reported
	req.False(d.Speaking())
}

func TestDetector_ToneStartsAndSilenceClears(t *testing.T) {
	req := require.New(t)

	// Given a detector
	d := audio.NewDetector(audio.DefaultThreshold, audio.DefaultSmoothing)

	// When a loud tone is sampled
	var flips int
	for i := 0; i < 10; i++ {
		if _, changed := d.Sample(audio.Tone(440, 0.5, i*media.FrameSamples)); changed {
			flips++
		}
	}

	// Then the stream is speaking and it flipped exactly once
	req.True(d.Speaking())
	req.Equal(1, flips)

	// When silence follows long enough for the smoothing to decay
	for i := 0; i < 200; i++ {
		d.Sample(make(media.Frame, media.FrameSamples))
	}

	// Then it stops speaking
	req.False(d.Speaking())
}

func TestAnalyser_BytesStayInRange(t *testing.T) {
	req := require.New(t)
	a := audio.NewAnalyser(0)

	data := a.Push(audio.Tone(1000, 1, 0))

	req.Len(data, audio.FFTSize/2)
	var peak byte
	for _, b := range data {
		if b > peak {
			peak = b
		}
	}
	req.Greater(peak, byte(200))
}

func TestCallRegistry_InboundReplacesExistingCall(t *testing.T) {
	req := require.New(t)

	// Given an inbound call from b already answered receive-only
	r := audio.NewCallRegistry("a")
	first := &fakeCall{remote: "b"}
	_, _, ok := r.Inbound(first)
	req.True(ok)
	req.True(r.NeedsCall("b"))

	// When b calls again
	second := &fakeCall{remote: "b"}
	call, replaced, ok := r.Inbound(second)

	// Then the new call replaces the old one
	req.True(ok)
	req.Same(first, replaced.Conn)
	req.Same(second, call.Conn)
	_, current := r.Closed(first)
	req.False(current)
	req.Equal([]string{"b"}, r.Peers())
}

func TestCallRegistry_SmallerPeerWinsConcurrentDial(t *testing.T) {
	req := require.New(t)

	// Given a and b dialing each other
	a := audio.NewCallRegistry("a")
	b := audio.NewCallRegistry("b")
	a.Dialing("b")
	b.Dialing("a")

	// When each sees the other's inbound call
	_, _, aAccepts := a.Inbound(&fakeCall{remote: "b"})
	_, _, bAccepts := b.Inbound(&fakeCall{remote: "a"})

	// Then only the call placed by a survives
	req.False(aAccepts)
	req.True(bAccepts)

	_, _, ok := a.Dialed("b", &fakeCall{remote: "b"})
	req.True(ok)
	_, _, ok = b.Dialed("a", &fakeCall{remote: "a"})
	req.False(ok, "b's own dial was superseded")
}

func TestCallRegistry_StreamBeforeCallIsKept(t *testing.T) {
	req := require.New(t)

	// Given a remote stream arriving before the dial result
	r := audio.NewCallRegistry("a")
	r.Dialing("b")
	conn := &fakeCall{remote: "b"}
	stream := media.NewStream("remote", nil)
	_, known := r.Attach(conn, stream)
	req.False(known)

	// When the dial result is applied
	call, replaced, ok := r.Dialed("b", conn)

	// Then the stream is adopted
	req.True(ok)
	req.Nil(replaced)
	req.Same(stream, call.Remote)
	req.False(r.NeedsCall("b"))
}

func TestCallRegistry_ClearReturnsEverything(t *testing.T) {
	req := require.New(t)
	r := audio.NewCallRegistry("a")
	r.Dialing("c")
	_, _, _ = r.Dialed("c", &fakeCall{remote: "c"})
	_, _, _ = r.Inbound(&fakeCall{remote: "b"})
	orphan := &fakeCall{remote: "d"}
	r.Attach(orphan, media.NewStream("x", nil))

	calls, orphans := r.Clear()

	req.Len(calls, 2)
	req.Equal("b", calls[0].PeerID)
	req.Len(orphans, 1)
	req.Same(orphan, orphans[0])
	req.Zero(r.Len())
}

func TestDiscardSink_TracksAttachedPeers(t *testing.T) {
	req := require.New(t)
	s := audio.NewDiscardSink()

	req.NoError(s.Attach("b", media.NewStream("b", nil)))
	req.NoError(s.Attach("a", media.NewStream("a", nil)))
	s.Detach("b")

	req.Equal([]string{"a"}, s.Attached())
}
