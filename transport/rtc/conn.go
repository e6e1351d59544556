package rtc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"panel-lab/errors"
	"panel-lab/media"
	"panel-lab/signaling"
	"panel-lab/transport"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

const (
	sendBuffer  = 16
	rtcpBufSize = 1500
)

type dataConn struct {
	owner    *Transport
	id       string
	remoteID string
	pc       *webrtc.PeerConnection
	inbound  bool

	mu sync.Mutex
	dc *webrtc.DataChannel

	// live is set once the connection has been handed to the session.
	// Connections that never went live close without events.
	live     atomic.Bool
	closed   atomic.Bool
	openOnce sync.Once
}

func (c *dataConn) RemoteID() string { return c.remoteID }

func (c *dataConn) bind(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.markInboundOpen()
		if c.live.Load() && !c.closed.Load() {
			c.owner.emit(transport.ConnectionData{Conn: c, Data: msg.Data})
		}
	})
	dc.OnClose(func() {
		_ = c.Close()
	})
}

// markInboundOpen announces an accepted connection exactly once, whichever of
// open or first message pion reports first.
func (c *dataConn) markInboundOpen() {
	if !c.inbound || c.live.Load() {
		return
	}
	c.openOnce.Do(func() {
		c.owner.mu.Lock()
		c.owner.conns[c.id] = c
		c.owner.mu.Unlock()
		c.live.Store(true)
		c.owner.emit(transport.InboundConnection{Conn: c})
	})
}

func (c *dataConn) Send(data []byte) error {
	if c.closed.Load() {
		return errors.ErrConnectionClosed
	}
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil {
		return errors.ErrConnectionClosed
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	return nil
}

func (c *dataConn) Close() error {
	c.shutdown(true)
	return nil
}

func (c *dataConn) shutdown(notifyRemote bool) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	live := c.live.Load()
	if notifyRemote && live {
		_ = c.owner.signal.Send(signaling.Message{Type: signaling.TypeLeave, To: c.remoteID, ConnectionID: c.id})
	}
	c.owner.forgetConn(c.id)
	_ = c.pc.Close()
	if live {
		c.owner.emit(transport.ConnectionClosed{Conn: c})
	}
}

func (c *dataConn) abort() {
	c.closed.Store(true)
	_ = c.pc.Close()
}

type callConn struct {
	owner    *Transport
	id       string
	remoteID string
	pc       *webrtc.PeerConnection
	// offer is set on inbound calls until they are answered.
	offer *signaling.Message

	answered atomic.Bool
	live     atomic.Bool
	closed   atomic.Bool

	mu      sync.Mutex
	release func()
	remote  *media.Stream
}

func (c *callConn) RemoteID() string { return c.remoteID }

func (c *callConn) Answer(local *media.Stream) error {
	if c.offer == nil {
		return fmt.Errorf("%w: only the callee answers", errors.ErrNotAllowed)
	}
	if c.closed.Load() {
		return errors.ErrConnectionClosed
	}
	if !c.answered.CompareAndSwap(false, true) {
		return errors.ErrCallAlreadyExists
	}
	go func() {
		err := c.owner.answer(c.pc, *c.offer, func() error {
			if local == nil {
				return nil
			}
			return c.addLocal(local)
		})
		if err != nil {
			c.owner.log.Warn("Answering call failed", "from", c.remoteID, "error", err)
			_ = c.Close()
		}
	}()
	return nil
}

// addLocal sends local as PCMU samples for as long as the call lives.
func (c *callConn) addLocal(local *media.Stream) error {
	track, err := webrtc.NewTrackLocalStaticSample(pcmu, "audio", "panel-"+local.ID())
	if err != nil {
		return fmt.Errorf("create local track: %w", err)
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add local track: %w", err)
	}
	go func() {
		buf := make([]byte, rtcpBufSize)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	frames, release := local.Subscribe(sendBuffer)
	c.mu.Lock()
	c.release = release
	c.mu.Unlock()
	go func() {
		for f := range frames {
			_ = track.WriteSample(pionmedia.Sample{
				Data:     media.EncodeFrame(f),
				Duration: media.FrameDurationMs * time.Millisecond,
			})
		}
	}()
	return nil
}

func (c *callConn) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	stream := media.NewStream(c.remoteID, nil)
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return
	}
	c.remote = stream
	c.mu.Unlock()
	c.owner.emit(transport.RemoteStream{Call: c, Stream: stream})

	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			stream.Stop()
			return
		}
		stream.Publish(media.DecodeFrame(packet.Payload))
	}
}

func (c *callConn) Close() error {
	c.shutdown(true)
	return nil
}

func (c *callConn) shutdown(notifyRemote bool) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	live := c.live.Load()
	if notifyRemote && live {
		_ = c.owner.signal.Send(signaling.Message{Type: signaling.TypeLeave, To: c.remoteID, ConnectionID: c.id})
	}
	c.owner.forgetCall(c.id)
	_ = c.pc.Close()
	c.stopMedia()
	if live {
		c.owner.emit(transport.CallClosed{Call: c})
	}
}

func (c *callConn) stopMedia() {
	c.mu.Lock()
	release, remote := c.release, c.remote
	c.release, c.remote = nil, nil
	c.mu.Unlock()
	if release != nil {
		release()
	}
	if remote != nil {
		remote.Stop()
	}
}

func (c *callConn) abort() {
	c.closed.Store(true)
	_ = c.pc.Close()
	c.stopMedia()
}
