package mem

import (
	"context"
	"testing"
	"time"

	"panel-lab/errors"
	"panel-lab/media"
	"panel-lab/transport"

	"github.com/stretchr/testify/require"
)

func next(t *testing.T, tr *Transport) transport.Event {
	t.Helper()
	select {
	case evt := <-tr.Events():
		return evt
	default:
		require.FailNow(t, "no pending event", "transport %s", tr.ID())
		return nil
	}
}

func TestTransport_Connect_Send_Close(t *testing.T) {
	req := require.New(t)
	network := NewNetwork()
	hub, err := network.Join("hub")
	req.NoError(err)
	alice, err := network.Join("alice")
	req.NoError(err)

	// Given Alice connects to the hub
	conn, err := alice.Connect(context.Background(), "hub")
	req.NoError(err)
	req.Equal("hub", conn.RemoteID())

	inbound, ok := next(t, hub).(transport.InboundConnection)
	req.True(ok)
	req.Equal("alice", inbound.Conn.RemoteID())

	// When both sides exchange data
	req.NoError(conn.Send([]byte("ping")))
	req.NoError(inbound.Conn.Send([]byte("pong")))

	data, ok := next(t, hub).(transport.ConnectionData)
	req.True(ok)
	req.Equal("ping", string(data.Data))
	req.Same(inbound.Conn, data.Conn)

	data, ok = next(t, alice).(transport.ConnectionData)
	req.True(ok)
	req.Equal("pong", string(data.Data))

	// Then closing one side is reported on both
	req.NoError(conn.Close())
	req.NoError(conn.Close())
	_, ok = next(t, hub).(transport.ConnectionClosed)
	req.True(ok)
	_, ok = next(t, alice).(transport.ConnectionClosed)
	req.True(ok)
	req.ErrorIs(inbound.Conn.Send([]byte("late")), errors.ErrConnectionClosed)
}

func TestTransport_Connect_Unknown_Peer(t *testing.T) {
	req := require.New(t)
	network := NewNetwork()
	alice, err := network.Join("alice")
	req.NoError(err)

	_, err = alice.Connect(context.Background(), "stale-hub")
	req.ErrorIs(err, errors.ErrPeerUnavailable)

	_, err = network.Join("alice")
	req.Error(err)
}

func TestTransport_Close_Reaches_Remote(t *testing.T) {
	req := require.New(t)
	network := NewNetwork()
	hub, _ := network.Join("hub")
	alice, _ := network.Join("alice")

	_, err := alice.Connect(context.Background(), "hub")
	req.NoError(err)
	inbound := next(t, hub).(transport.InboundConnection)

	// When Alice's process goes away
	req.NoError(alice.Close())

	closed, ok := next(t, hub).(transport.ConnectionClosed)
	req.True(ok)
	req.Same(inbound.Conn, closed.Conn)

	_, err = hub.Connect(context.Background(), "alice")
	req.ErrorIs(err, errors.ErrPeerUnavailable)
}

func TestTransport_Call_Exchanges_Streams(t *testing.T) {
	req := require.New(t)
	network := NewNetwork()
	hub, _ := network.Join("hub")
	alice, _ := network.Join("alice")

	hostMic := media.NewStream("host-mic", nil)
	call, err := hub.Call(context.Background(), "alice", hostMic)
	req.NoError(err)

	inbound, ok := next(t, alice).(transport.InboundCall)
	req.True(ok)
	req.Equal("hub", inbound.Call.RemoteID())

	// When Alice answers receive-only
	req.NoError(inbound.Call.Answer(nil))
	req.ErrorIs(inbound.Call.Answer(nil), errors.ErrCallAlreadyExists)
	req.ErrorIs(call.Answer(nil), errors.ErrNotAllowed)

	// Then only Alice receives a remote stream
	remote, ok := next(t, alice).(transport.RemoteStream)
	req.True(ok)
	req.Len(hub.Events(), 0)

	frames, release := remote.Stream.Subscribe(4)
	defer release()
	hostMic.Publish(media.Frame{7, 7, 7})
	select {
	case f := <-frames:
		req.Equal(media.Frame{7, 7, 7}, f)
	case <-time.After(time.Second):
		req.Fail("frame not bridged")
	}

	// And closing the call stops the bridged stream
	req.NoError(call.Close())
	_, ok = next(t, hub).(transport.CallClosed)
	req.True(ok)
	_, ok = next(t, alice).(transport.CallClosed)
	req.True(ok)
	req.True(remote.Stream.Stopped())
}
