// Package transport abstracts the peer-to-peer network a panel runs on.
//
// Every process owns one Transport identified by a peer id. It offers two kinds
// of connection: reliable ordered data connections carrying protocol messages,
// and audio calls exchanging local and remote media streams. Everything the
// network does on its own (inbound connections, data, closes, remote streams)
// is reported on a single Event channel consumed by the session loop.
package transport

import (
	"context"

	"panel-lab/media"
)

type DataConn interface {
	RemoteID() string
	Send(data []byte) error
	Close() error
}

// CallConn is an audio call with one remote peer.
type CallConn interface {
	RemoteID() string
	// Answer accepts an inbound call. A nil local stream answers receive-only.
	// It returns without waiting for negotiation; a failed answer surfaces as CallClosed.
	Answer(local *media.Stream) error
	Close() error
}

type Transport interface {
	ID() string
	Events() <-chan Event
	// Connect opens a data connection and returns once it is usable.
	Connect(ctx context.Context, peerID string) (DataConn, error)
	// Call places an audio call carrying local. The remote stream, if any,
	// arrives later as a RemoteStream event.
	Call(ctx context.Context, peerID string, local *media.Stream) (CallConn, error)
	Close() error
}

// Event is the tagged union of everything a Transport reports.
type Event interface {
	isTransportEvent()
}

type InboundConnection struct {
	Conn DataConn
}

type ConnectionData struct {
	Conn DataConn
	Data []byte
}

type ConnectionClosed struct {
	Conn DataConn
}

type InboundCall struct {
	Call CallConn
}

type RemoteStream struct {
	Call   CallConn
	Stream *media.Stream
}

type CallClosed struct {
	Call CallConn
}

// TransportFailed reports an error that is not tied to a single connection.
type TransportFailed struct {
	Err error
}

func (InboundConnection) isTransportEvent() {}
func (ConnectionData) isTransportEvent()    {}
func (ConnectionClosed) isTransportEvent()  {}
func (InboundCall) isTransportEvent()       {}
func (RemoteStream) isTransportEvent()      {}
func (CallClosed) isTransportEvent()        {}
func (TransportFailed) isTransportEvent()   {}
