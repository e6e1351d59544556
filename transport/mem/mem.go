// Package mem is an in-process transport. Every Transport joined to the same
// Network can reach the others by id. Delivery is synchronous into the
// receiver's buffered event channel, so a test that drains channels in a fixed
// order observes a deterministic interleaving.
package mem

import (
	"context"
	"fmt"
	"sync"

	"panel-lab/errors"
	"panel-lab/media"
	"panel-lab/transport"

	"github.com/google/uuid"
)

const (
	eventBuffer  = 4096
	bridgeBuffer = 32
)

var _ transport.Transport = (*Transport)(nil)

type Network struct {
	mu    sync.Mutex
	nodes map[string]*Transport
}

func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*Transport)}
}

// Join registers a new transport. An empty id gets a random one.
func (n *Network) Join(id string) (*Transport, error) {
	if id == "" {
		id = uuid.NewString()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.nodes[id]; ok {
		return nil, fmt.Errorf("peer id %q already registered", id)
	}
	t := &Transport{
		id:     id,
		net:    n,
		events: make(chan transport.Event, eventBuffer),
		conns:  make(map[*dataConn]struct{}),
		calls:  make(map[*callConn]struct{}),
	}
	n.nodes[id] = t
	return t, nil
}

func (n *Network) lookup(id string) (*Transport, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.nodes[id]
	return t, ok
}

func (n *Network) leave(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}

type Transport struct {
	id     string
	net    *Network
	events chan transport.Event

	mu     sync.Mutex
	closed bool
	conns  map[*dataConn]struct{}
	calls  map[*callConn]struct{}
}

func (t *Transport) ID() string                     { return t.id }
func (t *Transport) Events() <-chan transport.Event { return t.events }

func (t *Transport) emit(evt transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- evt:
	default:
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Connect(ctx context.Context, peerID string) (transport.DataConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.isClosed() {
		return nil, errors.ErrTransportClosed
	}
	target, ok := t.net.lookup(peerID)
	if !ok || target.isClosed() {
		return nil, fmt.Errorf("%w: %s", errors.ErrPeerUnavailable, peerID)
	}

	state := &pairState{}
	local := &dataConn{owner: t, remoteID: peerID, state: state}
	remote := &dataConn{owner: target, remoteID: t.id, state: state}
	local.peer, remote.peer = remote, local

	t.track(local)
	target.track(remote)
	target.emit(transport.InboundConnection{Conn: remote})
	return local, nil
}

func (t *Transport) Call(ctx context.Context, peerID string, local *media.Stream) (transport.CallConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.isClosed() {
		return nil, errors.ErrTransportClosed
	}
	target, ok := t.net.lookup(peerID)
	if !ok || target.isClosed() {
		return nil, fmt.Errorf("%w: %s", errors.ErrPeerUnavailable, peerID)
	}

	state := &callState{}
	caller := &callConn{owner: t, remoteID: peerID, state: state, local: local}
	callee := &callConn{owner: target, remoteID: t.id, state: state, inbound: true}
	caller.peer, callee.peer = callee, caller

	t.trackCall(caller)
	target.trackCall(callee)
	target.emit(transport.InboundCall{Call: callee})
	return caller, nil
}

// Close drops the transport off the network and closes everything it holds.
// Remote ends observe the closes as if the process had gone away.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := make([]*dataConn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	calls := make([]*callConn, 0, len(t.calls))
	for c := range t.calls {
		calls = append(calls, c)
	}
	t.mu.Unlock()

	t.net.leave(t.id)
	for _, c := range conns {
		_ = c.Close()
	}
	for _, c := range calls {
		_ = c.Close()
	}
	return nil
}

func (t *Transport) track(c *dataConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c] = struct{}{}
}

func (t *Transport) untrack(c *dataConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}

func (t *Transport) trackCall(c *callConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[c] = struct{}{}
}

func (t *Transport) untrackCall(c *callConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calls, c)
}

type pairState struct {
	mu     sync.Mutex
	closed bool
}

type dataConn struct {
	owner    *Transport
	remoteID string
	peer     *dataConn
	state    *pairState
}

func (c *dataConn) RemoteID() string { return c.remoteID }

func (c *dataConn) Send(data []byte) error {
	c.state.mu.Lock()
	closed := c.state.closed
	c.state.mu.Unlock()
	if closed {
		return errors.ErrConnectionClosed
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	c.peer.owner.emit(transport.ConnectionData{Conn: c.peer, Data: payload})
	return nil
}

func (c *dataConn) Close() error {
	c.state.mu.Lock()
	if c.state.closed {
		c.state.mu.Unlock()
		return nil
	}
	c.state.closed = true
	c.state.mu.Unlock()

	c.owner.untrack(c)
	c.peer.owner.untrack(c.peer)
	c.owner.emit(transport.ConnectionClosed{Conn: c})
	c.peer.owner.emit(transport.ConnectionClosed{Conn: c.peer})
	return nil
}

type callState struct {
	mu       sync.Mutex
	closed   bool
	answered bool
}

type callConn struct {
	owner    *Transport
	remoteID string
	peer     *callConn
	state    *callState
	inbound  bool

	// local is what this side sends, remote the bridged copy of what it receives.
	local  *media.Stream
	remote *media.Stream
}

func (c *callConn) RemoteID() string { return c.remoteID }

func (c *callConn) Answer(local *media.Stream) error {
	if !c.inbound {
		return fmt.Errorf("%w: only the callee answers", errors.ErrNotAllowed)
	}
	c.state.mu.Lock()
	if c.state.closed {
		c.state.mu.Unlock()
		return errors.ErrConnectionClosed
	}
	if c.state.answered {
		c.state.mu.Unlock()
		return errors.ErrCallAlreadyExists
	}
	c.state.answered = true
	c.local = local
	caller := c.peer
	if caller.local != nil {
		c.remote = bridge(caller.local)
	}
	if local != nil {
		caller.remote = bridge(local)
	}
	c.state.mu.Unlock()

	if c.remote != nil {
		c.owner.emit(transport.RemoteStream{Call: c, Stream: c.remote})
	}
	if caller.remote != nil {
		caller.owner.emit(transport.RemoteStream{Call: caller, Stream: caller.remote})
	}
	return nil
}

func (c *callConn) Close() error {
	c.state.mu.Lock()
	if c.state.closed {
		c.state.mu.Unlock()
		return nil
	}
	c.state.closed = true
	remotes := []*media.Stream{c.remote, c.peer.remote}
	c.state.mu.Unlock()

	for _, s := range remotes {
		if s != nil {
			s.Stop()
		}
	}
	c.owner.untrackCall(c)
	c.peer.owner.untrackCall(c.peer)
	c.owner.emit(transport.CallClosed{Call: c})
	c.peer.owner.emit(transport.CallClosed{Call: c.peer})
	return nil
}

// bridge copies frames from src into a new stream until either side stops.
func bridge(src *media.Stream) *media.Stream {
	frames, release := src.Subscribe(bridgeBuffer)
	dst := media.NewStream(src.ID()+"/remote", release)
	go func() {
		for f := range frames {
			dst.Publish(f)
		}
		dst.Stop()
	}()
	return dst
}
