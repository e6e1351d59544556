package audio

import (
	"sort"

	"panel-lab/media"
	"panel-lab/transport"

	"github.com/samber/lo"
)

// Call is the audio link with one remote peer.
type Call struct {
	PeerID string
	Conn   transport.CallConn
	// Outbound is true when this side placed the call.
	Outbound bool
	// Sending is true when the local microphone travels on this call.
	Sending bool
	Remote  *media.Stream
}

// CallRegistry keeps at most one call per remote peer and decides which call
// survives when two peers dial each other. It is owned by the session loop.
type CallRegistry struct {
	selfID  string
	calls   map[string]*Call
	dialing map[string]bool // false once an inbound call superseded the dial
	orphans map[transport.CallConn]*media.Stream
}

func NewCallRegistry(selfID string) *CallRegistry {
	return &CallRegistry{
		selfID:  selfID,
		calls:   make(map[string]*Call),
		dialing: make(map[string]bool),
		orphans: make(map[transport.CallConn]*media.Stream),
	}
}

func (r *CallRegistry) Get(peerID string) (*Call, bool) {
	c, ok := r.calls[peerID]
	return c, ok
}

// NeedsCall reports whether a publisher must still dial peerID.
func (r *CallRegistry) NeedsCall(peerID string) bool {
	if _, ok := r.dialing[peerID]; ok {
		return false
	}
	c, ok := r.calls[peerID]
	return !ok || !c.Sending
}

func (r *CallRegistry) Dialing(peerID string) {
	r.dialing[peerID] = true
}

func (r *CallRegistry) IsDialing(peerID string) bool {
	_, ok := r.dialing[peerID]
	return ok
}

func (r *CallRegistry) DialFailed(peerID string) {
	delete(r.dialing, peerID)
}

// Dialed records the outcome of an outbound call. It returns false when the
// call lost to an inbound one in the meantime and must be closed by the caller.
// replaced is the previous call with that peer, if any, which the caller closes.
func (r *CallRegistry) Dialed(peerID string, conn transport.CallConn) (call *Call, replaced *Call, ok bool) {
	live, dialing := r.dialing[peerID]
	delete(r.dialing, peerID)
	if dialing && !live {
		return nil, nil, false
	}
	replaced = r.calls[peerID]
	call = &Call{PeerID: peerID, Conn: conn, Outbound: true, Sending: true}
	r.adoptOrphan(call)
	r.calls[peerID] = call
	return call, replaced, true
}

// Inbound decides whether an inbound call is accepted. When this side dialed
// the same peer, the call placed by the smaller peer id wins.
func (r *CallRegistry) Inbound(conn transport.CallConn) (call *Call, replaced *Call, ok bool) {
	peerID := conn.RemoteID()
	_, dialing := r.dialing[peerID]
	existing := r.calls[peerID]
	ours := dialing || (existing != nil && existing.Outbound)
	if ours && r.selfID < peerID {
		return nil, nil, false
	}
	if dialing {
		r.dialing[peerID] = false
	}
	call = &Call{PeerID: peerID, Conn: conn}
	r.adoptOrphan(call)
	r.calls[peerID] = call
	return call, existing, true
}

// Attach records the remote stream of a call. A stream may arrive before the
// call itself is known; it is then kept until Dialed or Inbound adopts it.
func (r *CallRegistry) Attach(conn transport.CallConn, stream *media.Stream) (*Call, bool) {
	c, ok := r.find(conn)
	if !ok {
		r.orphans[conn] = stream
		return nil, false
	}
	c.Remote = stream
	return c, true
}

// Closed forgets a call that closed. It reports the call only when it was the
// current one for its peer; a replaced call closing is not news.
func (r *CallRegistry) Closed(conn transport.CallConn) (*Call, bool) {
	delete(r.orphans, conn)
	c, ok := r.find(conn)
	if !ok {
		return nil, false
	}
	delete(r.calls, c.PeerID)
	return c, true
}

func (r *CallRegistry) Drop(peerID string) (*Call, bool) {
	delete(r.dialing, peerID)
	c, ok := r.calls[peerID]
	if ok {
		delete(r.calls, peerID)
	}
	return c, ok
}

// Clear empties the registry and returns every call and orphaned connection
// still open so the caller can close them.
func (r *CallRegistry) Clear() ([]*Call, []transport.CallConn) {
	calls := lo.Values(r.calls)
	orphans := lo.Keys(r.orphans)
	r.calls = make(map[string]*Call)
	r.dialing = make(map[string]bool)
	r.orphans = make(map[transport.CallConn]*media.Stream)
	sort.Slice(calls, func(i, j int) bool { return calls[i].PeerID < calls[j].PeerID })
	return calls, orphans
}

func (r *CallRegistry) Peers() []string {
	peers := lo.Keys(r.calls)
	sort.Strings(peers)
	return peers
}

func (r *CallRegistry) Len() int { return len(r.calls) }

func (r *CallRegistry) find(conn transport.CallConn) (*Call, bool) {
	return lo.Find(lo.Values(r.calls), func(c *Call) bool { return c.Conn == conn })
}

func (r *CallRegistry) adoptOrphan(c *Call) {
	if s, ok := r.orphans[c.Conn]; ok {
		c.Remote = s
		delete(r.orphans, c.Conn)
	}
}
