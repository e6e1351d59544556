package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 5 * time.Second
	maxMessageSize = 64 << 10
)

// Relay is the websocket signaling hub. It only routes; it never inspects SDP.
type Relay struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[string]*peerConn
}

type peerConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peerConn) write(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(msg)
}

func NewRelay(log *slog.Logger) *Relay {
	return &Relay{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		peers:    make(map[string]*peerConn),
	}
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("id")
	if id == "" {
		id = uuid.NewString()
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Debug("Signaling upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)
	peer := &peerConn{id: id, conn: conn}

	if !r.register(peer) {
		_ = peer.write(Message{Type: TypeError, To: id, Error: ErrorIDTaken})
		_ = conn.Close()
		return
	}
	defer r.unregister(peer)

	if err := peer.write(Message{Type: TypeOpen, To: id}); err != nil {
		return
	}
	r.log.Debug("Peer registered", "peer_id", id)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.Debug("Signaling read ended", "peer_id", id, "error", err)
			}
			return
		}
		msg.From = id
		r.route(peer, msg)
	}
}

func (r *Relay) route(from *peerConn, msg Message) {
	switch msg.Type {
	case TypeOffer, TypeAnswer, TypeLeave:
	default:
		r.log.Debug("Ignoring signaling message", "type", msg.Type, "peer_id", from.id)
		return
	}

	r.mu.RLock()
	target, ok := r.peers[msg.To]
	r.mu.RUnlock()

	if !ok {
		if msg.Type == TypeOffer {
			_ = from.write(Message{
				Type:         TypeError,
				To:           from.id,
				From:         msg.To,
				ConnectionID: msg.ConnectionID,
				Kind:         msg.Kind,
				Error:        ErrorPeerUnavailable,
			})
		}
		return
	}
	if err := target.write(msg); err != nil {
		r.log.Debug("Signaling forward failed", "to", msg.To, "error", err)
	}
}

func (r *Relay) register(p *peerConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p.id]; ok {
		return false
	}
	r.peers[p.id] = p
	return true
}

func (r *Relay) unregister(p *peerConn) {
	r.mu.Lock()
	if current, ok := r.peers[p.id]; ok && current == p {
		delete(r.peers, p.id)
	}
	r.mu.Unlock()
	_ = p.conn.Close()
	r.log.Debug("Peer unregistered", "peer_id", p.id)
}

// Peers returns the number of registered peers.
func (r *Relay) Peers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
