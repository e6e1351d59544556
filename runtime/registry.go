package runtime

import (
	"sort"

	"panel-lab/transport"

	"github.com/samber/lo"
)

type Set map[transport.DataConn]struct{}

// ControlRegistry tracks the data connections of a session.
// At the hub a connection stays pending until its announce binds it to a
// participant; a peer only ever registers its connection to the hub.
// It is owned by the session loop and does no locking.
type ControlRegistry struct {
	pending       Set
	byParticipant map[string]transport.DataConn
	byConn        map[transport.DataConn]string
	hub           transport.DataConn
}

func NewControlRegistry() *ControlRegistry {
	return &ControlRegistry{
		pending:       make(Set),
		byParticipant: make(map[string]transport.DataConn),
		byConn:        make(map[transport.DataConn]string),
	}
}

func (r *ControlRegistry) AddPending(conn transport.DataConn) {
	r.pending[conn] = struct{}{}
}

func (r *ControlRegistry) IsPending(conn transport.DataConn) bool {
	_, ok := r.pending[conn]
	return ok
}

// Bind attaches conn to a participant. When the participant was bound to
// another connection, that stale connection is returned and forgotten.
func (r *ControlRegistry) Bind(participantID string, conn transport.DataConn) (stale transport.DataConn) {
	delete(r.pending, conn)
	if previous, ok := r.byParticipant[participantID]; ok && previous != conn {
		delete(r.byConn, previous)
		stale = previous
	}
	r.byParticipant[participantID] = conn
	r.byConn[conn] = participantID
	return stale
}

func (r *ControlRegistry) ParticipantOf(conn transport.DataConn) (string, bool) {
	id, ok := r.byConn[conn]
	return id, ok
}

func (r *ControlRegistry) ConnOf(participantID string) (transport.DataConn, bool) {
	conn, ok := r.byParticipant[participantID]
	return conn, ok
}

// Remove forgets conn and reports the participant it was bound to, if any.
func (r *ControlRegistry) Remove(conn transport.DataConn) (string, bool) {
	delete(r.pending, conn)
	if conn == r.hub {
		r.hub = nil
	}
	id, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn)
	delete(r.byParticipant, id)
	return id, true
}

// Unbind forgets a participant's connection without closing it.
func (r *ControlRegistry) Unbind(participantID string) (transport.DataConn, bool) {
	conn, ok := r.byParticipant[participantID]
	if !ok {
		return nil, false
	}
	delete(r.byParticipant, participantID)
	delete(r.byConn, conn)
	return conn, true
}

// Bound returns the connections of every announced participant, ordered by
// participant id so broadcasts happen in a stable order.
func (r *ControlRegistry) Bound() []transport.DataConn {
	ids := lo.Keys(r.byParticipant)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) transport.DataConn { return r.byParticipant[id] })
}

func (r *ControlRegistry) SetHub(conn transport.DataConn) { r.hub = conn }

func (r *ControlRegistry) Hub() transport.DataConn { return r.hub }

// Clear forgets every connection and returns them so the caller can close them.
func (r *ControlRegistry) Clear() []transport.DataConn {
	all := lo.Keys(r.pending)
	all = append(all, lo.Keys(r.byConn)...)
	if r.hub != nil {
		all = append(all, r.hub)
	}
	r.pending = make(Set)
	r.byParticipant = make(map[string]transport.DataConn)
	r.byConn = make(map[transport.DataConn]string)
	r.hub = nil
	return lo.Uniq(all)
}

func (r *ControlRegistry) Len() int {
	n := len(r.pending) + len(r.byConn)
	if r.hub != nil {
		n++
	}
	return n
}
