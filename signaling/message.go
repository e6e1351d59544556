// Package signaling relays session descriptions between peers over websockets.
//
// A peer registers with GET /signal?id=<peerId>. The relay answers with an
// open message, then forwards every offer, answer and leave to the peer named
// in "to". A message for an unknown peer bounces back as an error carrying the
// same connection id so the dialer can fail fast.
package signaling

type Type string

const (
	TypeOpen   Type = "open"
	TypeOffer  Type = "offer"
	TypeAnswer Type = "answer"
	TypeLeave  Type = "leave"
	TypeError  Type = "error"
)

// Kind tells the receiver whether an offer opens a data connection or a call.
type Kind string

const (
	KindData  Kind = "data"
	KindMedia Kind = "media"
)

type Message struct {
	Type         Type   `json:"type"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	Kind         Kind   `json:"kind,omitempty"`
	SDP          string `json:"sdp,omitempty"`
	Error        string `json:"error,omitempty"`
}

const (
	ErrorPeerUnavailable = "peer unavailable"
	ErrorIDTaken         = "id taken"
)
