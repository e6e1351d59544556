package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	CodeBadRequest  = "bad_request"
	CodeUnsupported = "unsupported"
)

// DecodeError reports a frame the receiver must ignore.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: CodeUnsupported, Message: message, Param: param}
}

var validate = validator.New()

type envelope struct {
	Type    Type            `json:"type"`
	From    *Sender         `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is a decoded frame. From is nil when the sender did not sign it.
type Inbound struct {
	From    *Sender
	Message Message
}

// Encode wraps msg in an envelope. Payload-less messages omit the payload.
func Encode(from *Sender, msg Message) ([]byte, error) {
	env := envelope{Type: msg.Type(), From: from}
	switch msg.(type) {
	case RaiseHand, LowerHand:
	default:
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msg.Type(), err)
		}
		env.Payload = payload
	}
	return json.Marshal(env)
}

// Decode parses a frame by peeking at its type first.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, badRequest("invalid json frame", "")
	}
	typ := Type(strings.TrimSpace(string(env.Type)))
	if typ == "" {
		return Inbound{}, badRequest("missing type", "type")
	}
	if env.From != nil {
		if err := validate.Struct(env.From); err != nil {
			return Inbound{}, badRequest("invalid sender", "from")
		}
	}

	var msg Message
	var err error
	switch typ {
	case TypeAnnounce:
		msg, err = decodePayload[Announce](typ, env.Payload)
	case TypeRoomState:
		msg, err = decodePayload[RoomState](typ, env.Payload)
	case TypeParticipantsUpdate:
		msg, err = decodePayload[ParticipantsUpdate](typ, env.Payload)
	case TypeChat:
		msg, err = decodePayload[Chat](typ, env.Payload)
	case TypeRaiseHand:
		msg = RaiseHand{}
	case TypeLowerHand:
		msg = LowerHand{}
	case TypeSpeakApproved:
		msg, err = decodePayload[SpeakApproved](typ, env.Payload)
	case TypeAssignCohost:
		msg, err = decodePayload[AssignCohost](typ, env.Payload)
	case TypeForceMute:
		msg, err = decodePayload[ForceMute](typ, env.Payload)
	case TypeKick:
		msg, err = decodePayload[Kick](typ, env.Payload)
	case TypeRoomEnded:
		if len(env.Payload) == 0 {
			msg = RoomEnded{}
		} else {
			msg, err = decodePayload[RoomEnded](typ, env.Payload)
		}
	default:
		return Inbound{}, unsupported("unsupported message type", string(typ))
	}
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{From: env.From, Message: msg}, nil
}

func decodePayload[T Message](typ Type, raw json.RawMessage) (Message, error) {
	var msg T
	if len(raw) == 0 {
		return nil, badRequest(fmt.Sprintf("%s.payload is required", typ), "payload")
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, badRequest(fmt.Sprintf("invalid %s payload", typ), "payload")
	}
	if err := validate.Struct(msg); err != nil {
		return nil, badRequest(fmt.Sprintf("invalid %s payload", typ), fieldOf(err))
	}
	return msg, nil
}

func fieldOf(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return errs[0].Field()
	}
	return ""
}
