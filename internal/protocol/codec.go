package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

type envelope struct {
	Type MessageType `json:"type"`
}

func readType(data []byte) (MessageType, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", &MissingFieldError{MessageName: "message", FieldName: "type"}
	}
	return env.Type, nil
}

func decode(msgType MessageType, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, msgType, err)
	}
	return nil
}

// ParseInbound validates a client-to-server frame and returns the typed
// message. Malformed frames match ErrMalformed; an unrecognized type is
// reported as *UnknownTypeError.
func ParseInbound(data []byte) (Inbound, error) {
	msgType, err := readType(data)
	if err != nil {
		return nil, err
	}

	var msg Inbound
	switch msgType {
	case TypeHandshake:
		msg = &Handshake{}
	case TypeStudyData:
		msg = &StudyData{}
	case TypeStudyEvent:
		msg = &StudyEvent{}
	case TypePong:
		msg = &Pong{}
	default:
		return nil, &UnknownTypeError{Type: msgType}
	}
	if err := decode(msgType, data, msg); err != nil {
		return nil, err
	}

	if ev, ok := msg.(*StudyEvent); ok {
		if ev.Event == "" {
			ev.Event = "unknown"
		}
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
	}
	return msg, nil
}

// ParseOutbound validates a server-to-client frame. It is the study
// client's side of the protocol.
func ParseOutbound(data []byte) (Outbound, error) {
	msgType, err := readType(data)
	if err != nil {
		return nil, err
	}

	var msg Outbound
	switch msgType {
	case TypeHandshakeAck:
		msg = &HandshakeAck{}
	case TypePing:
		msg = &Ping{}
	case TypeCommand:
		msg = &Command{}
	default:
		return nil, &UnknownTypeError{Type: msgType}
	}
	if err := decode(msgType, data, msg); err != nil {
		return nil, err
	}

	if cmd, ok := msg.(*Command); ok && cmd.Command == "" {
		return nil, &MissingFieldError{MessageName: string(TypeCommand), FieldName: "command"}
	}
	return msg, nil
}

// EncodeHandshakeAck builds the acknowledgment carrying the relay identity.
func EncodeHandshakeAck(server string) ([]byte, error) {
	return json.Marshal(HandshakeAck{
		Type:   TypeHandshakeAck,
		Status: "connected",
		Server: server,
	})
}

// NewCommand builds a command envelope. A nil payload is sent as {}.
func NewCommand(name CommandName, data any) (*Command, error) {
	if !name.Valid() {
		return nil, &UnknownCommandError{Command: name}
	}
	raw := json.RawMessage("{}")
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", name, err)
		}
		raw = b
	}
	return &Command{Type: TypeCommand, Command: name, Data: raw}, nil
}

// EncodeCommand serializes a command envelope.
func EncodeCommand(name CommandName, data any) ([]byte, error) {
	cmd, err := NewCommand(name, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cmd)
}

// EncodePing serializes a heartbeat stamped with now.
func EncodePing(now time.Time) ([]byte, error) {
	return json.Marshal(Ping{Type: TypePing, Timestamp: now.UnixMilli()})
}

// EncodePong serializes a heartbeat answer stamped with now.
func EncodePong(now time.Time) ([]byte, error) {
	return json.Marshal(Pong{Type: TypePong, Timestamp: now.UnixMilli()})
}

// NewHandshake builds the client greeting.
func NewHandshake(client, version string, now time.Time) *Handshake {
	return &Handshake{
		Type:      TypeHandshake,
		Client:    client,
		Version:   version,
		Timestamp: now.UnixMilli(),
	}
}
