// Package protocol defines the JSON messages exchanged between the study
// front-end and the relay. Every message is one JSON object discriminated
// by its "type" field.
package protocol

import "encoding/json"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeHandshake is sent by the study front-end right after connecting
	TypeHandshake MessageType = "handshake"

	// TypeHandshakeAck is the relay's reply to a handshake
	TypeHandshakeAck MessageType = "handshake_ack"

	// TypeStudyData carries one frame of study telemetry
	TypeStudyData MessageType = "study_data"

	// TypeStudyEvent carries a discrete study event (task_start, click, ...)
	TypeStudyEvent MessageType = "study_event"

	// TypeCommand is sent by the relay to drive the study's cursor proxy
	TypeCommand MessageType = "command"

	// TypePing is an application-level heartbeat sent by the relay
	TypePing MessageType = "ping"

	// TypePong answers a ping
	TypePong MessageType = "pong"
)

// CommandName identifies a server-to-client command
type CommandName string

const (
	CommandSetCursorRelative CommandName = "set_cursor_relative"
	CommandSetCursorAbsolute CommandName = "set_cursor_absolute"
	CommandTriggerClick      CommandName = "trigger_click"
	CommandEnableControl     CommandName = "enable_control"
	CommandDisableControl    CommandName = "disable_control"
)

// Valid reports whether the command is one the study front-end understands.
func (c CommandName) Valid() bool {
	switch c {
	case CommandSetCursorRelative, CommandSetCursorAbsolute, CommandTriggerClick,
		CommandEnableControl, CommandDisableControl:
		return true
	}
	return false
}

// Vec2 is a 2D coordinate or vector
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Handshake identifies the connecting study client
type Handshake struct {
	Type      MessageType `json:"type"`
	Client    string      `json:"client"`
	Version   string      `json:"version"`
	Timestamp int64       `json:"timestamp"`
}

// Movement describes the cursor motion since the previous frame
type Movement struct {
	Vector     Vec2    `json:"vector"`
	Normalized Vec2    `json:"normalized"`
	Speed      float64 `json:"speed"`
}

// Required describes the vector still to travel to reach the target
type Required struct {
	Vector     Vec2    `json:"vector"`
	Normalized Vec2    `json:"normalized"`
	Distance   float64 `json:"distance"`
}

// Task describes the pointing task in progress
type Task struct {
	Index       int     `json:"index"`
	ClickNumber int     `json:"clickNumber"`
	Amplitude   float64 `json:"amplitude"`
	Width       float64 `json:"width"`
	NumTargets  int     `json:"numTargets"`
}

// Canvas is the size of the study drawing surface
type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StudyData is one frame of telemetry. Absent fields decode as zero.
type StudyData struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Cursor    Vec2        `json:"cursor"`
	Target    Vec2        `json:"target"`
	Movement  Movement    `json:"movement"`
	Required  Required    `json:"required"`
	Task      Task        `json:"task"`
	Canvas    Canvas      `json:"canvas"`
}

// StudyEvent is a named study event with an arbitrary payload
type StudyEvent struct {
	Type      MessageType    `json:"type"`
	Event     string         `json:"event"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Pong answers a relay ping
type Pong struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// HandshakeAck acknowledges a handshake
type HandshakeAck struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
	Server string      `json:"server"`
}

// Ping is an application-level heartbeat
type Ping struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// Command is the server-to-client command envelope
type Command struct {
	Type    MessageType     `json:"type"`
	Command CommandName     `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// Decode unmarshals the command payload into v.
func (c *Command) Decode(v any) error {
	if len(c.Data) == 0 {
		return nil
	}
	return json.Unmarshal(c.Data, v)
}

// RelativeMove is the payload of set_cursor_relative. Either the pixel
// delta or the normalized delta is set.
type RelativeMove struct {
	DX  float64  `json:"dx"`
	DY  float64  `json:"dy"`
	NDX *float64 `json:"ndx,omitempty"`
	NDY *float64 `json:"ndy,omitempty"`
}

// AbsoluteMove is the payload of set_cursor_absolute. Either the pixel
// position or the normalized (0-1) position is set.
type AbsoluteMove struct {
	X  float64  `json:"x"`
	Y  float64  `json:"y"`
	NX *float64 `json:"nx,omitempty"`
	NY *float64 `json:"ny,omitempty"`
}

// Inbound is a client-to-server message: *Handshake, *StudyData,
// *StudyEvent or *Pong.
type Inbound interface {
	inbound()
}

func (*Handshake) inbound()  {}
func (*StudyData) inbound()  {}
func (*StudyEvent) inbound() {}
func (*Pong) inbound()       {}

// Outbound is a server-to-client message: *HandshakeAck, *Command or *Ping.
type Outbound interface {
	outbound()
}

func (*HandshakeAck) outbound() {}
func (*Command) outbound()      {}
func (*Ping) outbound()         {}
