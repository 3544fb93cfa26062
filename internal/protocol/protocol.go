// Package protocol defines the JSON messages exchanged with a marker host.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// host -> server
	TypeHello   = "HELLO"
	TypeCommand = "COMMAND"
	TypeTouch   = "TOUCH"

	// server -> host
	TypeWelcome       = "WELCOME"
	TypeMarkerCreate  = "MARKER_CREATE"
	TypeMarkerDestroy = "MARKER_DESTROY"
	TypeTeleport      = "TELEPORT"
	TypeMessage       = "MESSAGE"
	TypeError         = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
