package protocol

import "fieldnotes.ai/internal/observation"

// HELLO (host -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	HostName        string `json:"host_name"`
}

// ActorRef identifies who issued a command or touched a marker.
type ActorRef struct {
	ID          string               `json:"id"`
	Name        string               `json:"name,omitempty"`
	Player      bool                 `json:"player"`
	Permissions []string             `json:"permissions,omitempty"`
	Location    observation.Location `json:"location"`
}

// COMMAND (host -> server): a raw command line such as "observations near 10".
type CommandMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Actor           ActorRef `json:"actor"`
	Line            string   `json:"line"`
}

// TOUCH (host -> server)
type TouchMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	MarkerID        string   `json:"marker_id"`
	Actor           ActorRef `json:"actor"`
}

type MarkerState struct {
	MarkerID string               `json:"marker_id"`
	Location observation.Location `json:"location"`
	Lines    []observation.Line   `json:"lines"`
}

// WELCOME (server -> host)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	Markers         []MarkerState `json:"markers"`
}

// MARKER_CREATE (server -> host)
type MarkerCreateMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	MarkerID        string               `json:"marker_id"`
	Location        observation.Location `json:"location"`
	Lines           []observation.Line   `json:"lines"`
}

// MARKER_DESTROY (server -> host)
type MarkerDestroyMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MarkerID        string `json:"marker_id"`
}

// TELEPORT (server -> host)
type TeleportMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	ActorID         string               `json:"actor_id"`
	Location        observation.Location `json:"location"`
}

// MESSAGE (server -> host): chat lines for one actor, markup already resolved.
type MessageMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ActorID         string   `json:"actor_id"`
	Lines           []string `json:"lines"`
}

// ERROR (server -> host)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
	ActorID         string `json:"actor_id,omitempty"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
