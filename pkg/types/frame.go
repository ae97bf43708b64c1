package types

import (
	"encoding/json"
	"fmt"
)

// Frame is the websocket wire envelope spoken between the realtime client and
// the lobby service.
//
// Client -> Server: {"type":"subscribe","channel":"private-lobby.42"}
//                   {"type":"unsubscribe","channel":"private-lobby.42"}
// Server -> Client: {"type":"event","channel":"...","event":"MemberStatusUpdate","data":{...}}
//                   {"type":"error","error":"..."}
type Frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameEvent       = "event"
	FrameError       = "error"
)

// Channel naming convention shared with the backend.
func LobbyChannel(sessionID string) string {
	return fmt.Sprintf("private-lobby.%s", sessionID)
}

func PresenceLobbyChannel(sessionID string) string {
	return fmt.Sprintf("presence-lobby.%s", sessionID)
}

func PresenceGroupChannel(groupID string) string {
	return fmt.Sprintf("presence-group.%s", groupID)
}

func SessionChannel(sessionID string) string {
	return fmt.Sprintf("private-session.%s", sessionID)
}
