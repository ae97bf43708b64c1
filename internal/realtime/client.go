package realtime

import (
	"context"
	"encoding/json"
)

// Event is one inbound realtime event on a subscribed channel.
type Event struct {
	Channel string
	Name    string
	Data    json.RawMessage
}

// Handler receives inbound events for one subscription.
type Handler func(evt Event)

type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// Client is the boundary with the realtime transport. Reconnect/backoff
// internals live behind this interface.
//
// Subscribing twice to the same channel rebinds its handler, which is why
// higher layers go through Manager instead of calling Subscribe directly.
type Client interface {
	SubscribeToPrivateChannel(ctx context.Context, channel string, h Handler) error
	Unsubscribe(ctx context.Context, channel string) error
	IsChannelSubscribed(channel string) bool
	IsConnected() bool
	OnConnectionStateChange(fn func(ConnState))
}
