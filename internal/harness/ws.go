package harness

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

const wsWriteTimeout = 3 * time.Second

// WSHandler speaks the Frame protocol: the client subscribes to lobby
// channels by name and receives event frames until it unsubscribes or drops.
func WSHandler(h *Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()

		var writeMu sync.Mutex
		writeFrame := func(frame types.Frame) {
			payload, err := json.Marshal(frame)
			if err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(writeCtx, wsWriteTimeout)
			defer cancel()
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.Write(ctx, websocket.MessageText, payload)
		}

		// One outbox per subscribed lobby channel; a forwarder goroutine
		// drains each into the shared connection write.
		attached := make(map[string]*Lobby)
		detachAll := func() {
			for _, lb := range attached {
				lb.Inbox() <- Detach{ClientID: clientID}
			}
		}
		defer detachAll()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("ws read ended", zap.Error(err))
				}
				return
			}

			var frame types.Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				writeFrame(types.Frame{Type: types.FrameError, Error: "bad json"})
				continue
			}

			switch frame.Type {
			case types.FrameSubscribe:
				sessionID, isLobby := parseLobbyChannel(frame.Channel)
				if !isLobby {
					// Presence and session channels carry no events in the
					// harness; accept the subscribe silently.
					continue
				}
				if _, dup := attached[frame.Channel]; dup {
					continue
				}
				lb := getSession(h, sessionID)
				if lb == nil {
					writeFrame(types.Frame{Type: types.FrameError, Error: "lobby session not found"})
					continue
				}
				out := make(chan types.Frame, 8)
				lb.Inbox() <- Attach{ClientID: clientID, Outbox: out}
				attached[frame.Channel] = lb
				go func() {
					for f := range out {
						writeFrame(f)
					}
				}()

			case types.FrameUnsubscribe:
				if lb, ok := attached[frame.Channel]; ok {
					lb.Inbox() <- Detach{ClientID: clientID}
					delete(attached, frame.Channel)
				}

			default:
				writeFrame(types.Frame{Type: types.FrameError, Error: "unknown frame type"})
			}
		}
	}
}

func parseLobbyChannel(channel string) (sessionID string, ok bool) {
	const prefix = "private-lobby."
	if !strings.HasPrefix(channel, prefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, prefix), true
}
