package harness

import (
	"context"

	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	State types.LobbyState
	Reply chan *Lobby
}

type GetSession struct {
	SessionID string
	Reply     chan *Lobby
}

type RemoveSession struct {
	SessionID string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub multiplexes the live lobby sessions, keyed by session id.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*Lobby
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*Lobby),
		log:      log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if lb := h.sessions[msg.State.SessionID]; lb != nil {
					msg.Reply <- lb
					break
				}
				onEmpty := func(sessionID string) {
					select {
					case h.inbox <- RemoveSession{SessionID: sessionID}:
					case <-h.ctx.Done():
					}
				}
				lb := NewLobby(h.ctx, msg.State, onEmpty, h.log)
				h.sessions[msg.State.SessionID] = lb
				msg.Reply <- lb

			case GetSession:
				msg.Reply <- h.sessions[msg.SessionID] // may be nil

			case RemoveSession:
				delete(h.sessions, msg.SessionID)

			case ShutdownHub:
				for _, lb := range h.sessions {
					lb.Inbox() <- Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
				return
			}
		}
	}
}
