package harness

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

var (
	ErrNotMember     = errors.New("not in this lobby")
	ErrNotInitiator  = errors.New("only the initiator can do that")
	ErrCheckRunning  = errors.New("ready check already running")
	ErrLobbyFinished = errors.New("session already ended")
)

const readyCheckTimeout = 25 * time.Second

type Msg interface{ isLobbyMsg() }

type Join struct {
	Member types.LobbyMember
	Reply  chan types.LobbyState
}

type Leave struct {
	UserID string
	Reply  chan error
}

type SetReady struct {
	UserID string
	Ready  bool
	Reply  chan error
}

type Chat struct {
	UserID   string
	UserName string
	Text     string
	Reply    chan types.ChatMessage
}

type StartReadyCheck struct {
	UserID string
	Reply  chan error
}

type Respond struct {
	UserID   string
	UserName string
	Response types.ReadyCheckResponse
}

type StartWorkout struct {
	UserID string
	Reply  chan error
}

// Attach registers a subscriber outbox for this lobby's event frames.
type Attach struct {
	ClientID string
	Outbox   chan types.Frame
}

type Detach struct{ ClientID string }

type GetState struct {
	Reply chan types.LobbyState
}

type Shutdown struct{}

type checkExpired struct{ gen int }

func (Join) isLobbyMsg()            {}
func (Leave) isLobbyMsg()           {}
func (SetReady) isLobbyMsg()        {}
func (Chat) isLobbyMsg()            {}
func (StartReadyCheck) isLobbyMsg() {}
func (Respond) isLobbyMsg()         {}
func (StartWorkout) isLobbyMsg()    {}
func (Attach) isLobbyMsg()          {}
func (Detach) isLobbyMsg()          {}
func (GetState) isLobbyMsg()        {}
func (Shutdown) isLobbyMsg()        {}
func (checkExpired) isLobbyMsg()    {}

// Lobby is one group-workout session, run as a single goroutine owning its
// state. All access goes through the inbox.
type Lobby struct {
	inbox   chan Msg
	state   types.LobbyState
	clients map[string]chan types.Frame
	log     *zap.Logger

	checkActive    bool
	checkGen       int
	checkResponses map[string]types.ReadyCheckResponse

	onEmpty func(sessionID string)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, initial types.LobbyState, onEmpty func(string), log *zap.Logger) *Lobby {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan types.Frame),
		log:     log.Named("lobby").With(zap.String("session_id", initial.SessionID)),
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}
	go l.loop()
	return l
}

func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)
			case Leave:
				l.handleLeave(msg)
			case SetReady:
				l.handleSetReady(msg)
			case Chat:
				l.handleChat(msg)
			case StartReadyCheck:
				l.handleStartReadyCheck(msg)
			case Respond:
				l.handleRespond(msg)
			case StartWorkout:
				l.handleStartWorkout(msg)
			case checkExpired:
				l.handleCheckExpired(msg)

			case Attach:
				l.clients[msg.ClientID] = msg.Outbox

			case Detach:
				delete(l.clients, msg.ClientID)

			case GetState:
				msg.Reply <- l.state

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handleJoin(msg Join) {
	exists := false
	for _, m := range l.state.Members {
		if m.UserID == msg.Member.UserID {
			exists = true
			break
		}
	}
	if !exists {
		msg.Member.Status = types.MemberWaiting
		msg.Member.JoinedAt = time.Now()
		l.state.Members = append(l.state.Members, msg.Member)
		l.state.MemberCount = len(l.state.Members)
		l.broadcast(types.EvtMemberStatusUpdate, types.MemberStatusUpdatePayload{
			SessionID: l.state.SessionID,
			Member:    msg.Member,
		})
	}
	msg.Reply <- l.state
}

func (l *Lobby) handleLeave(msg Leave) {
	idx := -1
	for i, m := range l.state.Members {
		if m.UserID == msg.UserID {
			idx = i
			break
		}
	}
	if idx < 0 {
		msg.Reply <- ErrNotMember
		return
	}
	l.state.Members = append(l.state.Members[:idx], l.state.Members[idx+1:]...)
	l.state.MemberCount = len(l.state.Members)

	if len(l.state.Members) == 0 {
		l.state.Status = types.StatusCompleted
		l.broadcast(types.EvtLobbyDeleted, types.LobbyDeletedPayload{
			SessionID: l.state.SessionID,
			Reason:    "last member left",
		})
		msg.Reply <- nil
		if l.onEmpty != nil {
			l.onEmpty(l.state.SessionID)
		}
		l.shutdown()
		return
	}

	l.broadcast(types.EvtLobbyStateChanged, types.LobbyStateChangedPayload{State: l.state})
	msg.Reply <- nil
}

func (l *Lobby) handleSetReady(msg SetReady) {
	for i := range l.state.Members {
		if l.state.Members[i].UserID == msg.UserID {
			if msg.Ready {
				l.state.Members[i].Status = types.MemberReady
			} else {
				l.state.Members[i].Status = types.MemberWaiting
			}
			l.broadcast(types.EvtMemberStatusUpdate, types.MemberStatusUpdatePayload{
				SessionID: l.state.SessionID,
				Member:    l.state.Members[i],
			})
			msg.Reply <- nil
			return
		}
	}
	msg.Reply <- ErrNotMember
}

func (l *Lobby) handleChat(msg Chat) {
	confirmed := types.ChatMessage{
		MessageID: uuid.NewString(),
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Message:   msg.Text,
		Timestamp: time.Now(),
	}
	l.broadcast(types.EvtLobbyMessageSent, types.LobbyMessageSentPayload{
		SessionID: l.state.SessionID,
		Message:   confirmed,
	})
	msg.Reply <- confirmed
}

func (l *Lobby) handleStartReadyCheck(msg StartReadyCheck) {
	if msg.UserID != l.state.InitiatorID {
		msg.Reply <- ErrNotInitiator
		return
	}
	if l.checkActive {
		msg.Reply <- ErrCheckRunning
		return
	}

	l.checkActive = true
	l.checkResponses = make(map[string]types.ReadyCheckResponse, len(l.state.Members))
	for _, m := range l.state.Members {
		l.checkResponses[m.UserID] = types.ResponsePending
	}

	var initiatorName string
	for _, m := range l.state.Members {
		if m.UserID == l.state.InitiatorID {
			initiatorName = m.UserName
			break
		}
	}

	expiresAt := time.Now().Add(readyCheckTimeout)
	l.broadcast(types.EvtReadyCheckStarted, types.ReadyCheckStartedPayload{
		SessionID:      l.state.SessionID,
		GroupID:        l.state.GroupID,
		InitiatorID:    l.state.InitiatorID,
		InitiatorName:  initiatorName,
		TimeoutSeconds: int(readyCheckTimeout / time.Second),
		ExpiresAt:      expiresAt,
	})

	// Timer generation guards against a stale fire after the check resolved
	// and a new one started.
	l.checkGen++
	gen := l.checkGen
	time.AfterFunc(readyCheckTimeout, func() {
		select {
		case l.inbox <- checkExpired{gen: gen}:
		case <-l.ctx.Done():
		}
	})

	msg.Reply <- nil
}

func (l *Lobby) handleRespond(msg Respond) {
	if !l.checkActive {
		return
	}
	if _, ok := l.checkResponses[msg.UserID]; !ok {
		return
	}
	l.checkResponses[msg.UserID] = msg.Response
	l.broadcast(types.EvtReadyCheckResponse, types.ReadyCheckResponsePayload{
		SessionID: l.state.SessionID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Response:  msg.Response,
	})

	allAccepted := true
	for _, r := range l.checkResponses {
		switch r {
		case types.ResponsePending:
			return // still waiting on someone
		case types.ResponseDeclined:
			allAccepted = false
		}
	}

	result := types.ResultFailed
	if allAccepted {
		result = types.ResultSuccess
		l.state.Status = types.StatusStarting
	}
	l.finishReadyCheck(result)
	if allAccepted {
		l.broadcast(types.EvtLobbyStateChanged, types.LobbyStateChangedPayload{State: l.state})
	}
}

func (l *Lobby) handleCheckExpired(msg checkExpired) {
	if !l.checkActive || msg.gen != l.checkGen {
		return
	}
	l.finishReadyCheck(types.ResultTimeout)
}

func (l *Lobby) finishReadyCheck(result types.ReadyCheckResult) {
	l.checkActive = false
	l.checkResponses = nil
	l.checkGen++
	l.broadcast(types.EvtReadyCheckComplete, types.ReadyCheckCompletePayload{
		SessionID: l.state.SessionID,
		Result:    result,
	})
}

func (l *Lobby) handleStartWorkout(msg StartWorkout) {
	if msg.UserID != l.state.InitiatorID {
		msg.Reply <- ErrNotInitiator
		return
	}
	if l.state.Status == types.StatusCompleted {
		msg.Reply <- ErrLobbyFinished
		return
	}
	l.state.Status = types.StatusInProgress
	l.broadcast(types.EvtLobbyStateChanged, types.LobbyStateChangedPayload{State: l.state})
	msg.Reply <- nil
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch)
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.log.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	frame := types.Frame{
		Type:    types.FrameEvent,
		Channel: types.LobbyChannel(l.state.SessionID),
		Event:   event,
		Data:    data,
	}
	for id, ch := range l.clients {
		select {
		case ch <- frame:
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(l.clients, id)
		}
	}
}
