package readycheck

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

// MemberResponse is one participant's answer to the active ready check.
type MemberResponse struct {
	UserName string
	Response types.ReadyCheckResponse
}

// State is the in-flight "is everyone ready" poll. Result stays pending until
// the server's completion event or the local deadline fallback sets it; it is
// never inferred client-side from the individual responses, because only the
// server knows the full participant set.
type State struct {
	SessionID       string
	GroupID         string
	GroupName       string
	InitiatorID     string
	InitiatorName   string
	Responses       map[string]MemberResponse
	TimeoutSeconds  int
	ServerExpiresAt time.Time
	Result          types.ReadyCheckResult
}

type StartParams struct {
	SessionID       string
	GroupID         string
	GroupName       string
	InitiatorID     string
	InitiatorName   string
	TimeoutSeconds  int
	ServerExpiresAt time.Time
}

// Store owns the ready-check state independently of the lobby store so a
// ready check can render on screens that never mounted the lobby itself.
type Store struct {
	mu  sync.Mutex
	log *zap.Logger

	active   *State
	timer    *time.Timer
	timerGen int

	watchMu  sync.Mutex
	watchers []chan struct{}
}

func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log.Named("readycheck")}
}

func (s *Store) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	s.watchers = append(s.watchers, ch)
	s.watchMu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Start opens a new ready check, seeding every known member at pending, and
// arms the local deadline fallback against ServerExpiresAt. The deadline is a
// wall-clock instant rather than a countdown so client and server clocks only
// need rough agreement.
func (s *Store) Start(params StartParams, members []types.LobbyMember) {
	s.mu.Lock()
	s.stopTimerLocked()

	responses := make(map[string]MemberResponse, len(members))
	for _, m := range members {
		responses[m.UserID] = MemberResponse{UserName: m.UserName, Response: types.ResponsePending}
	}
	s.active = &State{
		SessionID:       params.SessionID,
		GroupID:         params.GroupID,
		GroupName:       params.GroupName,
		InitiatorID:     params.InitiatorID,
		InitiatorName:   params.InitiatorName,
		Responses:       responses,
		TimeoutSeconds:  params.TimeoutSeconds,
		ServerExpiresAt: params.ServerExpiresAt,
		Result:          types.ResultPending,
	}

	s.timerGen++
	gen := s.timerGen
	wait := time.Until(params.ServerExpiresAt)
	if wait < 0 {
		wait = 0
	}
	s.timer = time.AfterFunc(wait, func() { s.deadlineFired(gen) })
	s.mu.Unlock()
	s.notify()
}

// deadlineFired is the local fallback for a lost server completion event. If
// the server's own event arrives later, the idempotent SetResult makes it a
// no-op.
func (s *Store) deadlineFired(gen int) {
	s.mu.Lock()
	if gen != s.timerGen || s.active == nil || s.active.Result != types.ResultPending {
		s.mu.Unlock()
		return
	}
	s.active.Result = types.ResultTimeout
	s.mu.Unlock()
	s.log.Debug("ready check timed out locally")
	s.notify()
}

// UpdateResponse records one member's answer. It never touches Result.
func (s *Store) UpdateResponse(userID, userName string, response types.ReadyCheckResponse) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return
	}
	s.active.Responses[userID] = MemberResponse{UserName: userName, Response: response}
	s.mu.Unlock()
	s.notify()
}

// SetResult records the authoritative outcome. Once terminal, later calls
// with a different value are dropped.
func (s *Store) SetResult(result types.ReadyCheckResult) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return
	}
	if s.active.Result != types.ResultPending {
		s.mu.Unlock()
		s.log.Debug("ignored result for terminal ready check",
			zap.String("have", string(s.active.Result)),
			zap.String("got", string(result)))
		return
	}
	s.active.Result = result
	s.stopTimerLocked()
	s.mu.Unlock()
	s.notify()
}

// ClearTerminal clears the check only while it is still the terminal result
// for sessionID. A replacement check for the same session, pending again, is
// left alone.
func (s *Store) ClearTerminal(sessionID string) {
	s.mu.Lock()
	if s.active == nil || s.active.SessionID != sessionID || s.active.Result == types.ResultPending {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	s.active = nil
	s.mu.Unlock()
	s.notify()
}

// Clear resets to the inactive shape and disarms the deadline fallback.
func (s *Store) Clear() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.active = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store) stopTimerLocked() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Active returns a copy of the in-flight ready check, or nil.
func (s *Store) Active() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	cp := *s.active
	cp.Responses = make(map[string]MemberResponse, len(s.active.Responses))
	for id, r := range s.active.Responses {
		cp.Responses[id] = r
	}
	return &cp
}

// SessionID returns the session the active ready check belongs to, or "".
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.SessionID
}

// AcceptedCount is a derived read over the individual responses.
func (s *Store) AcceptedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return 0
	}
	n := 0
	for _, r := range s.active.Responses {
		if r.Response == types.ResponseAccepted {
			n++
		}
	}
	return n
}
