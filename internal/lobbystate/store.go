package lobbystate

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

// noMembers is the stable empty slice returned while no lobby is active, so
// selector callers comparing identity across reads don't see churn.
var noMembers = []types.LobbyMember{}

// Store is the single source of truth for the current lobby: roster, per-member
// ready status, chat transcript and unread count. All mutations go through its
// methods; nothing reaches into the fields directly.
type Store struct {
	mu  sync.RWMutex
	log *zap.Logger

	current     *types.LobbyState
	messages    []types.ChatMessage
	messageIDs  map[string]struct{}
	unreadCount int
	chatOpen    bool

	// leftSessionID/leftAt remember the session the user just left so a stale
	// inbound snapshot for it can be recognized and dropped instead of
	// resurrecting a dead lobby.
	leftSessionID string
	leftAt        time.Time

	lastUpdated time.Time

	watchMu  sync.Mutex
	watchers []chan struct{}
}

func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:        log.Named("lobbystate"),
		messageIDs: make(map[string]struct{}),
	}
}

// Watch returns a channel that receives a coalesced signal after every
// accepted mutation. Consumers re-read selectors on each signal.
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
			// watcher hasn't drained the previous signal; it will re-read
			// current state anyway
		}
	}
}

// SetLobbyState replaces the current lobby with a server snapshot. Snapshots
// with a completed status or an empty roster are dropped so the store never
// regresses from a valid state to a ghost one.
func (s *Store) SetLobbyState(snapshot types.LobbyState) {
	s.mu.Lock()
	if snapshot.Status == types.StatusCompleted || len(snapshot.Members) == 0 {
		s.mu.Unlock()
		s.log.Debug("rejected stale lobby snapshot",
			zap.String("session_id", snapshot.SessionID),
			zap.String("status", string(snapshot.Status)),
			zap.Int("members", len(snapshot.Members)))
		return
	}
	snapshot.MemberCount = len(snapshot.Members)
	if s.leftSessionID == snapshot.SessionID {
		// The user rejoined the session they last left; the stale-event
		// guard for it no longer applies.
		s.leftSessionID = ""
		s.leftAt = time.Time{}
	}
	s.current = &snapshot
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// UpdateMemberStatus sets the ready/waiting status of one member. No-op if no
// lobby is active or the member is unknown.
func (s *Store) UpdateMemberStatus(userID string, status types.MemberStatus) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	changed := false
	for i := range s.current.Members {
		if s.current.Members[i].UserID == userID {
			s.current.Members[i].Status = status
			changed = true
			break
		}
	}
	if changed {
		s.lastUpdated = time.Now()
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// AddMember appends a member to the roster. Duplicate user ids are dropped.
func (s *Store) AddMember(member types.LobbyMember) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	for _, m := range s.current.Members {
		if m.UserID == member.UserID {
			s.mu.Unlock()
			s.log.Debug("dropped duplicate member", zap.String("user_id", member.UserID))
			return
		}
	}
	s.current.Members = append(s.current.Members, member)
	s.current.MemberCount = len(s.current.Members)
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// RemoveMember filters a member out of the roster. MemberCount is recomputed
// from the filtered list, not decremented, so it stays right under
// overlapping removals.
func (s *Store) RemoveMember(userID string) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	kept := s.current.Members[:0]
	for _, m := range s.current.Members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	s.current.Members = kept
	s.current.MemberCount = len(kept)
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
}

// AddChatMessage appends one message, deduplicating by message id. The unread
// count grows only while the chat panel is closed and the message is not a
// local optimistic placeholder.
func (s *Store) AddChatMessage(msg types.ChatMessage) {
	s.mu.Lock()
	if _, seen := s.messageIDs[msg.MessageID]; seen {
		s.mu.Unlock()
		return
	}
	s.messageIDs[msg.MessageID] = struct{}{}
	s.messages = append(s.messages, msg)
	if !s.chatOpen && !strings.HasPrefix(msg.MessageID, types.TempMessagePrefix) {
		s.unreadCount++
	}
	s.mu.Unlock()
	s.notify()
}

// AddChatMessages merges a batch (e.g. a history page) into the transcript,
// deduplicating by id and re-sorting by timestamp since pagination may arrive
// out of order relative to live events.
func (s *Store) AddChatMessages(msgs []types.ChatMessage) {
	s.mu.Lock()
	added := false
	for _, msg := range msgs {
		if _, seen := s.messageIDs[msg.MessageID]; seen {
			continue
		}
		s.messageIDs[msg.MessageID] = struct{}{}
		s.messages = append(s.messages, msg)
		added = true
	}
	if added {
		sort.SliceStable(s.messages, func(i, j int) bool {
			return s.messages[i].Timestamp.Before(s.messages[j].Timestamp)
		})
	}
	s.mu.Unlock()
	if added {
		s.notify()
	}
}

// RemoveTempMessage strips a client-optimistic placeholder once the
// server-confirmed message has arrived.
func (s *Store) RemoveTempMessage(tempID string) {
	s.mu.Lock()
	if _, ok := s.messageIDs[tempID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.messageIDs, tempID)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.MessageID != tempID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	s.mu.Unlock()
	s.notify()
}

// SetChatOpen records whether the chat panel is visible; opening it clears
// the unread count.
func (s *Store) SetChatOpen(open bool) {
	s.mu.Lock()
	s.chatOpen = open
	if open {
		s.unreadCount = 0
	}
	s.mu.Unlock()
	s.notify()
}

// ClearLobby drops all lobby state. The cleared session id is remembered so a
// stale snapshot for the just-left session can be ignored afterwards.
func (s *Store) ClearLobby(sessionID string) {
	s.mu.Lock()
	s.current = nil
	s.messages = nil
	s.messageIDs = make(map[string]struct{})
	s.unreadCount = 0
	s.chatOpen = false
	if sessionID != "" {
		s.leftSessionID = sessionID
		s.leftAt = time.Now()
	}
	s.lastUpdated = time.Now()
	s.mu.Unlock()
	s.notify()
	s.log.Debug("lobby cleared", zap.String("session_id", sessionID))
}

// Lobby returns a copy of the current lobby state, or nil.
func (s *Store) Lobby() *types.LobbyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	cp.Members = append([]types.LobbyMember(nil), s.current.Members...)
	return &cp
}

// SessionID returns the active session id, or "".
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.SessionID
}

// Members returns the current roster, or a stable empty slice.
func (s *Store) Members() []types.LobbyMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || len(s.current.Members) == 0 {
		return noMembers
	}
	return append([]types.LobbyMember(nil), s.current.Members...)
}

// HasMember reports whether userID is on the current roster.
func (s *Store) HasMember(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return false
	}
	for _, m := range s.current.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// IsMemberReady reports whether userID is on the roster with ready status.
func (s *Store) IsMemberReady(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return false
	}
	for _, m := range s.current.Members {
		if m.UserID == userID {
			return m.Status == types.MemberReady
		}
	}
	return false
}

// AreAllMembersReady reports whether every roster member is ready. An empty
// roster is never "all ready".
func (s *Store) AreAllMembersReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || len(s.current.Members) == 0 {
		return false
	}
	for _, m := range s.current.Members {
		if m.Status != types.MemberReady {
			return false
		}
	}
	return true
}

// IsInitiator reports whether userID started the current lobby.
func (s *Store) IsInitiator(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.InitiatorID == userID
}

// Messages returns a copy of the transcript in timestamp order.
func (s *Store) Messages() []types.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ChatMessage(nil), s.messages...)
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadCount
}

func (s *Store) IsChatOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatOpen
}

// RecentlyLeft reports whether sessionID is the session the user last left.
// Events for it arriving after cleanup are stale and must not trigger another
// teardown.
func (s *Store) RecentlyLeft(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sessionID != "" && s.leftSessionID == sessionID
}

// LeftAt returns when the last ClearLobby with a session id happened.
func (s *Store) LeftAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leftAt
}

// LastUpdated returns the time of the last accepted mutation.
func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}
