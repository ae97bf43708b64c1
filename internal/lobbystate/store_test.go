package lobbystate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

func validLobby() types.LobbyState {
	return types.LobbyState{
		SessionID:   "sess-1",
		GroupID:     "group-1",
		InitiatorID: "u1",
		Status:      types.StatusWaiting,
		Members: []types.LobbyMember{
			{UserID: "u1", UserName: "Ana", Status: types.MemberReady},
			{UserID: "u2", UserName: "Ben", Status: types.MemberWaiting},
		},
		MemberCount: 2,
	}
}

func TestSetLobbyState_RejectsCompletedAndEmpty(t *testing.T) {
	s := NewStore(nil)
	s.SetLobbyState(validLobby())
	require.NotNil(t, s.Lobby())

	completed := validLobby()
	completed.Status = types.StatusCompleted
	s.SetLobbyState(completed)

	got := s.Lobby()
	require.NotNil(t, got)
	assert.Equal(t, types.StatusWaiting, got.Status, "completed snapshot must not replace valid state")
	assert.Len(t, got.Members, 2)

	empty := validLobby()
	empty.Members = nil
	s.SetLobbyState(empty)

	got = s.Lobby()
	require.NotNil(t, got)
	assert.Len(t, got.Members, 2, "empty-roster snapshot must not replace valid state")
}

func TestSetLobbyState_NormalizesMemberCount(t *testing.T) {
	s := NewStore(nil)
	snap := validLobby()
	snap.MemberCount = 99
	s.SetLobbyState(snap)
	require.NotNil(t, s.Lobby())
	assert.Equal(t, 2, s.Lobby().MemberCount)
}

func TestAddMember_DeduplicatesByUserID(t *testing.T) {
	s := NewStore(nil)
	s.SetLobbyState(validLobby())

	s.AddMember(types.LobbyMember{UserID: "u3", UserName: "Cyd"})
	s.AddMember(types.LobbyMember{UserID: "u3", UserName: "Cyd again"})
	s.AddMember(types.LobbyMember{UserID: "u2", UserName: "Ben dup"})

	got := s.Lobby()
	require.NotNil(t, got)
	assert.Len(t, got.Members, 3)
	assert.Equal(t, 3, got.MemberCount)

	seen := map[string]int{}
	for _, m := range got.Members {
		seen[m.UserID]++
	}
	for id, n := range seen {
		assert.Equalf(t, 1, n, "user %s appears %d times", id, n)
	}
}

func TestRemoveMember_RecomputesCount(t *testing.T) {
	s := NewStore(nil)
	s.SetLobbyState(validLobby())

	s.RemoveMember("u2")

	got := s.Lobby()
	require.NotNil(t, got)
	assert.Len(t, got.Members, 1)
	assert.Equal(t, 1, got.MemberCount)
	assert.Equal(t, "u1", got.Members[0].UserID)

	// removing an absent member is a no-op
	s.RemoveMember("u2")
	assert.Equal(t, 1, s.Lobby().MemberCount)
}

func TestUpdateMemberStatus_AllReadyTransition(t *testing.T) {
	s := NewStore(nil)
	s.SetLobbyState(validLobby())

	assert.False(t, s.AreAllMembersReady())
	s.UpdateMemberStatus("u2", types.MemberReady)
	assert.True(t, s.AreAllMembersReady())
	assert.True(t, s.IsMemberReady("u2"))

	// unknown user and nil lobby are no-ops
	s.UpdateMemberStatus("nobody", types.MemberReady)
	s.ClearLobby("sess-1")
	s.UpdateMemberStatus("u1", types.MemberWaiting)
}

func TestAreAllMembersReady_FalseOnEmpty(t *testing.T) {
	s := NewStore(nil)
	assert.False(t, s.AreAllMembersReady(), "empty roster must not be vacuously all-ready")
}

func TestAddChatMessage_IdempotentByID(t *testing.T) {
	s := NewStore(nil)
	msg := types.ChatMessage{MessageID: "m1", UserID: "u1", Message: "hi", Timestamp: time.Now()}
	s.AddChatMessage(msg)
	s.AddChatMessage(msg)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MessageID)
}

func TestAddChatMessages_MergesAndSortsByTimestamp(t *testing.T) {
	s := NewStore(nil)
	base := time.Now()

	s.AddChatMessage(types.ChatMessage{MessageID: "live", Message: "live", Timestamp: base.Add(3 * time.Second)})
	s.AddChatMessages([]types.ChatMessage{
		{MessageID: "h2", Message: "second", Timestamp: base.Add(2 * time.Second)},
		{MessageID: "h1", Message: "first", Timestamp: base.Add(1 * time.Second)},
		{MessageID: "live", Message: "dup", Timestamp: base},
	})

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"h1", "h2", "live"}, []string{msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID})
}

func TestRemoveTempMessage(t *testing.T) {
	s := NewStore(nil)
	tempID := types.TempMessagePrefix + "abc"
	s.AddChatMessage(types.ChatMessage{MessageID: tempID, Message: "sending...", Timestamp: time.Now()})
	s.AddChatMessage(types.ChatMessage{MessageID: "confirmed", Message: "sent", Timestamp: time.Now()})

	s.RemoveTempMessage(tempID)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "confirmed", msgs[0].MessageID)

	// the freed id can be inserted again afterwards
	s.AddChatMessage(types.ChatMessage{MessageID: tempID, Message: "retry", Timestamp: time.Now()})
	assert.Len(t, s.Messages(), 2)
}

func TestUnreadCount_TracksChatOpenState(t *testing.T) {
	s := NewStore(nil)
	s.AddChatMessage(types.ChatMessage{MessageID: "m1", Timestamp: time.Now()})
	s.AddChatMessage(types.ChatMessage{MessageID: "m2", Timestamp: time.Now()})
	assert.Equal(t, 2, s.UnreadCount())

	// optimistic placeholders never count as unread
	s.AddChatMessage(types.ChatMessage{MessageID: types.TempMessagePrefix + "x", Timestamp: time.Now()})
	assert.Equal(t, 2, s.UnreadCount())

	s.SetChatOpen(true)
	assert.Equal(t, 0, s.UnreadCount())

	s.AddChatMessage(types.ChatMessage{MessageID: "m3", Timestamp: time.Now()})
	assert.Equal(t, 0, s.UnreadCount(), "open chat panel reads messages as they arrive")
}

func TestClearLobby_RemembersLeftSession(t *testing.T) {
	s := NewStore(nil)
	s.SetLobbyState(validLobby())
	s.AddChatMessage(types.ChatMessage{MessageID: "m1", Timestamp: time.Now()})

	s.ClearLobby("sess-1")

	assert.Nil(t, s.Lobby())
	assert.Empty(t, s.Messages())
	assert.Equal(t, 0, s.UnreadCount())
	assert.True(t, s.RecentlyLeft("sess-1"))
	assert.False(t, s.RecentlyLeft("sess-2"))
	assert.False(t, s.RecentlyLeft(""))
	assert.False(t, s.LeftAt().IsZero())
}

func TestSetLobbyState_RejoinResetsLeftGuard(t *testing.T) {
	s := NewStore(nil)
	s.SetLobbyState(validLobby())
	s.ClearLobby("sess-1")
	require.True(t, s.RecentlyLeft("sess-1"))

	// rejoining the same session: its snapshot is accepted and the guard
	// must not keep eating events for it
	s.SetLobbyState(validLobby())

	require.NotNil(t, s.Lobby())
	assert.False(t, s.RecentlyLeft("sess-1"))
	assert.True(t, s.LeftAt().IsZero())
}

func TestMembers_StableEmptySentinel(t *testing.T) {
	s := NewStore(nil)
	a := s.Members()
	b := s.Members()
	require.NotNil(t, a)
	assert.Len(t, a, 0)
	assert.Len(t, b, 0)
}

func TestWatch_SignalsOnMutation(t *testing.T) {
	s := NewStore(nil)
	ch := s.Watch()

	s.SetLobbyState(validLobby())

	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for watch signal")
	}
}
