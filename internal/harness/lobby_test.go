package harness

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

// helper: receive one frame with a timeout so tests never hang
func recvFrame(t *testing.T, ch <-chan types.Frame, within time.Duration) types.Frame {
	t.Helper()
	select {
	case frame, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return frame
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return types.Frame{} // unreachable
	}
}

func recvEvent(t *testing.T, ch <-chan types.Frame, event string, within time.Duration) types.Frame {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", event)
			}
			if frame.Event == event {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
			return types.Frame{} // unreachable
		}
	}
}

func initialState() types.LobbyState {
	now := time.Now()
	return types.LobbyState{
		SessionID:   "sess-1",
		GroupID:     "group-1",
		InitiatorID: "u1",
		Status:      types.StatusWaiting,
		Members: []types.LobbyMember{
			{UserID: "u1", UserName: "Ana", Status: types.MemberWaiting, JoinedAt: now},
		},
		MemberCount: 1,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestLobby_JoinBroadcastsMemberUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	out := make(chan types.Frame, 8)
	l.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	reply := make(chan types.LobbyState, 1)
	l.Inbox() <- Join{Member: types.LobbyMember{UserID: "u2", UserName: "Ben"}, Reply: reply}
	state := <-reply
	if state.MemberCount != 2 || len(state.Members) != 2 {
		t.Fatalf("after join: want 2 members, got count=%d len=%d", state.MemberCount, len(state.Members))
	}

	frame := recvFrame(t, out, 100*time.Millisecond)
	if frame.Event != types.EvtMemberStatusUpdate {
		t.Fatalf("want MemberStatusUpdate broadcast, got %q", frame.Event)
	}
	var p types.MemberStatusUpdatePayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Member.UserID != "u2" {
		t.Fatalf("want broadcast for u2, got %q", p.Member.UserID)
	}
}

func TestLobby_JoinIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	reply := make(chan types.LobbyState, 1)
	l.Inbox() <- Join{Member: types.LobbyMember{UserID: "u1", UserName: "Ana again"}, Reply: reply}
	state := <-reply
	if state.MemberCount != 1 {
		t.Fatalf("rejoining member must not duplicate: count=%d", state.MemberCount)
	}
}

func TestLobby_LeaveUnknownMemberErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	reply := make(chan error, 1)
	l.Inbox() <- Leave{UserID: "ghost", Reply: reply}
	if err := <-reply; err != ErrNotMember {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
}

func TestLobby_LastLeaveDeletesLobby(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emptied := make(chan string, 1)
	l := NewLobby(ctx, initialState(), func(id string) { emptied <- id }, nil)

	out := make(chan types.Frame, 8)
	l.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	reply := make(chan error, 1)
	l.Inbox() <- Leave{UserID: "u1", Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("leave: %v", err)
	}

	frame := recvEvent(t, out, types.EvtLobbyDeleted, 200*time.Millisecond)
	var p types.LobbyDeletedPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.SessionID != "sess-1" {
		t.Fatalf("want delete for sess-1, got %q", p.SessionID)
	}

	select {
	case id := <-emptied:
		if id != "sess-1" {
			t.Fatalf("want onEmpty for sess-1, got %q", id)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for onEmpty callback")
	}
}

func TestLobby_ReadyCheckAllAcceptSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	joinReply := make(chan types.LobbyState, 1)
	l.Inbox() <- Join{Member: types.LobbyMember{UserID: "u2", UserName: "Ben"}, Reply: joinReply}
	<-joinReply

	out := make(chan types.Frame, 16)
	l.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	startReply := make(chan error, 1)
	l.Inbox() <- StartReadyCheck{UserID: "u1", Reply: startReply}
	if err := <-startReply; err != nil {
		t.Fatalf("start ready check: %v", err)
	}
	recvEvent(t, out, types.EvtReadyCheckStarted, 200*time.Millisecond)

	l.Inbox() <- Respond{UserID: "u1", UserName: "Ana", Response: types.ResponseAccepted}
	l.Inbox() <- Respond{UserID: "u2", UserName: "Ben", Response: types.ResponseAccepted}

	frame := recvEvent(t, out, types.EvtReadyCheckComplete, 500*time.Millisecond)
	var p types.ReadyCheckCompletePayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Result != types.ResultSuccess {
		t.Fatalf("want success, got %q", p.Result)
	}

	stateReply := make(chan types.LobbyState, 1)
	l.Inbox() <- GetState{Reply: stateReply}
	if state := <-stateReply; state.Status != types.StatusStarting {
		t.Fatalf("want starting after successful check, got %q", state.Status)
	}
}

func TestLobby_ReadyCheckDeclineFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	joinReply := make(chan types.LobbyState, 1)
	l.Inbox() <- Join{Member: types.LobbyMember{UserID: "u2", UserName: "Ben"}, Reply: joinReply}
	<-joinReply

	out := make(chan types.Frame, 16)
	l.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	startReply := make(chan error, 1)
	l.Inbox() <- StartReadyCheck{UserID: "u1", Reply: startReply}
	if err := <-startReply; err != nil {
		t.Fatalf("start ready check: %v", err)
	}

	l.Inbox() <- Respond{UserID: "u1", UserName: "Ana", Response: types.ResponseAccepted}
	l.Inbox() <- Respond{UserID: "u2", UserName: "Ben", Response: types.ResponseDeclined}

	frame := recvEvent(t, out, types.EvtReadyCheckComplete, 500*time.Millisecond)
	var p types.ReadyCheckCompletePayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Result != types.ResultFailed {
		t.Fatalf("want failed, got %q", p.Result)
	}
}

func TestLobby_ReadyCheckExpiryReportsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	out := make(chan types.Frame, 16)
	l.Inbox() <- Attach{ClientID: "c1", Outbox: out}

	startReply := make(chan error, 1)
	l.Inbox() <- StartReadyCheck{UserID: "u1", Reply: startReply}
	if err := <-startReply; err != nil {
		t.Fatalf("start ready check: %v", err)
	}
	recvEvent(t, out, types.EvtReadyCheckStarted, 200*time.Millisecond)

	// first start arms generation 1; its expiry must complete the check as a
	// timeout, distinguishable from a decline
	l.Inbox() <- checkExpired{gen: 1}

	frame := recvEvent(t, out, types.EvtReadyCheckComplete, 500*time.Millisecond)
	var p types.ReadyCheckCompletePayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Result != types.ResultTimeout {
		t.Fatalf("want timeout, got %q", p.Result)
	}
}

func TestLobby_NonInitiatorCannotStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	reply := make(chan error, 1)
	l.Inbox() <- StartReadyCheck{UserID: "u2", Reply: reply}
	if err := <-reply; err != ErrNotInitiator {
		t.Fatalf("want ErrNotInitiator, got %v", err)
	}

	reply2 := make(chan error, 1)
	l.Inbox() <- StartWorkout{UserID: "u2", Reply: reply2}
	if err := <-reply2; err != ErrNotInitiator {
		t.Fatalf("want ErrNotInitiator, got %v", err)
	}
}

func TestLobby_DropSlowSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, initialState(), nil, nil)

	// unbuffered and never drained: first broadcast drops this subscriber
	out := make(chan types.Frame)
	l.Inbox() <- Attach{ClientID: "slow", Outbox: out}

	reply := make(chan types.LobbyState, 1)
	l.Inbox() <- Join{Member: types.LobbyMember{UserID: "u2", UserName: "Ben"}, Reply: reply}
	<-reply

	// the closed outbox is how the drop shows up
	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected outbox to be closed, got a frame")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for slow subscriber drop")
	}
}

func TestHub_CreateGetSamePointer(t *testing.T) {
	h := NewHub(context.Background(), nil)

	reply := make(chan *Lobby, 1)
	h.Inbox() <- CreateSession{State: initialState(), Reply: reply}
	lb1 := <-reply

	h.Inbox() <- GetSession{SessionID: "sess-1", Reply: reply}
	lb2 := <-reply

	if lb1 == nil || lb2 == nil || lb1 != lb2 {
		t.Fatalf("expected same lobby pointer")
	}
}

func TestHub_RemoveSession(t *testing.T) {
	h := NewHub(context.Background(), nil)

	reply := make(chan *Lobby, 1)
	h.Inbox() <- CreateSession{State: initialState(), Reply: reply}
	<-reply

	h.Inbox() <- RemoveSession{SessionID: "sess-1"}
	h.Inbox() <- GetSession{SessionID: "sess-1", Reply: reply}
	if lb := <-reply; lb != nil {
		t.Fatalf("expected session to be gone")
	}
}
