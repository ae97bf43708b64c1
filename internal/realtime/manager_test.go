package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records subscribe/unsubscribe traffic and lets tests emit
// events or simulate transport-side subscription loss.
type fakeClient struct {
	mu           sync.Mutex
	handlers     map[string]Handler
	subscribes   map[string]int
	unsubscribes map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers:     make(map[string]Handler),
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
	}
}

func (f *fakeClient) SubscribeToPrivateChannel(_ context.Context, channel string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes[channel]++
	f.handlers[channel] = h
	return nil
}

func (f *fakeClient) Unsubscribe(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes[channel]++
	delete(f.handlers, channel)
	return nil
}

func (f *fakeClient) IsChannelSubscribed(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[channel]
	return ok
}

func (f *fakeClient) IsConnected() bool { return true }

func (f *fakeClient) OnConnectionStateChange(func(ConnState)) {}

func (f *fakeClient) emit(channel string, evt Event) {
	f.mu.Lock()
	h := f.handlers[channel]
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (f *fakeClient) drop(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, channel)
}

func (f *fakeClient) subscribeCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes[channel]
}

func (f *fakeClient) unsubscribeCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribes[channel]
}

func TestAcquire_SecondConsumerPiggybacks(t *testing.T) {
	fc := newFakeClient()
	m := NewManager(fc, nil)
	ctx := context.Background()

	var got1, got2 []string
	rel1, err := m.Acquire(ctx, "private-lobby.s1", func(e Event) { got1 = append(got1, e.Name) })
	require.NoError(t, err)
	rel2, err := m.Acquire(ctx, "private-lobby.s1", func(e Event) { got2 = append(got2, e.Name) })
	require.NoError(t, err)

	assert.Equal(t, 1, fc.subscribeCount("private-lobby.s1"),
		"second acquire must not re-issue the subscribe")

	fc.emit("private-lobby.s1", Event{Channel: "private-lobby.s1", Name: "MemberStatusUpdate"})
	assert.Equal(t, []string{"MemberStatusUpdate"}, got1)
	assert.Equal(t, []string{"MemberStatusUpdate"}, got2, "piggybacker still receives events")

	rel1()
	assert.Equal(t, 0, fc.unsubscribeCount("private-lobby.s1"),
		"releasing one of two holders keeps the subscription alive")

	fc.emit("private-lobby.s1", Event{Channel: "private-lobby.s1", Name: "LobbyMessageSent"})
	assert.Equal(t, []string{"MemberStatusUpdate"}, got1, "released handler must not fire")
	assert.Equal(t, []string{"MemberStatusUpdate", "LobbyMessageSent"}, got2)

	rel2()
	assert.Equal(t, 1, fc.unsubscribeCount("private-lobby.s1"))
	assert.False(t, m.Held("private-lobby.s1"))
}

func TestRelease_IsIdempotent(t *testing.T) {
	fc := newFakeClient()
	m := NewManager(fc, nil)

	rel, err := m.Acquire(context.Background(), "private-lobby.s1", nil)
	require.NoError(t, err)
	rel()
	rel()
	assert.Equal(t, 1, fc.unsubscribeCount("private-lobby.s1"))
}

func TestEnsureSubscribed_HealsLostSubscription(t *testing.T) {
	fc := newFakeClient()
	m := NewManager(fc, nil)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "private-lobby.s1", nil)
	require.NoError(t, err)

	// transport forgot the channel while the manager still holds refs
	fc.drop("private-lobby.s1")
	require.False(t, fc.IsChannelSubscribed("private-lobby.s1"))

	healed, err := m.EnsureSubscribed(ctx, "private-lobby.s1")
	require.NoError(t, err)
	assert.True(t, healed)
	assert.True(t, fc.IsChannelSubscribed("private-lobby.s1"))
	assert.Equal(t, 2, fc.subscribeCount("private-lobby.s1"))

	// subscribed and held: nothing to do
	healed, err = m.EnsureSubscribed(ctx, "private-lobby.s1")
	require.NoError(t, err)
	assert.False(t, healed)

	// not held at all: nothing to do either
	healed, err = m.EnsureSubscribed(ctx, "private-lobby.other")
	require.NoError(t, err)
	assert.False(t, healed)
}
