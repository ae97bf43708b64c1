package realtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager wraps a Client with reference-counted subscription ownership: the
// first acquirer of a channel performs the real subscribe, later acquirers
// piggyback by registering an extra handler, and the last release tears the
// subscription down. This keeps two consumers of the same channel from
// clobbering each other's handlers on the underlying client.
type Manager struct {
	mu     sync.Mutex
	client Client
	log    *zap.Logger
	refs   map[string]*channelRef
}

type channelRef struct {
	count    int
	nextID   int
	handlers map[int]Handler
}

func NewManager(client Client, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		client: client,
		log:    log.Named("realtime"),
		refs:   make(map[string]*channelRef),
	}
}

// Acquire registers h on channel and returns a release func. The underlying
// subscribe is only issued for the first acquirer.
func (m *Manager) Acquire(ctx context.Context, channel string, h Handler) (func(), error) {
	m.mu.Lock()
	ref, exists := m.refs[channel]
	if !exists {
		ref = &channelRef{handlers: make(map[int]Handler)}
		m.refs[channel] = ref
	}
	id := ref.nextID
	ref.nextID++
	if h != nil {
		ref.handlers[id] = h
	}
	ref.count++
	first := ref.count == 1
	m.mu.Unlock()

	if first {
		if err := m.client.SubscribeToPrivateChannel(ctx, channel, m.dispatcher(channel)); err != nil {
			m.mu.Lock()
			ref.count--
			delete(ref.handlers, id)
			if ref.count == 0 {
				delete(m.refs, channel)
			}
			m.mu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
		m.log.Debug("subscribed", zap.String("channel", channel))
	} else {
		m.log.Debug("piggybacking on existing subscription", zap.String("channel", channel))
	}

	var once sync.Once
	release := func() {
		once.Do(func() { m.release(channel, id) })
	}
	return release, nil
}

func (m *Manager) release(channel string, id int) {
	m.mu.Lock()
	ref, ok := m.refs[channel]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(ref.handlers, id)
	ref.count--
	last := ref.count <= 0
	if last {
		delete(m.refs, channel)
	}
	m.mu.Unlock()

	if last {
		if err := m.client.Unsubscribe(context.Background(), channel); err != nil {
			m.log.Warn("unsubscribe failed", zap.String("channel", channel), zap.Error(err))
		} else {
			m.log.Debug("unsubscribed", zap.String("channel", channel))
		}
	}
}

// dispatcher fans one client-level subscription out to all registered
// handlers. Handlers are re-read under the lock on every event so late
// piggybackers see events too.
func (m *Manager) dispatcher(channel string) Handler {
	return func(evt Event) {
		m.mu.Lock()
		ref, ok := m.refs[channel]
		if !ok {
			m.mu.Unlock()
			return
		}
		handlers := make([]Handler, 0, len(ref.handlers))
		for _, h := range ref.handlers {
			handlers = append(handlers, h)
		}
		m.mu.Unlock()
		for _, h := range handlers {
			h(evt)
		}
	}
}

// Held reports whether the manager believes it holds a live subscription.
func (m *Manager) Held(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.refs[channel]
	return ok
}

// EnsureSubscribed self-heals a lost subscription: if the manager holds refs
// for channel but the client's bookkeeping disagrees, the subscribe is
// re-issued. Returns true when a resubscribe happened.
func (m *Manager) EnsureSubscribed(ctx context.Context, channel string) (bool, error) {
	m.mu.Lock()
	_, held := m.refs[channel]
	m.mu.Unlock()
	if !held || m.client.IsChannelSubscribed(channel) {
		return false, nil
	}
	m.log.Warn("subscription lost, resubscribing", zap.String("channel", channel))
	if err := m.client.SubscribeToPrivateChannel(ctx, channel, m.dispatcher(channel)); err != nil {
		return false, fmt.Errorf("resubscribe %s: %w", channel, err)
	}
	return true, nil
}
