package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/internal/api"
	"github.com/TheMeowgician/fitnease-lobby/internal/lobbystate"
	"github.com/TheMeowgician/fitnease-lobby/internal/readycheck"
	"github.com/TheMeowgician/fitnease-lobby/internal/realtime"
	"github.com/TheMeowgician/fitnease-lobby/internal/session"
	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

const (
	// healthCheckInterval drives the periodic "is the channel still actually
	// subscribed" probe while a lobby is active.
	healthCheckInterval = 10 * time.Second

	// settleDelay lets a just-unsubscribed channel flush any buffered event
	// before the stores are cleared underneath it.
	settleDelay = 300 * time.Millisecond

	// resultDisplayDelay keeps a terminal ready-check result on screen before
	// it is cleared.
	resultDisplayDelay = 3 * time.Second
)

// LobbyAPI is the slice of the outbound API the coordinator needs.
type LobbyAPI interface {
	GetLobbySession(ctx context.Context, sessionID string) (*types.LobbyState, error)
	LeaveLobby(ctx context.Context, sessionID, userID string) error
}

// Notifier receives the coordinator's outward-facing signals. Implementations
// are presentation-layer glue (navigation, badges, alerts).
type Notifier interface {
	// WorkoutStarting fires at most once per session when the lobby goes
	// in_progress, carrying the workout payload to navigate with.
	WorkoutStarting(sessionID string, workout *types.WorkoutPlan)
	// ExercisesGenerated is informational, surfaced as a badge.
	ExercisesGenerated(sessionID string, count int)
	// SessionInvalid reports a forced local cleanup (session ended, kicked)
	// that the user should be told about.
	SessionInvalid(reason string)
}

// NopNotifier discards all signals.
type NopNotifier struct{}

func (NopNotifier) WorkoutStarting(string, *types.WorkoutPlan) {}
func (NopNotifier) ExercisesGenerated(string, int)             {}
func (NopNotifier) SessionInvalid(string)                      {}

type msg interface{ isCoordMsg() }

type attachMsg struct {
	rec       session.Record
	reconnect bool
}

type eventMsg struct{ evt realtime.Event }

type appStateMsg struct{ foreground bool }

type resyncResultMsg struct {
	sessionID string
	state     *types.LobbyState
	err       error
}

type leaveMsg struct{ reply chan error }

type leaveDoneMsg struct{}

type healthTickMsg struct{}

type getStateMsg struct{ reply chan View }

type shutdownMsg struct{}

func (attachMsg) isCoordMsg()       {}
func (eventMsg) isCoordMsg()        {}
func (appStateMsg) isCoordMsg()     {}
func (resyncResultMsg) isCoordMsg() {}
func (leaveMsg) isCoordMsg()        {}
func (leaveDoneMsg) isCoordMsg()    {}
func (healthTickMsg) isCoordMsg()   {}
func (getStateMsg) isCoordMsg()     {}
func (shutdownMsg) isCoordMsg()     {}

// View reflects loop-internal state without data races. Test-only.
type View struct {
	SessionID         string
	Leaving           bool
	LastAutoNavigated string
}

// Config wires the coordinator's collaborators.
type Config struct {
	API      LobbyAPI
	Channels *realtime.Manager
	Lobby    *lobbystate.Store
	Ready    *readycheck.Store
	Session  *session.Context
	Notifier Notifier
	UserID   string
	Log      *zap.Logger
}

// Coordinator owns the realtime subscription for the session the user
// currently occupies and translates every inbound event into store actions.
// It is a single goroutine; events, app-state transitions, health ticks and
// leave requests all serialize through its inbox, so each handler runs to
// completion against current store state before the next one starts.
type Coordinator struct {
	inbox    chan msg
	log      *zap.Logger
	apic     LobbyAPI
	channels *realtime.Manager
	lobby    *lobbystate.Store
	ready    *readycheck.Store
	sess     *session.Context
	notifier Notifier
	userID   string

	// loop-owned; never touched outside the loop goroutine
	sessionID         string
	groupID           string
	releases          []func()
	leaving           bool
	lastAutoNavigated string

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCoordinator(parent context.Context, cfg Config) *Coordinator {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		inbox:    make(chan msg, 64),
		log:      cfg.Log.Named("reconcile"),
		apic:     cfg.API,
		channels: cfg.Channels,
		lobby:    cfg.Lobby,
		ready:    cfg.Ready,
		sess:     cfg.Session,
		notifier: cfg.Notifier,
		userID:   cfg.UserID,
		ctx:      ctx,
		cancel:   cancel,
	}
	go c.loop()
	return c
}

// Attach points the coordinator at a lobby session: subscribe (or piggyback)
// on its channels and start reconciling its events.
func (c *Coordinator) Attach(rec session.Record) {
	c.send(attachMsg{rec: rec})
}

// AttachReconnect is Attach for the rejoin-after-restart path; it also holds
// the session channel.
func (c *Coordinator) AttachReconnect(rec session.Record) {
	c.send(attachMsg{rec: rec, reconnect: true})
}

// Leave runs the serialized leave orchestration. Concurrent calls collapse
// into the one in-flight execution.
func (c *Coordinator) Leave(ctx context.Context) error {
	reply := make(chan error, 1)
	c.send(leaveMsg{reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleAppForeground re-validates lobby membership after the app returns
// from background; realtime delivery while backgrounded is not guaranteed.
func (c *Coordinator) HandleAppForeground() {
	c.send(appStateMsg{foreground: true})
}

func (c *Coordinator) HandleAppBackground() {
	c.send(appStateMsg{foreground: false})
}

// Shutdown stops the loop and releases any held subscriptions.
func (c *Coordinator) Shutdown() {
	c.send(shutdownMsg{})
}

// State reflects internal loop state for tests.
func (c *Coordinator) State() View {
	reply := make(chan View, 1)
	c.send(getStateMsg{reply: reply})
	select {
	case v := <-reply:
		return v
	case <-c.ctx.Done():
		return View{}
	}
}

func (c *Coordinator) send(m msg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) loop() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.releaseAll()
			return

		case <-ticker.C:
			c.handleHealthTick()

		case m := <-c.inbox:
			switch m := m.(type) {
			case attachMsg:
				c.handleAttach(m)
			case eventMsg:
				c.handleEvent(m.evt)
			case appStateMsg:
				c.handleAppState(m)
			case resyncResultMsg:
				c.handleResyncResult(m)
			case leaveMsg:
				c.handleLeave(m)
			case leaveDoneMsg:
				c.leaving = false
			case healthTickMsg:
				c.handleHealthTick()
			case getStateMsg:
				m.reply <- View{
					SessionID:         c.sessionID,
					Leaving:           c.leaving,
					LastAutoNavigated: c.lastAutoNavigated,
				}
			case shutdownMsg:
				c.releaseAll()
				c.cancel()
				return
			}
		}
	}
}

func (c *Coordinator) handleAttach(m attachMsg) {
	if c.sessionID == m.rec.SessionID {
		return
	}
	if c.sessionID != "" {
		// Session switch: the old subscription and any in-flight ready check
		// belong to the old session.
		c.log.Info("switching session",
			zap.String("from", c.sessionID), zap.String("to", m.rec.SessionID))
		c.releaseAll()
		c.ready.Clear()
	}

	onEvent := func(evt realtime.Event) { c.send(eventMsg{evt: evt}) }

	channels := []struct {
		name    string
		handler realtime.Handler
	}{
		{types.LobbyChannel(m.rec.SessionID), onEvent},
		{types.PresenceLobbyChannel(m.rec.SessionID), nil},
		{types.PresenceGroupChannel(m.rec.GroupID), nil},
	}
	if m.reconnect {
		channels = append(channels, struct {
			name    string
			handler realtime.Handler
		}{types.SessionChannel(m.rec.SessionID), nil})
	}

	for _, ch := range channels {
		release, err := c.channels.Acquire(c.ctx, ch.name, ch.handler)
		if err != nil {
			c.log.Warn("channel acquire failed", zap.String("channel", ch.name), zap.Error(err))
			continue
		}
		c.releases = append(c.releases, release)
	}

	c.sessionID = m.rec.SessionID
	c.groupID = m.rec.GroupID
}

// handleEvent maps one inbound event onto store actions. Every branch reads
// the stores' current state at this moment, never a snapshot captured at
// subscription time.
func (c *Coordinator) handleEvent(evt realtime.Event) {
	if c.sessionID != "" {
		// Entry check: the client may believe it is subscribed while the
		// transport lost the channel.
		if _, err := c.channels.EnsureSubscribed(c.ctx, types.LobbyChannel(c.sessionID)); err != nil {
			c.log.Warn("subscription check failed", zap.Error(err))
		}
	}

	switch evt.Name {
	case types.EvtLobbyStateChanged:
		var p types.LobbyStateChangedPayload
		if !c.decode(evt, &p) {
			return
		}
		if c.lobby.RecentlyLeft(p.State.SessionID) {
			c.log.Debug("dropped snapshot for just-left session",
				zap.String("session_id", p.State.SessionID))
			return
		}
		c.lobby.SetLobbyState(p.State)
		c.maybeAutoNavigate(p.State)

	case types.EvtMemberStatusUpdate:
		var p types.MemberStatusUpdatePayload
		if !c.decode(evt, &p) {
			return
		}
		if c.lobby.HasMember(p.Member.UserID) {
			c.lobby.UpdateMemberStatus(p.Member.UserID, p.Member.Status)
		} else {
			c.lobby.AddMember(p.Member)
		}

	case types.EvtMemberKicked:
		var p types.MemberKickedPayload
		if !c.decode(evt, &p) {
			return
		}
		if p.UserID == c.userID {
			c.localTeardown(p.SessionID, "removed from lobby")
			return
		}
		c.lobby.RemoveMember(p.UserID)

	case types.EvtLobbyMessageSent:
		var p types.LobbyMessageSentPayload
		if !c.decode(evt, &p) {
			return
		}
		c.lobby.AddChatMessage(p.Message)

	case types.EvtLobbyDeleted:
		var p types.LobbyDeletedPayload
		if !c.decode(evt, &p) {
			return
		}
		if c.lobby.RecentlyLeft(p.SessionID) {
			// The user already left locally; nothing to tear down again.
			c.log.Debug("ignored delete for just-left session",
				zap.String("session_id", p.SessionID))
			return
		}
		c.localTeardown(p.SessionID, "lobby deleted")

	case types.EvtExercisesGenerated:
		var p types.ExercisesGeneratedPayload
		if !c.decode(evt, &p) {
			return
		}
		c.notifier.ExercisesGenerated(p.SessionID, p.ExerciseCount)

	case types.EvtReadyCheckStarted:
		var p types.ReadyCheckStartedPayload
		if !c.decode(evt, &p) {
			return
		}
		c.ready.Start(readycheck.StartParams{
			SessionID:       p.SessionID,
			GroupID:         p.GroupID,
			GroupName:       p.GroupName,
			InitiatorID:     p.InitiatorID,
			InitiatorName:   p.InitiatorName,
			TimeoutSeconds:  p.TimeoutSeconds,
			ServerExpiresAt: p.ExpiresAt,
		}, c.lobby.Members())

	case types.EvtReadyCheckResponse:
		var p types.ReadyCheckResponsePayload
		if !c.decode(evt, &p) {
			return
		}
		c.ready.UpdateResponse(p.UserID, p.UserName, p.Response)

	case types.EvtReadyCheckComplete:
		var p types.ReadyCheckCompletePayload
		if !c.decode(evt, &p) {
			return
		}
		c.ready.SetResult(p.Result)
		c.scheduleReadyCheckClear(p.SessionID)

	case types.EvtReadyCheckCancelled:
		c.ready.Clear()

	default:
		c.log.Debug("unhandled event", zap.String("event", evt.Name))
	}
}

func (c *Coordinator) decode(evt realtime.Event, out any) bool {
	if err := json.Unmarshal(evt.Data, out); err != nil {
		c.log.Warn("bad event payload", zap.String("event", evt.Name), zap.Error(err))
		return false
	}
	return true
}

// scheduleReadyCheckClear removes a terminal ready check after the display
// delay. The clear is conditional on the result still being terminal so a new
// check started in the same session meanwhile survives.
func (c *Coordinator) scheduleReadyCheckClear(sessionID string) {
	time.AfterFunc(resultDisplayDelay, func() {
		c.ready.ClearTerminal(sessionID)
	})
}

// maybeAutoNavigate fires the workout-start signal when the lobby goes
// in_progress, at most once per session id, so later unrelated state updates
// can't re-trigger navigation.
func (c *Coordinator) maybeAutoNavigate(state types.LobbyState) {
	if state.Status != types.StatusInProgress {
		return
	}
	if c.lastAutoNavigated == state.SessionID {
		return
	}
	c.lastAutoNavigated = state.SessionID
	c.notifier.WorkoutStarting(state.SessionID, state.WorkoutData)
}

func (c *Coordinator) handleAppState(m appStateMsg) {
	if !m.foreground || c.sessionID == "" || c.leaving {
		return
	}
	sid := c.sessionID
	// Re-validate membership off-loop; the result re-enters through the
	// inbox so it applies against current state.
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
		defer cancel()
		state, err := c.apic.GetLobbySession(ctx, sid)
		c.send(resyncResultMsg{sessionID: sid, state: state, err: err})
	}()
}

func (c *Coordinator) handleResyncResult(m resyncResultMsg) {
	if m.sessionID != c.sessionID || c.leaving {
		return // stale result from a session we already switched away from
	}
	if m.err != nil {
		if errors.Is(m.err, api.ErrNotInLobby) || errors.Is(m.err, api.ErrSessionEnded) {
			c.localTeardown(m.sessionID, "session no longer active")
			c.notifier.SessionInvalid("the group workout session has ended")
			return
		}
		c.log.Warn("foreground resync failed", zap.Error(m.err))
		return
	}
	c.lobby.SetLobbyState(*m.state)
	c.maybeAutoNavigate(*m.state)
}

// handleLeave runs the user-initiated leave. The in-progress flag collapses
// concurrent triggers into one execution; the API call and settle delay run
// off-loop so server-pushed events are still processed meanwhile.
func (c *Coordinator) handleLeave(m leaveMsg) {
	if c.leaving {
		m.reply <- nil
		return
	}
	if c.sessionID == "" {
		m.reply <- nil
		return
	}
	c.leaving = true
	sid := c.sessionID
	releases := c.releases
	c.releases = nil
	c.sessionID = ""
	c.groupID = ""

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.apic.LeaveLobby(ctx, sid, c.userID); err != nil {
			if errors.Is(err, api.ErrNotInLobby) {
				c.log.Debug("already absent from lobby", zap.String("session_id", sid))
			} else {
				// Best effort; local cleanup proceeds regardless.
				c.log.Warn("leave api failed", zap.Error(err))
			}
		}

		for _, release := range releases {
			release()
		}

		// Let a just-unsubscribed channel deliver any last buffered event
		// before the stores go away.
		time.Sleep(settleDelay)

		c.lobby.ClearLobby(sid)
		c.ready.Clear()
		if err := c.sess.Clear(); err != nil {
			c.log.Warn("clear session record failed", zap.Error(err))
		}
		if err := c.sess.ClearReconnectSession(); err != nil {
			c.log.Warn("clear reconnect record failed", zap.Error(err))
		}

		c.send(leaveDoneMsg{})
		m.reply <- nil
	}()
}

// localTeardown handles server-driven removal (lobby deleted, kicked): same
// cleanup as leave but without calling the leave API.
func (c *Coordinator) localTeardown(sessionID, reason string) {
	if c.leaving {
		// A leave is already in flight; it performs the same cleanup.
		c.log.Debug("teardown absorbed by in-flight leave", zap.String("reason", reason))
		return
	}
	c.log.Info("local teardown", zap.String("session_id", sessionID), zap.String("reason", reason))
	c.releaseAll()
	if sessionID == "" {
		sessionID = c.sessionID
	}
	c.lobby.ClearLobby(sessionID)
	c.ready.Clear()
	if err := c.sess.Clear(); err != nil {
		c.log.Warn("clear session record failed", zap.Error(err))
	}
	if err := c.sess.ClearReconnectSession(); err != nil {
		c.log.Warn("clear reconnect record failed", zap.Error(err))
	}
	c.sessionID = ""
	c.groupID = ""
}

func (c *Coordinator) handleHealthTick() {
	if c.sessionID == "" || c.leaving {
		return
	}
	healed, err := c.channels.EnsureSubscribed(c.ctx, types.LobbyChannel(c.sessionID))
	if err != nil {
		c.log.Warn("health check resubscribe failed", zap.Error(err))
		return
	}
	if healed {
		c.log.Info("recovered lost lobby subscription", zap.String("session_id", c.sessionID))
	}
}

func (c *Coordinator) releaseAll() {
	for _, release := range c.releases {
		release()
	}
	c.releases = nil
}

// Resume restores a persisted session after an app restart: verify the
// session is still live, reseed the lobby store from the authoritative
// snapshot, and attach. A dead session forces local cleanup so the UI can't
// point at it.
func (c *Coordinator) Resume(ctx context.Context) error {
	rec := c.sess.Current()
	if rec == nil {
		return nil
	}
	state, err := c.apic.GetLobbySession(ctx, rec.SessionID)
	if err != nil {
		if errors.Is(err, api.ErrNotInLobby) || errors.Is(err, api.ErrSessionEnded) {
			c.forceForgetSession(rec.SessionID)
			return fmt.Errorf("resume session %s: %w", rec.SessionID, err)
		}
		return fmt.Errorf("resume session %s: %w", rec.SessionID, err)
	}
	if state.Status == types.StatusCompleted || len(state.Members) == 0 {
		c.forceForgetSession(rec.SessionID)
		return fmt.Errorf("resume session %s: %w", rec.SessionID, api.ErrSessionEnded)
	}
	c.lobby.SetLobbyState(*state)
	c.AttachReconnect(*rec)
	return nil
}

// forceForgetSession is the forced cleanup for a dead persisted session so
// the UI cannot come back up pointing at it.
func (c *Coordinator) forceForgetSession(sessionID string) {
	if err := c.sess.Clear(); err != nil {
		c.log.Warn("clear session record failed", zap.Error(err))
	}
	if err := c.sess.ClearReconnectSession(); err != nil {
		c.log.Warn("clear reconnect record failed", zap.Error(err))
	}
	c.lobby.ClearLobby(sessionID)
	c.notifier.SessionInvalid("the group workout session has ended")
}
