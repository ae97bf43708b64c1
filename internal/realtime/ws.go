package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

const writeTimeout = 3 * time.Second

// WSClient is the websocket-backed realtime client. It speaks the Frame
// protocol: subscribe/unsubscribe control frames out, event frames in.
type WSClient struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	log       *zap.Logger
	subs      map[string]Handler
	connected bool
	stateFns  []func(ConnState)

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Client = (*WSClient)(nil)

// Dial opens the realtime connection and starts the read loop.
func Dial(ctx context.Context, url string, log *zap.Logger) (*WSClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime %s: %w", url, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &WSClient{
		conn:      conn,
		log:       log.Named("ws"),
		subs:      make(map[string]Handler),
		connected: true,
		ctx:       runCtx,
		cancel:    cancel,
	}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.log.Warn("realtime read failed", zap.Error(err))
			}
			c.markDisconnected()
			return
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("bad realtime frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case types.FrameEvent:
			c.mu.Lock()
			h := c.subs[frame.Channel]
			c.mu.Unlock()
			if h != nil {
				h(Event{Channel: frame.Channel, Name: frame.Event, Data: frame.Data})
			}
		case types.FrameError:
			c.log.Warn("realtime server error", zap.String("error", frame.Error))
		}
	}
}

func (c *WSClient) markDisconnected() {
	c.mu.Lock()
	already := !c.connected
	c.connected = false
	fns := append([]func(ConnState){}, c.stateFns...)
	c.mu.Unlock()
	if already {
		return
	}
	for _, fn := range fns {
		fn(StateDisconnected)
	}
}

// SubscribeToPrivateChannel binds h as the sole handler for channel and sends
// the subscribe frame. Re-subscribing the same channel replaces the previous
// handler; callers wanting shared delivery use Manager.
func (c *WSClient) SubscribeToPrivateChannel(ctx context.Context, channel string, h Handler) error {
	if err := c.writeFrame(ctx, types.Frame{Type: types.FrameSubscribe, Channel: channel}); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[channel] = h
	c.mu.Unlock()
	return nil
}

func (c *WSClient) Unsubscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	delete(c.subs, channel)
	c.mu.Unlock()
	return c.writeFrame(ctx, types.Frame{Type: types.FrameUnsubscribe, Channel: channel})
}

func (c *WSClient) IsChannelSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[channel]
	return ok && c.connected
}

func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *WSClient) OnConnectionStateChange(fn func(ConnState)) {
	c.mu.Lock()
	c.stateFns = append(c.stateFns, fn)
	c.mu.Unlock()
}

func (c *WSClient) writeFrame(ctx context.Context, frame types.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close shuts the connection down cleanly.
func (c *WSClient) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
