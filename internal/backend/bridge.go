package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/internal/worldstate"
)

// Message is the envelope exchanged with the game-side bridge mod.
//
//	-> {"type":"command","command":"#goto 1 64 2"}
//	<- {"type":"status","pathing":true}
//	<- {"type":"state","state":{...snapshot...}}
//	<- {"type":"chat","player":"Steve","text":"mine some coal"}
//	-> {"type":"chat","player":"Steve","text":"Mining 16x minecraft:coal_ore"}
type Message struct {
	Type    string               `json:"type"`
	Command string               `json:"command,omitempty"`
	Pathing *bool                `json:"pathing,omitempty"`
	State   *worldstate.Snapshot `json:"state,omitempty"`
	Player  string               `json:"player,omitempty"`
	Text    string               `json:"text,omitempty"`
}

// BridgeClient keeps a websocket to the bridge mod open. It is both the
// CommandSink and the StatusSource of a CommandBackend.
type BridgeClient struct {
	url           string
	dialer        websocket.Dialer
	reconnectWait time.Duration
	logger        *observability.Logger

	onSnapshot func(worldstate.Snapshot)
	onChat     func(player, text string)

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	pathing atomic.Bool
}

type BridgeOption func(*BridgeClient)

func WithBridgeLogger(l *observability.Logger) BridgeOption {
	return func(c *BridgeClient) { c.logger = l }
}

// OnSnapshot registers a handler for world-state pushes.
func OnSnapshot(fn func(worldstate.Snapshot)) BridgeOption {
	return func(c *BridgeClient) { c.onSnapshot = fn }
}

// OnChat registers a handler for chat lines the mod forwards.
func OnChat(fn func(player, text string)) BridgeOption {
	return func(c *BridgeClient) { c.onChat = fn }
}

func WithReconnectWait(d time.Duration) BridgeOption {
	return func(c *BridgeClient) {
		if d > 0 {
			c.reconnectWait = d
		}
	}
}

func NewBridgeClient(url string, opts ...BridgeOption) *BridgeClient {
	c := &BridgeClient{
		url:           url,
		dialer:        websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		reconnectWait: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the bridge once.
func (c *BridgeClient) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("bridge: failed to connect to %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Infof("bridge connected: %s", c.url)
	return nil
}

// Run connects and reads until ctx is done, reconnecting with exponential
// backoff (capped at 30s) whenever the connection drops.
func (c *BridgeClient) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	wait := c.reconnectWait
	for {
		if err := c.Connect(ctx); err != nil {
			c.logger.Warnf("%v", err)
		} else {
			wait = c.reconnectWait
			if err := c.readLoop(); err != nil && ctx.Err() == nil {
				c.logger.Warnf("bridge: connection lost: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, 30*time.Second)
	}
}

func (c *BridgeClient) readLoop() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	defer c.drop(conn)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnf("bridge: bad message: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *BridgeClient) handle(msg Message) {
	switch msg.Type {
	case "status":
		if msg.Pathing != nil {
			c.pathing.Store(*msg.Pathing)
		}
	case "state":
		if msg.State == nil {
			return
		}
		if msg.State.Backend != nil {
			c.pathing.Store(msg.State.Backend.Pathing)
		}
		if c.onSnapshot != nil {
			c.onSnapshot(*msg.State)
		}
	case "chat":
		if c.onChat != nil && msg.Text != "" {
			c.onChat(msg.Player, msg.Text)
		}
	}
}

func (c *BridgeClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.pathing.Store(false)
	_ = conn.Close()
}

// Send writes one command line.
func (c *BridgeClient) Send(command string) error {
	return c.write(Message{Type: "command", Command: command})
}

// Say shows text in the game chat, addressed to player when set.
func (c *BridgeClient) Say(player, text string) error {
	return c.write(Message{Type: "chat", Player: player, Text: text})
}

func (c *BridgeClient) write(msg Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Join(ErrNotConnected, err)
	}
	return nil
}

func (c *BridgeClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *BridgeClient) Pathing() bool { return c.pathing.Load() }

// MarkPathing sets the pathing flag until the next status message.
func (c *BridgeClient) MarkPathing(v bool) { c.pathing.Store(v) }

// Close drops the current connection. Run will reconnect unless its
// context is done.
func (c *BridgeClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
}
