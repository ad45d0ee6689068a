// internal/realtime/channel.go
package realtime

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const dialTimeout = 10 * time.Second

// GameChannel is the per-session duplex connection used to mirror opponent actions. It never
// reconnects by itself: an unexpected closure only moves it to StateClosed, and it is up to
// the session owner to call Connect again.
type GameChannel struct {
	baseURL  string
	header   func() http.Header
	log      logrus.FieldLogger
	registry *Registry
	dropped  atomic.Int64

	mu     sync.Mutex
	state  State
	gen    uint64
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGameChannel creates a closed channel against the authority at baseURL. header is called
// on every dial so a refreshed identity is picked up.
func NewGameChannel(baseURL string, header func() http.Header, log logrus.FieldLogger) *GameChannel {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if header == nil {
		header = func() http.Header { return nil }
	}
	return &GameChannel{
		baseURL:  baseURL,
		header:   header,
		log:      log,
		registry: NewRegistry(log),
	}
}

// Connect opens the channel for a session. It is a no-op while already connecting or open.
// Failures are logged and leave the channel closed; callers observe State instead of an error.
func (c *GameChannel) Connect(ctx context.Context, sessionID, playerID string) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	log := c.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": playerID})

	u, err := WebSocketURL(c.baseURL, "/ws/game/"+url.PathEscape(sessionID), url.Values{"player_id": {playerID}})
	if err != nil {
		log.Errorf("Failed to build game channel url: %v", err)
		c.setClosed(gen)
		return
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, u, &websocket.DialOptions{
		HTTPHeader:   c.header(),
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		log.Errorf("Failed to connect game channel: %v", err)
		c.setClosed(gen)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		// disconnected while dialing
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "disconnected")
		return
	}
	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateOpen
	done := c.done
	c.mu.Unlock()

	log.Info("Game channel connected")
	go c.readLoop(readCtx, conn, gen, done, log)
}

func (c *GameChannel) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64, done chan struct{}, log logrus.FieldLogger) {
	defer close(done)
	err := readFrames(ctx, conn, log, &c.dropped, func(msg Message) {
		if !c.current(gen) {
			return
		}
		c.registry.Dispatch(msg)
	})
	logClosure(log, err)
	c.setClosed(gen)
}

func (c *GameChannel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state == StateOpen
}

func (c *GameChannel) setClosed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.state = StateClosed
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Disconnect closes the channel. Messages still in flight are not delivered afterwards.
func (c *GameChannel) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if cancel != nil {
		cancel()
	}
}

// Send writes msg if the channel is open and silently drops it otherwise. The channel is a
// low-latency mirror only; durability comes from the authority call that preceded it.
func (c *GameChannel) Send(msg Message) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		c.log.WithField("type", msg.Type).Debug(ErrChannelUnavailable)
		return
	}
	if err := writeMessage(conn, msg); err != nil {
		c.log.WithField("type", msg.Type).Warnf("Realtime send failed: %v", err)
	}
}

// Register adds a listener for inbound messages.
func (c *GameChannel) Register(l Listener) Handle {
	return c.registry.Register(l)
}

// Unregister removes a listener.
func (c *GameChannel) Unregister(h Handle) {
	c.registry.Unregister(h)
}

// State returns the current connection state.
func (c *GameChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is open.
func (c *GameChannel) Connected() bool {
	return c.State() == StateOpen
}

// Dropped returns how many inbound frames were discarded as malformed.
func (c *GameChannel) Dropped() int64 {
	return c.dropped.Load()
}

// Done is closed when the current read loop exits. It returns nil if never connected.
func (c *GameChannel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
